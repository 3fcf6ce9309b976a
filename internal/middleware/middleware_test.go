package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookon/bookon-api/internal/models"
	"github.com/bookon/bookon-api/internal/service"
	appErrors "github.com/bookon/bookon-api/pkg/errors"
	"github.com/bookon/bookon-api/pkg/logger"
)

type stubValidator struct {
	claims *models.JWTClaims
}

func (s stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return s.claims, nil
}

type recordingAudit struct {
	logs []*models.AuditLog
}

func (r *recordingAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	r.logs = append(r.logs, log)
	return nil
}

func init() {
	gin.SetMode(gin.TestMode)
}

func perform(r *gin.Engine, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestJWTRequiresBearerToken(t *testing.T) {
	claims := &models.JWTClaims{UserID: "biz-1", Role: models.RoleBusiness}
	r := gin.New()
	r.GET("/me", JWT(stubValidator{claims: claims}), func(c *gin.Context) {
		got, ok := Claims(c)
		require.True(t, ok)
		c.String(http.StatusOK, got.UserID+"|"+c.GetString(logger.UserIDKey))
	})

	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/me", "Token good").Code)
	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/me", "Bearer bad").Code)

	rec := perform(r, http.MethodGet, "/me", "Bearer good")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "biz-1|biz-1", rec.Body.String())
}

func TestOptionalJWTNeverBlocks(t *testing.T) {
	r := gin.New()
	r.GET("/public", OptionalJWT(stubValidator{claims: &models.JWTClaims{UserID: "u"}}), func(c *gin.Context) {
		_, ok := Claims(c)
		c.JSON(http.StatusOK, gin.H{"authenticated": ok})
	})

	assert.JSONEq(t, `{"authenticated":false}`, perform(r, http.MethodGet, "/public", "Bearer bad").Body.String())
	assert.JSONEq(t, `{"authenticated":true}`, perform(r, http.MethodGet, "/public", "Bearer good").Body.String())
}

func TestRBAC(t *testing.T) {
	claims := &models.JWTClaims{UserID: "parent-1", Role: models.RoleParent}
	r := gin.New()
	auth := JWT(stubValidator{claims: claims})
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	r.GET("/templates", auth, RequireRoles(models.RoleAdmin, models.RoleBusiness), ok)
	r.GET("/users/:id", auth, RBAC(string(models.RoleAdmin), "SELF"), ok)
	r.GET("/open", RBAC(string(models.RoleAdmin)), ok)

	assert.Equal(t, http.StatusForbidden, perform(r, http.MethodGet, "/templates", "Bearer good").Code)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/users/parent-1", "Bearer good").Code)
	assert.Equal(t, http.StatusForbidden, perform(r, http.MethodGet, "/users/other", "Bearer good").Code)
	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/open", "").Code)
}

func TestAuditRecordsSuccessfulMutations(t *testing.T) {
	writer := &recordingAudit{}
	r := gin.New()
	group := r.Group("/courses", JWT(stubValidator{claims: &models.JWTClaims{UserID: "biz-1"}}), Audit(writer, "courses", nil))
	group.GET("", func(c *gin.Context) { c.Status(http.StatusOK) })
	group.PATCH("/:id/:action", func(c *gin.Context) { c.Status(http.StatusOK) })
	group.DELETE("/:id", func(c *gin.Context) { c.Status(http.StatusPreconditionFailed) })

	perform(r, http.MethodGet, "/courses", "Bearer good")
	perform(r, http.MethodDelete, "/courses/c-1", "Bearer good")
	perform(r, http.MethodPatch, "/courses/c-1/publish", "Bearer good")

	require.Len(t, writer.logs, 1)
	log := writer.logs[0]
	assert.Equal(t, models.AuditActionTransition, log.Action)
	assert.Equal(t, "courses", log.Resource)
	require.NotNil(t, log.UserID)
	assert.Equal(t, "biz-1", *log.UserID)
	require.NotNil(t, log.ResourceID)
	assert.Equal(t, "c-1", *log.ResourceID)
	assert.Contains(t, string(log.NewValues), `"action":"publish"`)
}

func TestResponseMeta(t *testing.T) {
	r := gin.New()
	r.Use(WithResponseMeta())
	r.GET("/list", func(c *gin.Context) {
		SetCacheHit(c, true)
		c.JSON(http.StatusOK, ExtractMeta(c))
	})

	rec := perform(r, http.MethodGet, "/list", "")
	assert.Contains(t, rec.Body.String(), `"cacheHit":true`)
	assert.Contains(t, rec.Body.String(), `"processingTimeMs"`)
}

func TestMetricsMiddlewareUsesRoutePattern(t *testing.T) {
	metrics := service.NewMetricsService()
	r := gin.New()
	r.Use(Metrics(metrics))
	r.GET("/courses/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	perform(r, http.MethodGet, "/courses/abc", "")
	perform(r, http.MethodGet, "/nowhere", "")

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `path="/courses/:id"`)
	assert.Contains(t, rec.Body.String(), `path="unmatched"`)
	assert.NotContains(t, rec.Body.String(), `path="/courses/abc"`)
}
