package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bookon/bookon-api/internal/middleware"
	"github.com/bookon/bookon-api/internal/models"
	"github.com/bookon/bookon-api/internal/service"
	appErrors "github.com/bookon/bookon-api/pkg/errors"
	"github.com/bookon/bookon-api/pkg/filter"
	"github.com/bookon/bookon-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	claims, ok := middleware.Claims(c)
	if !ok {
		return nil
	}
	return claims
}

// actorFromContext writes a 401 and returns false when the request carries no claims.
func actorFromContext(c *gin.Context) (service.Actor, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return service.Actor{}, false
	}
	return service.ActorFromClaims(claims), true
}

func bindJSON(c *gin.Context, dest interface{}, what string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid "+what+" payload"))
		return false
	}
	return true
}

// listQuery reads the paging, sorting, search and status parameters shared by
// every list endpoint, plus the categorical keys a page filters on.
func listQuery(c *gin.Context, keys ...string) (models.ListFilter, filter.State) {
	state := filter.FromQuery(c.Request.URL.Query(), append([]string{"status"}, keys...)...)
	var lf models.ListFilter
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		lf.Page = page
	}
	size := c.Query("limit")
	if size == "" {
		size = c.DefaultQuery("pageSize", "20")
	}
	if n, err := strconv.Atoi(size); err == nil {
		lf.PageSize = n
	}
	lf.Search = state.SearchTerm
	lf.Status = first(state.Values("status"))
	lf.SortBy = c.Query("sort")
	lf.SortOrder = c.Query("order")
	return lf, state
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func respondList[T any](c *gin.Context, res *service.ListResult[T]) {
	items := res.Items
	if items == nil {
		items = []T{}
	}
	middleware.SetCacheHit(c, res.Cached)
	response.List(c, items, res.Pagination, res.Stats, middleware.ExtractMeta(c))
}
