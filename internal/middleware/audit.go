package middleware

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bookon/bookon-api/internal/models"
)

// AuditWriter persists audit records.
type AuditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Audit records an audit log entry after every successful mutation or
// export. The action is derived from the HTTP method.
func Audit(writer AuditWriter, resource string, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		action := auditAction(c)
		if action == "" || c.Writer.Status() >= 400 || writer == nil {
			return
		}

		var userID *string
		if claims, ok := Claims(c); ok {
			userID = &claims.UserID
		}
		var resourceID *string
		if id := c.Param("id"); id != "" {
			resourceID = &id
		}

		body, _ := json.Marshal(map[string]interface{}{
			"path":    c.FullPath(),
			"method":  c.Request.Method,
			"status":  c.Writer.Status(),
			"action":  c.Param("action"),
			"latency": time.Since(start).Milliseconds(),
		})

		if err := writer.CreateAuditLog(c.Request.Context(), &models.AuditLog{
			UserID:     userID,
			Action:     action,
			Resource:   resource,
			ResourceID: resourceID,
			NewValues:  body,
			IPAddress:  c.ClientIP(),
			UserAgent:  c.GetHeader("User-Agent"),
		}); err != nil {
			logger.Warn("failed to write audit log", zap.String("resource", resource), zap.Error(err))
		}
	}
}

func auditAction(c *gin.Context) string {
	switch c.Request.Method {
	case "POST":
		return models.AuditActionCreate
	case "PUT":
		return models.AuditActionUpdate
	case "PATCH":
		return models.AuditActionTransition
	case "DELETE":
		return models.AuditActionDelete
	case "GET":
		if c.Param("format") != "" || c.Query("format") != "" {
			return models.AuditActionExport
		}
	}
	return ""
}
