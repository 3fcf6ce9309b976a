package service

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bookon/bookon-api/internal/models"
	"github.com/bookon/bookon-api/internal/repository"
	"github.com/bookon/bookon-api/pkg/cache"
	appErrors "github.com/bookon/bookon-api/pkg/errors"
	"github.com/bookon/bookon-api/pkg/forms"
	"github.com/bookon/bookon-api/pkg/lifecycle"
)

// Actor identifies the authenticated caller of a service operation.
type Actor struct {
	UserID string
	Role   models.UserRole
}

// ActorFromClaims builds an Actor from validated token claims.
func ActorFromClaims(claims *models.JWTClaims) Actor {
	if claims == nil {
		return Actor{}
	}
	return Actor{UserID: claims.UserID, Role: claims.Role}
}

// IsAdmin reports whether the actor sees every account's records.
func (a Actor) IsAdmin() bool { return a.Role == models.RoleAdmin }

func (a Actor) scope() string {
	if a.IsAdmin() {
		return ""
	}
	return a.UserID
}

func (a Actor) canAccess(createdBy string) bool {
	return a.IsAdmin() || (a.UserID != "" && a.UserID == createdBy)
}

// ListResult is one page of a list endpoint together with per-status counts.
type ListResult[T any] struct {
	Items      []T                `json:"items"`
	Pagination *models.Pagination `json:"pagination"`
	Stats      models.StatusStats `json:"stats,omitempty"`
	Cached     bool               `json:"-"`
}

func listKey(resource string, filter interface{}) string {
	raw, _ := json.Marshal(filter)
	sum := sha1.Sum(raw)
	return cache.Key("list", resource, hex.EncodeToString(sum[:]))
}

func listPattern(resource string) string {
	return cache.Key("list", resource) + ":*"
}

// cachedList serves a list page from the cache when possible and stores fresh
// pages on a miss. Cache failures fall through to load.
func cachedList[T any](ctx context.Context, c *CacheService, resource string, filter interface{}, load func() (*ListResult[T], error)) (*ListResult[T], error) {
	key := listKey(resource, filter)
	var cached ListResult[T]
	if hit, _ := c.Get(ctx, key, &cached); hit {
		cached.Cached = true
		return &cached, nil
	}
	result, err := load()
	if err != nil {
		return nil, err
	}
	_ = c.Set(ctx, key, result, 0)
	return result, nil
}

func invalidateList(ctx context.Context, c *CacheService, resources ...string) {
	for _, resource := range resources {
		_ = c.Invalidate(ctx, listPattern(resource))
	}
}

// resolveAction maps a user-requested action to the resulting status. System
// actions are never accepted here.
func resolveAction(kind lifecycle.Kind, status, action string) (string, error) {
	actions, err := lifecycle.UserActions(kind, status)
	if err != nil {
		return "", appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("unknown %s status %q", kind, status))
	}
	for _, a := range actions {
		if a.Name == action {
			return a.Result, nil
		}
	}
	return "", appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot %s a %s %s", action, status, kind))
}

func statusUpdateError(err error, resource string) error {
	if errors.Is(err, repository.ErrStaleStatus) {
		return appErrors.Clone(appErrors.ErrConflict, resource+" status changed, reload and try again")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update "+resource+" status")
}

func lookupError(err error, resource string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, resource+" not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load "+resource)
}

func internalError(err error, msg string) error {
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, msg)
}

func invalidForm(resource string, errs forms.FieldErrors) error {
	return appErrors.Validation("invalid "+resource+" payload", errs)
}

func fieldError(field, msg string) error {
	return appErrors.Validation(msg, map[string]string{field: msg})
}

func preconditionFailed(msg string) error {
	return appErrors.Clone(appErrors.ErrPreconditionFailed, msg)
}

func optional(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}
