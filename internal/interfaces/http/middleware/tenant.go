package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/retail/ledger/internal/infrastructure/logger"
	"github.com/retail/ledger/internal/interfaces/http/dto"
)

// Tenant and actor headers and their gin context keys
const (
	TenantHeader = "X-Tenant-ID"
	ActorHeader  = "X-User-ID"
	TenantIDKey  = "tenant_id"
	ActorIDKey   = "actor_id"
)

// BearerVerifier resolves the tenant and user of a bearer token
type BearerVerifier interface {
	Verify(token string) (tenantID, userID uuid.UUID, err error)
}

// TenantConfig holds configuration for the tenant middleware
type TenantConfig struct {
	// SkipPaths are served without a tenant (health, metrics)
	SkipPaths []string
	// RequireActorForWrites rejects POST/PUT/PATCH/DELETE without X-User-ID
	RequireActorForWrites bool
	// Tokens, when set, makes a bearer token mandatory and the identity
	// headers are ignored
	Tokens BearerVerifier
}

// DefaultTenantConfig returns default tenant middleware configuration
func DefaultTenantConfig() TenantConfig {
	return TenantConfig{
		SkipPaths:             []string{"/health", "/metrics"},
		RequireActorForWrites: true,
	}
}

// Tenant resolves the tenant from X-Tenant-ID and the acting user from X-User-ID,
// or from the bearer token when a verifier is configured. Every ledger query is
// scoped by the tenant set here.
func Tenant(cfg TenantConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, skip := range cfg.SkipPaths {
			if path == skip || strings.HasPrefix(path, skip+"/") {
				c.Next()
				return
			}
		}

		if cfg.Tokens != nil {
			token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
			if !ok || token == "" {
				abortUnauthorized(c, "Bearer token required")
				return
			}
			tenantID, actorID, err := cfg.Tokens.Verify(token)
			if err != nil {
				abortUnauthorized(c, "Invalid bearer token")
				return
			}
			setIdentity(c, tenantID, actorID)
			c.Next()
			return
		}

		raw := c.GetHeader(TenantHeader)
		if raw == "" {
			abortUnauthorized(c, "Tenant identification required")
			return
		}
		tenantID, err := uuid.Parse(raw)
		if err != nil || tenantID == uuid.Nil {
			abortUnauthorized(c, "Invalid tenant ID format")
			return
		}

		var actorID uuid.UUID
		if rawActor := c.GetHeader(ActorHeader); rawActor != "" {
			actorID, err = uuid.Parse(rawActor)
			if err != nil {
				abortUnauthorized(c, "Invalid user ID format")
				return
			}
		} else if cfg.RequireActorForWrites && isWrite(c.Request.Method) {
			abortUnauthorized(c, "User identification required")
			return
		}

		setIdentity(c, tenantID, actorID)
		c.Next()
	}
}

func setIdentity(c *gin.Context, tenantID, actorID uuid.UUID) {
	c.Set(TenantIDKey, tenantID)
	ctx := logger.WithTenantID(c.Request.Context(), tenantID.String())
	if actorID != uuid.Nil {
		c.Set(ActorIDKey, actorID)
		ctx = logger.WithActorID(ctx, actorID.String())
	}
	c.Request = c.Request.WithContext(ctx)
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized,
		dto.NewErrorResponseWithRequestID(dto.ErrCodeUnauthorized, message, GetRequestID(c)))
}

// GetTenantID returns the tenant set by Tenant, uuid.Nil outside tenant routes
func GetTenantID(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(TenantIDKey); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

// GetActorID returns the acting user set by Tenant, uuid.Nil when anonymous
func GetActorID(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(ActorIDKey); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}
