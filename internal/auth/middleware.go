// Package auth resolves the caller identity for every request.
//
// With Casdoor configured, identity comes from a verified bearer token.
// Without it (local development, tests) identity is taken from trusted
// request headers.
package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/gin-gonic/gin"

	"github.com/classlight/quiz-service/internal/config"
	"github.com/classlight/quiz-service/internal/models"
)

const identityKey = "auth.identity"

// TokenVerifier turns a bearer token into an identity.
type TokenVerifier interface {
	Verify(token string) (models.Identity, error)
}

// CasdoorVerifier validates JWTs issued by a Casdoor instance.
type CasdoorVerifier struct {
	client *casdoorsdk.Client
}

func NewCasdoorVerifier(cfg config.CasdoorConfig) *CasdoorVerifier {
	client := casdoorsdk.NewClient(
		cfg.Endpoint,
		cfg.ClientID,
		cfg.ClientSecret,
		cfg.Certificate,
		cfg.Organization,
		cfg.Application,
	)
	return &CasdoorVerifier{client: client}
}

func (v *CasdoorVerifier) Verify(token string) (models.Identity, error) {
	claims, err := v.client.ParseJwtToken(token)
	if err != nil {
		return models.Identity{}, fmt.Errorf("invalid token: %w", err)
	}

	name := claims.User.DisplayName
	if name == "" {
		name = claims.User.Name
	}

	return models.Identity{
		ID:   claims.User.Id,
		Name: name,
		Role: roleFromTag(claims.User.Tag),
	}, nil
}

// roleFromTag maps the Casdoor user tag onto a service role. Unknown
// tags get the least privileged role.
func roleFromTag(tag string) models.UserRole {
	switch models.UserRole(strings.ToLower(tag)) {
	case models.RoleTeacher:
		return models.RoleTeacher
	case models.RoleAdmin:
		return models.RoleAdmin
	default:
		return models.RoleStudent
	}
}

// Middleware extracts the caller identity and stores it in the gin
// context. Requests without a resolvable identity are rejected.
func Middleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := resolveIdentity(c, verifier)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "authentication required",
			})
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

func resolveIdentity(c *gin.Context, verifier TokenVerifier) (models.Identity, bool) {
	if verifier != nil {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return models.Identity{}, false
		}
		identity, err := verifier.Verify(token)
		if err != nil {
			return models.Identity{}, false
		}
		return identity, true
	}

	// Header identity is only for deployments behind a trusted gateway
	// and for local development.
	id := c.GetHeader("X-User-ID")
	if id == "" {
		return models.Identity{}, false
	}
	return models.Identity{
		ID:   id,
		Name: c.GetHeader("X-User-Name"),
		Role: roleFromTag(c.GetHeader("X-User-Role")),
	}, true
}

// IdentityFromContext returns the identity stored by Middleware.
func IdentityFromContext(c *gin.Context) (models.Identity, bool) {
	value, exists := c.Get(identityKey)
	if !exists {
		return models.Identity{}, false
	}
	identity, ok := value.(models.Identity)
	return identity, ok
}
