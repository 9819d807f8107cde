package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stackgate/backend/internal/config"
	"github.com/stackgate/backend/internal/domain"
	"github.com/stackgate/backend/internal/transport/http/dto"
)

const requestContextKey = "request_context"

// Claims is the bearer token payload issued by the identity provider.
type Claims struct {
	Roles           []string `json:"roles"`
	ProjectID       string   `json:"project_id"`
	ProjectDomainID string   `json:"project_domain_id"`
	UserID          string   `json:"user_id"`
	Username        string   `json:"username"`
	jwt.RegisteredClaims
}

var errMalformedAuth = errors.New("malformed authorization header")

// Authenticate resolves the caller. Requests without a bearer token continue
// as anonymous; an invalid token is rejected.
func Authenticate(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rc := domain.RequestContext{IPAddress: c.IP()}

		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			c.Locals(requestContextKey, rc)
			return c.Next()
		}

		claims, err := parseBearer(header, cfg.Auth)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.Messages("unauthorized"))
		}
		rc.Roles = claims.Roles
		rc.ProjectID = claims.ProjectID
		rc.ProjectDomainID = claims.ProjectDomainID
		rc.UserID = claims.UserID
		if rc.UserID == "" {
			rc.UserID = claims.Subject
		}
		rc.Username = claims.Username
		c.Locals(requestContextKey, rc)
		return c.Next()
	}
}

func parseBearer(header string, auth config.AuthConfig) (*Claims, error) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return nil, errMalformedAuth
	}
	if auth.JWTSecret == "" {
		return nil, errors.New("jwt secret is not configured")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if auth.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(auth.JWTIssuer))
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(header[len(prefix):], claims, func(*jwt.Token) (interface{}, error) {
		return []byte(auth.JWTSecret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// RequireRoles lets through authenticated callers holding any of roles.
func RequireRoles(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rc := RequestContext(c)
		if !rc.Authenticated() {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.Messages("authentication required"))
		}
		if !rc.HasRole(roles...) {
			return c.Status(fiber.StatusForbidden).JSON(dto.Messages("insufficient role"))
		}
		return c.Next()
	}
}

// RequestContext returns the caller resolved by Authenticate.
func RequestContext(c *fiber.Ctx) domain.RequestContext {
	if rc, ok := c.Locals(requestContextKey).(domain.RequestContext); ok {
		return rc
	}
	return domain.RequestContext{IPAddress: c.IP()}
}

// SignToken issues an HS256 token for claims. Used by tooling and tests.
func SignToken(secret string, claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
