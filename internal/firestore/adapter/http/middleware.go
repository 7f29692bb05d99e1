package http

import (
	"context"
	"strings"

	"firestore-typed/internal/shared/contextkeys"
	"firestore-typed/internal/shared/errors"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// BearerAuth verifies an HS256 bearer token signed with the configured secret and
// stores its subject in the request context. With an empty secret every request passes.
func (g *Gateway) BearerAuth() fiber.Handler {
	if g.cfg.JWTSecret == "" {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	key := []byte(g.cfg.JWTSecret)
	return func(c *fiber.Ctx) error {
		raw := extractToken(c)
		if raw == "" {
			return g.fail(c, errors.NewAuthenticationError("Authorization token required"))
		}

		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrTokenSignatureInvalid
			}
			return key, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			return g.fail(c, errors.NewAuthenticationError("Invalid token").WithKind(errors.ErrInvalidToken).WithCause(err))
		}

		c.Locals("userID", claims.Subject)
		c.SetUserContext(context.WithValue(c.UserContext(), contextkeys.UserIDKey, claims.Subject))
		return c.Next()
	}
}

// extractToken reads the Authorization header, falling back to the token query
// parameter browsers use for WebSocket connections.
func extractToken(c *fiber.Ctx) string {
	if header := c.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("token")
}

func requireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals("allowed", true)
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}
