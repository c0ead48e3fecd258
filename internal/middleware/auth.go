package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/repairhub/notify/internal/handler"
	"github.com/repairhub/notify/pkg/auth"
	"github.com/repairhub/notify/pkg/security"
)

const ContextRecipient = "recipient"

type AuthMiddleware struct {
	verifier   security.KeyVerifier
	apiKeyHash string
	tokens     auth.TokenService
}

func NewAuthMiddleware(verifier security.KeyVerifier, apiKeyHash string, tokens auth.TokenService) *AuthMiddleware {
	return &AuthMiddleware{
		verifier:   verifier,
		apiKeyHash: apiKeyHash,
		tokens:     tokens,
	}
}

// RequireServiceKey guards the write surface: only the surrounding
// application (holding the shared API key) may create notifications or
// operate admin controls.
func (m *AuthMiddleware) RequireServiceKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-API-Key")
		if key == "" {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing api key"))
			c.Abort()
			return
		}
		if err := m.verifier.Verify(m.apiKeyHash, key); err != nil {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid api key"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireRecipientToken guards recipient-facing reads. The validated
// recipient lands in the context; handlers never trust client-supplied
// recipient identifiers.
func (m *AuthMiddleware) RequireRecipientToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing authorization header"))
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid authorization format"))
			c.Abort()
			return
		}

		recipient, err := m.tokens.ValidateRecipientToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid token"))
			c.Abort()
			return
		}

		c.Set(ContextRecipient, recipient)
		c.Next()
	}
}
