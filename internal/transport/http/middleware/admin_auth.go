package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/credential-gate/internal/infra/security"
)

// AdminSubjectKey is the gin context key holding the authenticated admin subject.
const AdminSubjectKey = "admin_subject"

// AdminTokenParser validates admin session tokens.
type AdminTokenParser interface {
	ParseToken(token string) (*security.AdminClaims, error)
}

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

func newErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: GetTraceID(c),
	}
}

// RequireAdmin validates the bearer token issued by the admin login endpoint.
func RequireAdmin(parser AdminTokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "missing authorization header"))
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "invalid authorization format: expected 'Bearer <token>'"))
			return
		}

		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "missing access token"))
			return
		}

		claims, err := parser.ParseToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "invalid or expired admin token"))
			return
		}

		c.Set(AdminSubjectKey, claims.Subject)
		c.Next()
	}
}

// GetAdminSubject returns the admin subject set by RequireAdmin.
func GetAdminSubject(c *gin.Context) (string, bool) {
	subject := c.GetString(AdminSubjectKey)
	return subject, subject != ""
}
