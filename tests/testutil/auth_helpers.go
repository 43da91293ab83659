package testutil

import (
	"strings"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/design-studio-api/middleware"
)

// MockValidatedClaims creates a mock ValidatedClaims for testing
func MockValidatedClaims(subject, issuer, role string, scopes []string) *validator.ValidatedClaims {
	return &validator.ValidatedClaims{
		RegisteredClaims: validator.RegisteredClaims{
			Issuer:  issuer,
			Subject: subject,
		},
		CustomClaims: &middleware.CustomClaims{
			Scope: strings.Join(scopes, " "),
			Role:  role,
		},
	}
}

// MockAuthMiddleware sets up the context exactly as EnsureValidToken does
func MockAuthMiddleware(subject, role, accessToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", subject)
		c.Set("access_token", accessToken)
		c.Set("validated_claims", MockValidatedClaims(subject, "https://test.auth0.com/", role, nil))
		c.Next()
	}
}

// Test identity headers read by HeaderAuthMiddleware
const (
	SubjectHeader = "X-Test-Subject"
	RoleHeader    = "X-Test-Role"
)

// HeaderAuthMiddleware authenticates each request as the subject named in
// SubjectHeader, so one router can serve several test users. Requests
// without the header are rejected with 401 like a missing token.
func HeaderAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := c.GetHeader(SubjectHeader)
		if subject == "" {
			subject = c.Query("test_subject")
		}
		if subject == "" {
			c.AbortWithStatusJSON(401, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "UNAUTHORIZED",
					"message": "Invalid or missing authentication token",
				},
			})
			return
		}
		MockAuthMiddleware(subject, c.GetHeader(RoleHeader), "test-token-"+subject)(c)
	}
}
