package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// UserKey is the gin context key holding the authenticated user.
const UserKey = "auth_user"

// GinAuth rejects requests without valid basic credentials or bearer token.
// A nil Service disables authentication.
func GinAuth(s *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s == nil {
			c.Next()
			return
		}
		user, err := s.authenticate(c.Request)
		if err != nil {
			c.Header("WWW-Authenticate", `Basic realm="dozer"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
			})
			return
		}
		c.Set(UserKey, user)
		c.Next()
	}
}

// LoginHandler exchanges basic credentials for a bearer token.
func LoginHandler(s *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		username, password, ok := c.Request.BasicAuth()
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "basic credentials required"})
			return
		}
		tok, err := s.Login(username, password)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, tok)
	}
}

func (s *Service) authenticate(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, value, _ := strings.Cut(h, " ")
		if strings.EqualFold(scheme, "bearer") {
			return s.Verify(strings.TrimSpace(value))
		}
	}
	if username, password, ok := r.BasicAuth(); ok {
		if err := s.CheckPassword(username, password); err != nil {
			return "", err
		}
		return username, nil
	}
	return "", ErrInvalidCredentials
}
