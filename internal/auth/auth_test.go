package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/dozer/internal/config"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	s, err := NewService(config.APIAuthConfig{
		Enabled:      true,
		Username:     "admin",
		PasswordHash: hash,
		JWTSecret:    "test-secret",
		TokenTTL:     time.Minute,
	})
	require.NoError(t, err)
	return s
}

func TestHashPassword(t *testing.T) {
	_, err := HashPassword("")
	require.Error(t, err)

	h, err := HashPassword("pw")
	require.NoError(t, err)
	assert.Contains(t, h, "$2")
	assert.NotEqual(t, "pw", h)
}

func TestCheckPassword(t *testing.T) {
	s := newTestService(t)
	require.NoError(t, s.CheckPassword("admin", "hunter2"))
	require.ErrorIs(t, s.CheckPassword("admin", "wrong"), ErrInvalidCredentials)
	require.ErrorIs(t, s.CheckPassword("root", "hunter2"), ErrInvalidCredentials)
	require.ErrorIs(t, s.CheckPassword("", ""), ErrInvalidCredentials)
}

func TestLoginAndVerify(t *testing.T) {
	s := newTestService(t)
	_, err := s.Login("admin", "nope")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	tok, err := s.Login("admin", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", tok.Type)

	user, err := s.Verify(tok.Value)
	require.NoError(t, err)
	assert.Equal(t, "admin", user)

	_, err = s.Verify(tok.Value + "x")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestTokenExpires(t *testing.T) {
	s := newTestService(t)
	now := time.Now()
	s.now = func() time.Time { return now }
	tok, err := s.Login("admin", "hunter2")
	require.NoError(t, err)

	s.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, err = s.Verify(tok.Value)
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestTokenFromOtherSecretRejected(t *testing.T) {
	a := newTestService(t)
	b := newTestService(t)
	b.jwtSecret = []byte("other")
	tok, err := a.Login("admin", "hunter2")
	require.NoError(t, err)
	_, err = b.Verify(tok.Value)
	require.Error(t, err)
}

func TestRandomSecretWhenEmpty(t *testing.T) {
	s, err := NewService(config.APIAuthConfig{Username: "admin"})
	require.NoError(t, err)
	assert.Len(t, s.jwtSecret, 32)
	assert.Equal(t, time.Hour, s.tokenTTL)
}

func TestGinAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := newTestService(t)
	r := gin.New()
	r.GET("/x", GinAuth(s), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(UserKey))
	})

	do := func(setup func(*http.Request)) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		setup(req)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	rec := do(func(*http.Request) {})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	rec = do(func(r *http.Request) { r.SetBasicAuth("admin", "hunter2") })
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin", rec.Body.String())

	tok, err := s.Login("admin", "hunter2")
	require.NoError(t, err)
	rec = do(func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok.Value) })
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(func(r *http.Request) { r.Header.Set("Authorization", "Bearer garbage") })
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGinAuthNilServiceIsOpen(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", GinAuth(nil), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
