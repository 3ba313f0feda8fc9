package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const secret = "0123456789abcdef0123"

func newService(t *testing.T) *Service {
	t.Helper()
	// MinCost keeps the tests fast
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	s, err := NewService(Config{Enabled: true, Username: "ops", PasswordHash: string(hash), JWTSecret: secret, TokenTTL: time.Hour})
	require.NoError(t, err)
	return s
}

func TestNewServiceValidation(t *testing.T) {
	_, err := NewService(Config{Enabled: true, Username: "ops", PasswordHash: "not-a-hash", JWTSecret: secret})
	assert.Error(t, err)

	hash, _ := bcrypt.GenerateFromPassword([]byte("x"), bcrypt.MinCost)
	_, err = NewService(Config{Enabled: true, Username: "ops", PasswordHash: string(hash), JWTSecret: "short"})
	assert.Error(t, err)

	s, err := NewService(Config{})
	require.NoError(t, err)
	assert.False(t, s.Enabled())
}

func TestLoginAndVerify(t *testing.T) {
	s := newService(t)

	_, err := s.Login("ops", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.Login("someone", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	tok, err := s.Login("ops", "s3cret")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.ExpiresAt, time.Minute)

	claims, err := s.Verify(tok.Token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Username)

	_, err = s.Verify(tok.Token + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = s.Verify("")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestVerifyRejectsExpiredAndForeignTokens(t *testing.T) {
	s := newService(t)
	tok, err := s.Login("ops", "s3cret")
	require.NoError(t, err)

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = s.Verify(tok.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := newService(t)
	other.secret = []byte("another-secret-of-enough-length")
	foreign, err := other.Login("ops", "s3cret")
	require.NoError(t, err)
	s.now = time.Now
	_, err = s.Verify(foreign.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestHashPassword(t *testing.T) {
	h, err := HashPassword("pw")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(h), []byte("pw")))
	_, err = HashPassword("")
	assert.Error(t, err)
}

func router(s *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/login", s.LoginHandler())
	r.GET("/private", s.GinAuth(), func(c *gin.Context) {
		claims := c.MustGet(ClaimsKey).(*Claims)
		c.String(http.StatusOK, claims.Username)
	})
	return r
}

func TestGinLoginAndProtectedRoute(t *testing.T) {
	s := newService(t)
	r := router(s)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/private", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"username":"ops","password":"s3cret"}`)))
	require.Equal(t, http.StatusOK, w.Code)
	var tok Token
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tok))

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer "+tok.Token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ops", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/private?token="+tok.Token, nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGinLoginBasicAuth(t *testing.T) {
	r := router(newService(t))
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.SetBasicAuth("ops", "bad")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/login", nil)
	req.SetBasicAuth("ops", "s3cret")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGinAuthDisabledPassesThrough(t *testing.T) {
	s, err := NewService(Config{})
	require.NoError(t, err)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/open", s.GinAuth(), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/open", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}
