package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	m := NewManager("secret", time.Hour)

	token, err := m.GenerateToken("alice")
	require.NoError(t, err)

	userID, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", userID)
}

func TestValidateTokenRejects(t *testing.T) {
	m := NewManager("secret", time.Hour)

	other, err := NewManager("other-secret", time.Hour).GenerateToken("alice")
	require.NoError(t, err)
	_, err = m.ValidateToken(other)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := NewManager("secret", time.Nanosecond).GenerateToken("alice")
	require.NoError(t, err)
	time.Sleep(time.Second)
	_, err = m.ValidateToken(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewManager("", time.Hour).GenerateToken("alice")
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewManager("secret", time.Hour)

	r := gin.New()
	r.GET("/me", m.Middleware(), func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := m.GenerateToken("bob")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "bob", w.Body.String())
}
