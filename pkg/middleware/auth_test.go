package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

// fakeToken implements Token
type fakeToken struct {
	data map[string]interface{}
}

func (t *fakeToken) Claims(v interface{}) error {
	if mm, ok := v.(*map[string]interface{}); ok {
		*mm = t.data
		return nil
	}
	return fmt.Errorf("unsupported claims type")
}

// fakeVerifier implements Verifier
type fakeVerifier struct{}

func (f *fakeVerifier) Verify(ctx context.Context, raw string) (Token, error) {
	switch raw {
	case "goodtoken":
		return &fakeToken{data: map[string]interface{}{"sub": "user1", "email": "test@example.com"}}, nil
	case "othertoken":
		return &fakeToken{data: map[string]interface{}{"sub": "user2"}}, nil
	case "anonymous":
		return &fakeToken{data: map[string]interface{}{"email": "test@example.com"}}, nil
	}
	return nil, fmt.Errorf("invalid token")
}

func serve(t *testing.T, header string, handlers ...gin.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	g := gin.New()
	g.GET("/", handlers...)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rw := httptest.NewRecorder()
	g.ServeHTTP(rw, req)
	return rw
}

func ok(c *gin.Context) { c.Status(http.StatusOK) }

func TestAuthMiddleware_NoHeader(t *testing.T) {
	rw := serve(t, "", AuthMiddleware(&fakeVerifier{}), ok)
	require.Equal(t, http.StatusUnauthorized, rw.Code)
}

func TestAuthMiddleware_InvalidHeader(t *testing.T) {
	rw := serve(t, "BadHeader", AuthMiddleware(&fakeVerifier{}), ok)
	require.Equal(t, http.StatusUnauthorized, rw.Code)

	rw = serve(t, "Bearer forged", AuthMiddleware(&fakeVerifier{}), ok)
	require.Equal(t, http.StatusUnauthorized, rw.Code)
}

func TestAuthMiddleware_RequiresSubject(t *testing.T) {
	rw := serve(t, "Bearer anonymous", AuthMiddleware(&fakeVerifier{}), ok)
	require.Equal(t, http.StatusUnauthorized, rw.Code)
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	var user string
	var claims interface{}
	rw := serve(t, "Bearer goodtoken", AuthMiddleware(&fakeVerifier{}), func(c *gin.Context) {
		user, _ = UserID(c)
		claims, _ = c.Get(ClaimsKey)
		c.Status(http.StatusOK)
	})
	require.Equal(t, http.StatusOK, rw.Code)
	require.Equal(t, "user1", user)
	require.Equal(t, "test@example.com", claims.(map[string]interface{})["email"])
}

func TestProvisionMiddleware(t *testing.T) {
	var seen []string
	upsert := func(ctx context.Context, claims map[string]interface{}) error {
		seen = append(seen, claims["sub"].(string))
		return errors.New("mongo down")
	}
	rw := serve(t, "Bearer goodtoken", AuthMiddleware(&fakeVerifier{}), ProvisionMiddleware(upsert), ok)
	require.Equal(t, http.StatusOK, rw.Code, "provisioning failures do not block the request")
	require.Equal(t, []string{"user1"}, seen)
}
