package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/mailcore/mailcore/internal/document"
	"github.com/mailcore/mailcore/internal/document/handler"
	"github.com/mailcore/mailcore/internal/document/repository"
	"github.com/mailcore/mailcore/internal/document/service"
	"github.com/mailcore/mailcore/internal/users"
	"github.com/mailcore/mailcore/pkg/middleware"
)

func identityRouter(t *testing.T) (*gin.Engine, *users.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := users.NewService(users.NewMemoryUserRepository())
	engine := service.New(service.Deps{Repo: repository.NewMemoryRepo(), Identities: svc}, service.Options{WaitForIndex: true})

	r := gin.New()
	api := r.Group("/api/v2", func(c *gin.Context) {
		if u := c.GetHeader("X-User"); u != "" {
			c.Set(middleware.UserIDKey, u)
		}
		c.Next()
	})
	NewIdentityHandler(svc).Register(api)
	handler.New(engine).Register(api)
	return r, svc
}

func call(r *gin.Engine, method, path, user string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User", user)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdentityRoutes(t *testing.T) {
	r, svc := identityRouter(t)
	_, err := svc.UpsertFromClaims(context.Background(), map[string]interface{}{"sub": "alice", "email": "a@x.org"})
	require.NoError(t, err)

	w := call(r, http.MethodPost, "/api/v2/identities", "alice", map[string]string{"address": "not-an-address"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = call(r, http.MethodPost, "/api/v2/identities", "alice", map[string]string{"address": "Alias@x.org", "display_name": "Alias"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var id map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &id))
	require.Equal(t, "alias@x.org", id["address"])
	require.NotEmpty(t, id["identity_id"])

	w = call(r, http.MethodGet, "/api/v2/identities", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Identities []map[string]interface{} `json:"identities"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Identities, 2)

	require.Equal(t, http.StatusUnauthorized, call(r, http.MethodGet, "/api/v2/identities", "", nil).Code)
}

func TestAddedIdentityCanSendDrafts(t *testing.T) {
	r, _ := identityRouter(t)
	draft := map[string]interface{}{
		"body":         "hello",
		"participants": []interface{}{map[string]interface{}{"type": "From", "address": "alias@x.org"}},
	}

	w := call(r, http.MethodPost, "/api/v2/messages", "bob", draft)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	require.Contains(t, w.Body.String(), string(document.NoSenderIdentity))

	w = call(r, http.MethodPost, "/api/v2/identities", "bob", map[string]string{"address": "alias@x.org"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = call(r, http.MethodPost, "/api/v2/messages", "bob", draft)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}
