package stockload

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/meridian-sfa/meridian-sfa/internal/rbac"
	"github.com/meridian-sfa/meridian-sfa/internal/shared"
)

func newTestRouter(repo *memoryRepo) chi.Router {
	handler := NewHandler(testLogger(), NewService(repo, nil, nil), rbac.Middleware{})
	r := chi.NewRouter()
	r.Route("/stock-loads", handler.MountRoutes)
	return r
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func do(t *testing.T, router chi.Router, actor *shared.Actor, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req = req.WithContext(shared.ContextWithActor(req.Context(), actor))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestRequestRoutePinsAgentToOwnIdentity(t *testing.T) {
	repo := newMemoryRepo()
	router := newTestRouter(repo)

	actor := &shared.Actor{UserID: 50, AgentID: 5, Roles: []string{rbac.RoleAgent}}
	rr := do(t, router, actor, http.MethodPost, "/stock-loads",
		`{"agent_id": 99, "warehouse_id": 1, "lines": [{"product_id": 7, "qty": 10}]}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	var load StockLoad
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &load))
	// The payload's agent_id is ignored for agent callers.
	require.Equal(t, int64(5), load.AgentID)
	require.Equal(t, int64(50), load.RequestedBy)
	require.Equal(t, int64(5), repo.loads[load.ID].AgentID)
}

func TestRequestRouteKeepsPayloadAgentForWarehouse(t *testing.T) {
	repo := newMemoryRepo()
	router := newTestRouter(repo)

	actor := &shared.Actor{UserID: 3, Roles: []string{rbac.RoleWarehouse}}
	rr := do(t, router, actor, http.MethodPost, "/stock-loads",
		`{"agent_id": 8, "warehouse_id": 1, "lines": [{"product_id": 7, "qty": 10}]}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	var load StockLoad
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &load))
	require.Equal(t, int64(8), load.AgentID)
}

func TestAgentCannotReleaseOrApprove(t *testing.T) {
	repo := newMemoryRepo()
	router := newTestRouter(repo)

	actor := &shared.Actor{UserID: 50, AgentID: 5, Roles: []string{rbac.RoleAgent}}
	rr := do(t, router, actor, http.MethodPost, "/stock-loads/1/release", `{}`)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(t, router, actor, http.MethodPost, "/stock-loads/1/approve", `{}`)
	require.Equal(t, http.StatusForbidden, rr.Code)
}
