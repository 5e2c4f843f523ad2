package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"whiteboardAPI/internal/notification"
	"whiteboardAPI/internal/types/policy"
	"whiteboardAPI/internal/voting"
	"whiteboardAPI/middleware"
	"whiteboardAPI/services"
)

// bearer tokens are the user ids themselves
func tokenIsUser(_ context.Context, token string) (string, error) {
	if token == "" || token == "invalid" {
		return "", errors.New("invalid token")
	}
	return token, nil
}

type testAPI struct {
	router  *mux.Router
	devices *notification.Devices
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	log := zap.NewNop()
	manager := services.NewWhiteboardManager(services.SessionDeps{
		Authz: services.NewAuthorizer([]string{"admin"}),
		Log:   log,
		DefaultModeration: policy.Config{
			Enabled:      true,
			AutoModerate: false,
			Sensitivity:  policy.DefaultSensitivity,
		},
		VoteThreshold: voting.DefaultThreshold,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = manager.Shutdown(ctx)
	})

	devices := notification.NewDevices()
	r := mux.NewRouter()
	Routes{
		Whiteboards: NewWhiteboardHandler(manager, services.NewInviteService("https://board.test"), 10, 20, log),
		Moderation:  NewModerationHandler(manager, log),
		Voting:      NewVotingHandler(manager, log),
		Devices:     NewDeviceHandler(devices, log),
	}.Mount(r, r, middleware.NewAuth(tokenIsUser, log))

	return &testAPI{router: r, devices: devices}
}

func (a *testAPI) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+user)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (a *testAPI) createBoard(t *testing.T, host string) string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/v1/whiteboards", host, map[string]string{"title": "Planning"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[map[string]any](t, rec)
	assert.Equal(t, "/api/v1/whiteboards/ws/"+resp["sessionId"].(string), resp["wsUrl"])
	return resp["sessionId"].(string)
}

func TestWhiteboardRoutes_CreateAndList(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/v1/whiteboards", "", map[string]string{"title": "x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/whiteboards", "host", map[string]string{"title": strings.Repeat("a", 200)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	id := api.createBoard(t, "host")

	rec = api.do(t, http.MethodGet, "/api/v1/whiteboards", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]map[string]any](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0]["sessionId"])
	assert.Equal(t, true, list[0]["live"])

	rec = api.do(t, http.MethodGet, "/api/v1/whiteboards/"+id, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "host", decode[map[string]any](t, rec)["hostId"])

	rec = api.do(t, http.MethodGet, "/api/v1/whiteboards/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/whiteboards/"+id+"/invite", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://board.test/whiteboards/"+id, decode[map[string]any](t, rec)["joinUrl"])
}

func TestElementRoutes_VisibilityAndModeration(t *testing.T) {
	api := newTestAPI(t)
	id := api.createBoard(t, "host")
	base := "/api/v1/whiteboards/" + id

	rec := api.do(t, http.MethodPost, base+"/elements", "alice", map[string]any{"type": "text", "x": 1, "y": 2, "text": "hello"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	el := decode[map[string]any](t, rec)
	elementID := el["id"].(string)
	assert.Equal(t, "pending", el["moderationStatus"])
	assert.Equal(t, "alice", el["authorId"])

	rec = api.do(t, http.MethodPost, base+"/elements", "alice", map[string]any{"type": "hexagon"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// pending content is hidden from other participants
	rec = api.do(t, http.MethodGet, base+"/elements/"+elementID, "bob", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = api.do(t, http.MethodGet, base+"/elements", "bob", nil)
	assert.Empty(t, decode[[]map[string]any](t, rec))

	rec = api.do(t, http.MethodGet, base+"/elements", "alice", nil)
	mine := decode[[]map[string]any](t, rec)
	require.Len(t, mine, 1)
	assert.Equal(t, "pending_review", mine[0]["badge"])

	rec = api.do(t, http.MethodPost, base+"/elements/"+elementID+"/approve", "bob", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPost, base+"/elements/"+elementID+"/approve", "host", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "approved", decode[map[string]any](t, rec)["moderationStatus"])

	rec = api.do(t, http.MethodGet, base+"/elements/"+elementID, "bob", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodPatch, base+"/elements/"+elementID, "bob", map[string]any{"x": 50})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 50.0, decode[map[string]any](t, rec)["x"])

	rec = api.do(t, http.MethodPost, base+"/elements/"+elementID+"/reject", "admin", map[string]string{"reason": "nonsense"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, base+"/elements/"+elementID+"/reject", "admin", map[string]string{"reason": "unwanted_symbols"})
	require.Equal(t, http.StatusOK, rec.Code)
	rejected := decode[map[string]any](t, rec)
	assert.Equal(t, "rejected", rejected["moderationStatus"])
	assert.Equal(t, "unwanted_symbols", rejected["moderationReason"])

	rec = api.do(t, http.MethodPost, base+"/elements/missing/approve", "admin", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestModerationRoutes_ConfigAndRun(t *testing.T) {
	api := newTestAPI(t)
	id := api.createBoard(t, "host")
	base := "/api/v1/whiteboards/" + id

	rec := api.do(t, http.MethodPost, base+"/elements", "alice", map[string]any{"type": "text", "text": "what an idiot"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = api.do(t, http.MethodPut, base+"/moderation", "host", map[string]any{"enabled": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	cfg := map[string]any{"enabled": true, "autoModerate": true, "sensitivity": 90, "customBlocklist": []string{"Idiot"}}
	rec = api.do(t, http.MethodPut, base+"/moderation", "alice", cfg)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPut, base+"/moderation", "host", cfg)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 90.0, decode[map[string]any](t, rec)["sensitivity"])

	rec = api.do(t, http.MethodPost, base+"/moderation/run", "host", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[map[string]float64](t, rec)
	assert.Equal(t, 1.0, summary["processed"])
	assert.Equal(t, 0.0, summary["pending"])

	rec = api.do(t, http.MethodGet, base+"/moderation", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]any](t, rec)["autoModerate"])
}

func TestVotingRoutes(t *testing.T) {
	api := newTestAPI(t)
	id := api.createBoard(t, "host")
	base := "/api/v1/whiteboards/" + id

	rec := api.do(t, http.MethodGet, base+"/filters", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[voting.Snapshot](t, rec)
	assert.Len(t, snap.Filters, len(voting.DefaultCatalog))

	// not connected over websocket, so not a participant
	rec = api.do(t, http.MethodPost, base+"/filters/vote", "alice", map[string]string{"filterId": "sepia"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(t, http.MethodPost, base+"/filters/vote", "alice", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodDelete, base+"/filters/vote", "alice", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDeviceRoutes(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/v1/devices", "host", map[string]string{"token": "abc", "platform": "symbian"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/devices", "host", map[string]string{"token": "abc", "platform": "ios"})
	require.Equal(t, http.StatusCreated, rec.Code)
	tokens, err := api.devices.TokensFor(context.Background(), []string{"host"})
	require.NoError(t, err)
	assert.Equal(t, []notification.DeviceToken{{Token: "abc", Platform: "ios"}}, tokens)

	rec = api.do(t, http.MethodDelete, "/api/v1/devices/abc", "host", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	tokens, err = api.devices.TokensFor(context.Background(), []string{"host"})
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestRoutes_AnonymousAccess(t *testing.T) {
	api := newTestAPI(t)
	id := api.createBoard(t, "host")
	base := "/api/v1/whiteboards/" + id

	tests := []struct {
		name string
		path string
		want int
	}{
		{"session list", "/api/v1/whiteboards", http.StatusOK},
		{"session info", base, http.StatusOK},
		{"invite", base + "/invite", http.StatusOK},
		{"filter snapshot", base + "/filters", http.StatusOK},
		{"element list", base + "/elements", http.StatusUnauthorized},
		{"single element", base + "/elements/some-element", http.StatusUnauthorized},
		{"moderation config", base + "/moderation", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, http.MethodGet, tt.path, "", nil)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}
