package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/immxrtalbeast/videocall/internal/callscreen"
	"github.com/immxrtalbeast/videocall/internal/domain"
	"github.com/immxrtalbeast/videocall/internal/media"
	"github.com/immxrtalbeast/videocall/internal/repository"
	"github.com/immxrtalbeast/videocall/internal/service"
	"github.com/immxrtalbeast/videocall/internal/token"
)

type stack struct {
	srv     *httptest.Server
	issuer  *token.Issuer
	manager *callscreen.Manager
}

// newStack wires the real components behind one test server; the token
// client talks to the issuer mounted on that same server.
func newStack(t *testing.T) *stack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var handler http.Handler
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	issuer, err := token.NewIssuer("test-secret", time.Minute, nil)
	require.NoError(t, err)
	engine, err := media.NewEngine(nil, time.Second, nil)
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	manager := callscreen.NewManager(repository.NewInMemorySessionRepository(), callscreen.Options{}, nil)
	t.Cleanup(func() { manager.Shutdown(context.Background()) })

	joins := service.NewJoinService(token.NewClient(srv.URL), manager, nil)
	handler = SetupRouter(
		[]string{"http://localhost:3000"},
		NewBridgeController(service.NewBridge(joins, nil), 5*time.Second, nil),
		NewScreenController(manager, engine, nil),
		NewTokenController(issuer),
	)

	return &stack{srv: srv, issuer: issuer, manager: manager}
}

func (s *stack) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, s.srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	decoded := map[string]any{}
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	}
	return resp.StatusCode, decoded
}

func (s *stack) join(t *testing.T, identity string) string {
	t.Helper()
	status, body := s.do(t, http.MethodPost, "/api/bridge/exec", gin.H{
		"action": "join",
		"args":   []string{"demo", identity, "", "client-1"},
	})
	require.Equal(t, http.StatusOK, status, body)
	result := body["result"].(map[string]any)
	return result["screen_id"].(string)
}

func TestTokenEndpoint(t *testing.T) {
	s := newStack(t)

	resp, err := http.PostForm(s.srv.URL+token.DefaultPath, url.Values{"roomName": {"demo"}, "identity": {"bob"}})
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Token     string `json:"token"`
		ExpiresAt string `json:"expiresAt"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body.ExpiresAt)
	claims, err := s.issuer.Verify(body.Token)
	require.NoError(t, err)
	assert.Equal(t, "demo", claims.Room)
	assert.Equal(t, "bob", claims.Identity)

	resp, err = http.PostForm(s.srv.URL+token.DefaultPath, url.Values{"roomName": {"demo"}})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBridgeJoinLaunchesScreen(t *testing.T) {
	s := newStack(t)

	screenID := s.join(t, "bob@example.com")

	status, body := s.do(t, http.MethodGet, "/api/screens/active", nil)
	require.Equal(t, http.StatusOK, status)
	screen := body["screen"].(map[string]any)
	assert.Equal(t, screenID, screen["id"])
	assert.Equal(t, "demo", screen["room"])
	assert.Equal(t, "bob@example.com", screen["identity"])
	assert.Equal(t, true, screen["active"])

	participants := screen["participants"].([]any)
	require.Len(t, participants, 1)
	local := participants[0].(map[string]any)
	assert.Equal(t, "NO_VIDEO", local["state"])
	assert.Equal(t, "You", local["layout"].(map[string]any)["identity"])
}

func TestBridgeRejections(t *testing.T) {
	s := newStack(t)

	status, body := s.do(t, http.MethodPost, "/api/bridge/exec", gin.H{"action": "dance", "args": []string{}})
	assert.Equal(t, http.StatusNotImplemented, status)
	assert.Equal(t, "Unsupported", body["error"])

	status, body = s.do(t, http.MethodPost, "/api/bridge/exec", gin.H{"action": "join", "args": []string{"demo"}})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "InvalidArgument", body["error"])

	status, body = s.do(t, http.MethodPost, "/api/bridge/exec", gin.H{"action": "join", "args": []string{"demo", "", "", "c"}})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "InvalidArgument", body["error"])

	status, _ = s.do(t, http.MethodPost, "/api/bridge/exec", gin.H{"args": []string{}})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = s.do(t, http.MethodPost, "/api/bridge/exec", gin.H{"action": "cancel"})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["result"].(map[string]any)["cancelled"])
}

func TestParticipantLifecycle(t *testing.T) {
	s := newStack(t)
	screenID := s.join(t, "bob")
	base := "/api/screens/" + screenID + "/participants"

	status, body := s.do(t, http.MethodPost, base, gin.H{"identity": "carol@example.com", "initial_state": "video", "scale_mode": "FILL"})
	require.Equal(t, http.StatusCreated, status, body)
	p := body["participant"].(map[string]any)
	assert.Equal(t, "VIDEO", p["state"])
	assert.Equal(t, "carol", p["layout"].(map[string]any)["identity"])
	assert.Equal(t, "FILL", p["layout"].(map[string]any)["scale_mode"])

	status, body = s.do(t, http.MethodPost, base, gin.H{"identity": "carol@example.com"})
	assert.Equal(t, http.StatusConflict, status, body)

	status, body = s.do(t, http.MethodPost, base, gin.H{"identity": "dave", "initial_state": "BLURRY"})
	assert.Equal(t, http.StatusBadRequest, status, body)

	status, body = s.do(t, http.MethodPatch, base+"/carol@example.com", gin.H{"switched_off": true, "network_quality": 3})
	require.Equal(t, http.StatusOK, status, body)
	p = body["participant"].(map[string]any)
	assert.Equal(t, "SWITCHED_OFF", p["state"])
	assert.Equal(t, true, p["layout"].(map[string]any)["skip_decode"])
	assert.Equal(t, float64(3), p["layout"].(map[string]any)["network_quality"])

	status, _ = s.do(t, http.MethodPatch, base+"/carol@example.com", gin.H{"scale_mode": "STRETCH"})
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = s.do(t, http.MethodPatch, base+"/carol@example.com", gin.H{"network_quality": 9})
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = s.do(t, http.MethodPatch, base+"/nobody", gin.H{"muted": true})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = s.do(t, http.MethodDelete, base+"/carol@example.com", nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = s.do(t, http.MethodDelete, base+"/carol@example.com", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestScreenLookupErrors(t *testing.T) {
	s := newStack(t)

	status, _ := s.do(t, http.MethodGet, "/api/screens/active", nil)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = s.do(t, http.MethodGet, "/api/screens/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = s.do(t, http.MethodGet, "/api/screens/6f1c2d9e-1111-4c4c-9a9a-000000000000", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestCloseScreen(t *testing.T) {
	s := newStack(t)
	screenID := s.join(t, "bob")

	status, _ := s.do(t, http.MethodDelete, "/api/screens/"+screenID, nil)
	require.Equal(t, http.StatusNoContent, status)

	status, body := s.do(t, http.MethodGet, "/api/screens/"+screenID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["screen"].(map[string]any)["active"])

	status, _ = s.do(t, http.MethodPost, "/api/screens/"+screenID+"/participants", gin.H{"identity": "carol"})
	assert.Equal(t, http.StatusGone, status)

	status, body = s.do(t, http.MethodGet, "/api/screens", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["screens"].([]any), 1)
}

func TestOfferRejectsInvalidSDP(t *testing.T) {
	s := newStack(t)
	screenID := s.join(t, "bob")

	status, body := s.do(t, http.MethodPost, "/api/screens/"+screenID+"/offer", gin.H{
		"identity": "carol",
		"sdp":      gin.H{"type": "offer", "sdp": "garbage"},
	})

	assert.Equal(t, http.StatusBadRequest, status, body)
	assert.Equal(t, "InvalidArgument", body["error"])
}

func TestDirectiveStream(t *testing.T) {
	s := newStack(t)
	screenID := s.join(t, "bob")

	wsURL := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/api/screens/" + screenID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var frame callscreen.Frame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "bob", frame.Identity)
	require.NotNil(t, frame.Layout)
	assert.Equal(t, "You", frame.Layout.Identity)

	status, _ := s.do(t, http.MethodPost, "/api/screens/"+screenID+"/participants", gin.H{"identity": "carol", "initial_state": "VIDEO"})
	require.Equal(t, http.StatusCreated, status)

	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "carol", frame.Identity)
	require.NotEmpty(t, frame.Directives)
	assert.Equal(t, "show_group", string(frame.Directives[0].Kind))

	status, _ = s.do(t, http.MethodDelete, "/api/screens/"+screenID, nil)
	require.Equal(t, http.StatusNoContent, status)
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

type stuckBridge struct {
	cancelled atomic.Uint64
}

func (b *stuckBridge) Execute(context.Context, string, []string, service.Callback) (uint64, error) {
	return 7, nil
}

func (b *stuckBridge) Cancel(attempt uint64) bool {
	b.cancelled.Store(attempt)
	return true
}

func TestBridgeTimeoutCancelsAttempt(t *testing.T) {
	gin.SetMode(gin.TestMode)
	bridge := &stuckBridge{}
	router := SetupRouter(nil, NewBridgeController(bridge, 20*time.Millisecond, nil), nil, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/bridge/exec", strings.NewReader(`{"action":"join","args":["a","b","c","d"]}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, uint64(7), bridge.cancelled.Load())
	assert.Contains(t, rec.Body.String(), string(domain.KindTransportFailure))
}
