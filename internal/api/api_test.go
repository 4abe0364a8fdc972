package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ecsf-gov/sage/internal/flow"
	"github.com/ecsf-gov/sage/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.InMemoryStore) {
	t.Helper()
	engine, st := flow.NewScriptedEngine()
	srv, err := NewServer(WithEngine(engine), WithStore(st))
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return srv, st
}

func postJSON(t *testing.T, handler http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var envelope map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return envelope
}

func resultOf(t *testing.T, envelope map[string]interface{}) map[string]interface{} {
	t.Helper()
	result, ok := envelope["result"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected result object, got %v", envelope["result"])
	}
	return result
}

func startConversation(t *testing.T, handler http.Handler) string {
	t.Helper()
	rr := postJSON(t, handler, "/conversations/start", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	result := resultOf(t, decodeEnvelope(t, rr))
	id, _ := result["conversationId"].(string)
	if id == "" {
		t.Fatal("start: missing conversationId in result")
	}
	return id
}

func TestStartHandler(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	rr := postJSON(t, handler, "/conversations/start", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	envelope := decodeEnvelope(t, rr)
	if envelope["status"] != "ok" {
		t.Errorf("expected status ok, got %v", envelope["status"])
	}
	result := resultOf(t, envelope)
	id, _ := result["conversationId"].(string)
	if !strings.HasPrefix(id, "conv_") {
		t.Errorf("expected generated conversation ID, got %q", id)
	}
	choices, ok := result["choices"].([]interface{})
	if !ok || len(choices) == 0 {
		t.Error("expected welcome menu choices in result")
	}
}

func TestStartHandlerWithProvidedID(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	rr := postJSON(t, handler, "/conversations/start", `{"conversationId":"conv_fixed"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	result := resultOf(t, decodeEnvelope(t, rr))
	if result["conversationId"] != "conv_fixed" {
		t.Errorf("expected conv_fixed, got %v", result["conversationId"])
	}
}

func TestStartHandlerMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/conversations/start", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rr.Code)
	}
	if allow := rr.Header().Get("Allow"); allow != http.MethodPost {
		t.Errorf("expected Allow: POST header, got %q", allow)
	}
}

func TestMessageHandler(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()
	id := startConversation(t, handler)

	rr := postJSON(t, handler, "/conversations/message",
		`{"conversationId":"`+id+`","message":"I need to onboard a new hire"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	result := resultOf(t, decodeEnvelope(t, rr))
	flowInfo, ok := result["flow"].(map[string]interface{})
	if !ok {
		t.Fatal("expected flow block in result")
	}
	if flowInfo["intent"] != "onboarding" {
		t.Errorf("expected onboarding intent, got %v", flowInfo["intent"])
	}
}

func TestMessageHandlerEmptyConversationID(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	rr := postJSON(t, handler, "/conversations/message", `{"conversationId":"","message":"hi"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
	envelope := decodeEnvelope(t, rr)
	if envelope["status"] != "error" {
		t.Errorf("expected error status, got %v", envelope["status"])
	}
}

func TestMessageHandlerInvalidJSON(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	rr := postJSON(t, handler, "/conversations/message", `{not json`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
}

func TestChoiceHandler(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()
	id := startConversation(t, handler)

	rr := postJSON(t, handler, "/conversations/choice",
		`{"conversationId":"`+id+`","choice":"it_support"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	result := resultOf(t, decodeEnvelope(t, rr))
	flowInfo, ok := result["flow"].(map[string]interface{})
	if !ok {
		t.Fatal("expected flow block in result")
	}
	if flowInfo["intent"] != "it_support" {
		t.Errorf("expected it_support intent, got %v", flowInfo["intent"])
	}
}

func TestActionHandlerUnknownConversation(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	rr := postJSON(t, handler, "/conversations/action",
		`{"conversationId":"conv_missing","actionId":"create_records","confirmed":true}`)
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestResetHandler(t *testing.T) {
	srv, st := newTestServer(t)
	handler := srv.Handler()
	id := startConversation(t, handler)

	rr := postJSON(t, handler, "/conversations/message",
		`{"conversationId":"`+id+`","message":"my laptop is broken"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("message: expected 200, got %d", rr.Code)
	}

	rr = postJSON(t, handler, "/conversations/reset", `{"conversationId":"`+id+`"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("reset: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	conv, err := st.GetContext(id)
	if err != nil {
		t.Fatalf("GetContext failed: %v", err)
	}
	if conv == nil {
		t.Fatal("expected fresh conversation after reset")
	}
	if conv.TurnCount != 0 {
		t.Errorf("expected turn count reset to 0, got %d", conv.TurnCount)
	}
}

func TestHealthHandler(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	result := resultOf(t, decodeEnvelope(t, rr))
	if result["status"] != "ok" {
		t.Errorf("expected ok health status, got %v", result["status"])
	}
	if result["store"] != "ok" {
		t.Errorf("expected store ok, got %v", result["store"])
	}
	if result["gateway"] != "disabled" {
		t.Errorf("expected gateway disabled, got %v", result["gateway"])
	}
}

func TestHealthHandlerGatewayReported(t *testing.T) {
	engine, st := flow.NewScriptedEngine()
	srv, err := NewServer(
		WithEngine(engine),
		WithStore(st),
		WithGateway(&flow.MockGateway{}),
	)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	result := resultOf(t, decodeEnvelope(t, rr))
	if result["gateway"] != "ok" {
		t.Errorf("expected gateway ok, got %v", result["gateway"])
	}
}

func TestNewServerRequiresDependencies(t *testing.T) {
	if _, err := NewServer(); err == nil {
		t.Error("expected error when engine is missing")
	}
	engine, _ := flow.NewScriptedEngine()
	if _, err := NewServer(WithEngine(engine)); err == nil {
		t.Error("expected error when store is missing")
	}
}

func TestWriteJSONResponseFallback(t *testing.T) {
	rr := httptest.NewRecorder()
	writeJSONResponse(rr, http.StatusOK, func() {})
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 on marshal failure, got %d", rr.Code)
	}
	if !bytes.Contains(rr.Body.Bytes(), []byte(`"status":"error"`)) {
		t.Errorf("expected fallback error envelope, got %s", rr.Body.String())
	}
}
