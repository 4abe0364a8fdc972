package testutil

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewTestServer(t *testing.T) {
	srv, st := NewTestServer(t)
	if srv == nil {
		t.Fatal("expected server, got nil")
	}
	if st == nil {
		t.Fatal("expected store, got nil")
	}
}

func TestAssertJSONResponse(t *testing.T) {
	rr := httptest.NewRecorder()
	rr.Body.WriteString(`{"status":"ok","result":{"conversationId":"conv_abc"}}`)

	response := AssertJSONResponse(t, rr, "ok")
	result, ok := response["result"].(map[string]interface{})
	if !ok {
		t.Fatal("expected result object in response")
	}
	if result["conversationId"] != "conv_abc" {
		t.Errorf("expected conversationId 'conv_abc', got %v", result["conversationId"])
	}
}

func TestCreateHTTPRequest(t *testing.T) {
	req := CreateHTTPRequest(t, http.MethodPost, "/conversations/message", map[string]string{
		"conversationId": "conv_abc",
		"message":        "hello",
	})
	if req.Method != http.MethodPost {
		t.Errorf("expected POST, got %s", req.Method)
	}
	if req.URL.Path != "/conversations/message" {
		t.Errorf("unexpected path %s", req.URL.Path)
	}
	if req.Body == nil {
		t.Error("expected non-nil body")
	}
}

func TestCreateHTTPRequestNoBody(t *testing.T) {
	req := CreateHTTPRequest(t, http.MethodGet, "/health", nil)
	if req.Method != http.MethodGet {
		t.Errorf("expected GET, got %s", req.Method)
	}
}

func TestMustMarshalRoundTrip(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}
	data := MustMarshalJSON(t, payload{Name: "sage"})
	var decoded payload
	MustUnmarshalJSON(t, data, &decoded)
	if decoded.Name != "sage" {
		t.Errorf("expected 'sage', got %q", decoded.Name)
	}
}
