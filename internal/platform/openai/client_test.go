package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/progression-engine/internal/platform/logger"
)

func writeOutput(w http.ResponseWriter, text string) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"output": []map[string]any{{
			"type": "message",
			"role": "assistant",
			"content": []map[string]any{{
				"type": "output_text",
				"text": text,
			}},
		}},
		"usage": map[string]any{"input_tokens": 12, "output_tokens": 4},
	})
}

func newTestClient(t *testing.T, url string, retries int) *client {
	t.Helper()
	c, err := NewClient(logger.Nop(), Config{APIKey: "test", BaseURL: url, MaxRetries: retries})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	cc := c.(*client)
	cc.initialBackoff = time.Millisecond
	return cc
}

func TestGenerateJSONParsesStructuredOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/responses" {
			t.Errorf("path: %s", r.URL.Path)
		}
		var req responsesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Text.Format["name"] != "quiz" || len(req.Input) != 2 {
			t.Errorf("unexpected request: %+v", req)
		}
		writeOutput(w, `{"questions":[{"question":"q"}]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0)
	obj, err := c.GenerateJSON(context.Background(), "sys", "user", "quiz", map[string]any{"type": "object"})
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	qs, ok := obj["questions"].([]any)
	if !ok || len(qs) != 1 {
		t.Fatalf("questions: %+v", obj)
	}
}

func TestRetriesServerErrorsThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeOutput(w, "hello")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 3)
	text, err := c.GenerateText(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if text != "hello" || atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("text=%q calls=%d", text, calls)
	}
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 3)
	if _, err := c.GenerateText(context.Background(), "sys", "user"); err == nil {
		t.Fatalf("expected error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("calls: want=1 got=%d", calls)
	}
}

func TestUnsupportedTemperatureRetriesWithout(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		var req responsesRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Temperature != nil {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`Unsupported parameter: 'temperature'`))
			return
		}
		writeOutput(w, "ok")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0)
	if _, err := c.GenerateText(context.Background(), "sys", "user"); err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if !c.modelIsNoTemp(c.model) {
		t.Fatalf("model should be remembered as no-temperature")
	}
	if _, err := c.GenerateText(context.Background(), "sys", "user"); err != nil {
		t.Fatalf("second GenerateText: %v", err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("calls: want=3 got=%d", calls)
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(logger.Nop(), Config{}); err == nil {
		t.Fatalf("expected missing key error")
	}
}
