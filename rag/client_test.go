package rag

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fabfab/papermind/config"
)

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestClient(baseURL string) *Client {
	return NewClient(config.Config{RAG: config.RAGConfig{BaseURL: baseURL}}, discardLogger())
}

func TestStatusSynthesizesDownResponse(t *testing.T) {
	c := newTestClient("http://127.0.0.1:1")

	status := c.Status(context.Background())
	if status.ServerUp {
		t.Fatal("unreachable service must report server down")
	}
	if status.Error == "" {
		t.Fatal("transport failure must carry error detail")
	}
}

func TestStatusReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status":      "ok",
			"data_loaded": true,
			"index_ready": false,
		})
	}))
	defer srv.Close()

	status := newTestClient(srv.URL).Status(context.Background())
	if !status.ServerUp {
		t.Fatal("reachable service must report server up")
	}
	if !status.DataLoaded || status.IndexReady {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestContext(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/context" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]any{
			"context": "a summary",
			"sources": []map[string]any{
				{"doc_id": 7, "title": "Invoice 42", "score": 0.92},
			},
		})
	}))
	defer srv.Close()

	resp, err := newTestClient(srv.URL).Context(context.Background(), "what was invoiced?", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Context != "a summary" {
		t.Fatalf("unexpected context: %q", resp.Context)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].DocumentID != 7 {
		t.Fatalf("unexpected sources: %+v", resp.Sources)
	}

	if got["question"] != "what was invoiced?" {
		t.Fatalf("unexpected question payload: %v", got["question"])
	}
	if got["max_sources"] != float64(5) {
		t.Fatalf("unexpected max_sources payload: %v", got["max_sources"])
	}
}

func TestContextServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"index not ready"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL).Context(context.Background(), "anything", 5); err == nil {
		t.Fatal("expected error from failing service")
	}
}

func TestStartIndexingPassthrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/indexing/start" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var got map[string]any
		json.NewDecoder(r.Body).Decode(&got)
		if got["force"] != true || got["background"] != false {
			t.Errorf("unexpected payload: %v", got)
		}
		w.Write([]byte(`{"started":true}`))
	}))
	defer srv.Close()

	raw, err := newTestClient(srv.URL).StartIndexing(context.Background(), true, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(raw) != `{"started":true}` {
		t.Fatalf("passthrough must not reshape the body, got %s", raw)
	}
}
