package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fabfab/papermind/config"
	"github.com/fabfab/papermind/llm"
	"github.com/fabfab/papermind/rag"
)

type stubProvider struct {
	result llm.Result
	status llm.Status

	lastRequest llm.Request
}

func (s *stubProvider) AnalyzeDocument(ctx context.Context, req llm.Request) llm.Result {
	s.lastRequest = req
	return s.result
}

func (s *stubProvider) AnalyzePlayground(ctx context.Context, content, instruction string) llm.Result {
	return s.result
}

func (s *stubProvider) GenerateText(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error) {
	return "", nil
}

func (s *stubProvider) CheckStatus(ctx context.Context) llm.Status {
	return s.status
}

type stubAsker struct {
	answer rag.Answer
	err    error
}

func (s *stubAsker) AskQuestion(ctx context.Context, question string) (rag.Answer, error) {
	return s.answer, s.err
}

type stubRetrieval struct {
	status rag.StatusResponse
	raw    json.RawMessage
	err    error
}

func (s *stubRetrieval) Status(ctx context.Context) rag.StatusResponse {
	return s.status
}

func (s *stubRetrieval) StartIndexing(ctx context.Context, force, background bool) (json.RawMessage, error) {
	return s.raw, s.err
}

func (s *stubRetrieval) CheckIndexing(ctx context.Context) (json.RawMessage, error) {
	return s.raw, s.err
}

func (s *stubRetrieval) IndexingStatus(ctx context.Context) (json.RawMessage, error) {
	return s.raw, s.err
}

func (s *stubRetrieval) Initialize(ctx context.Context, force bool) (json.RawMessage, error) {
	return s.raw, s.err
}

var (
	_ llm.Provider = (*stubProvider)(nil)
	_ Asker        = (*stubAsker)(nil)
	_ Retrieval    = (*stubRetrieval)(nil)
)

func newTestServer(provider *stubProvider, asker *stubAsker, retrieval *stubRetrieval) *Server {
	logger := log.New(io.Discard, "", 0)
	return New(config.Config{}, provider, asker, retrieval, logger)
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(&stubProvider{}, &stubAsker{}, &stubRetrieval{})

	rec := doRequest(t, s, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestStatusCombinesProviderAndRetrieval(t *testing.T) {
	s := newTestServer(
		&stubProvider{status: llm.Status{Status: "ok", Model: "gpt-4o-mini"}},
		&stubAsker{},
		&stubRetrieval{status: rag.StatusResponse{ServerUp: true, IndexReady: true}},
	)

	rec := doRequest(t, s, http.MethodGet, "/api/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	var got statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Provider.Status != "ok" || !got.Retrieval.IndexReady {
		t.Fatalf("unexpected body: %+v", got)
	}
}

func TestAnalyzeRequiresContent(t *testing.T) {
	s := newTestServer(&stubProvider{}, &stubAsker{}, &stubRetrieval{})

	rec := doRequest(t, s, http.MethodPost, "/api/analyze", `{"content":"  "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAnalyzePassesRequestThrough(t *testing.T) {
	correspondent := "ACME Corp"
	provider := &stubProvider{result: llm.Result{
		Document: llm.Document{Title: "Invoice 42", Correspondent: &correspondent, Tags: []string{"Invoices"}},
		Usage:    llm.Usage{TotalTokens: 52},
	}}
	s := newTestServer(provider, &stubAsker{}, &stubRetrieval{})

	body := `{"content":"some text","documentId":7,"tags":["Invoices"],"customPrompt":"extract the total"}`
	rec := doRequest(t, s, http.MethodPost, "/api/analyze", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d, body %s", rec.Code, rec.Body.String())
	}

	if provider.lastRequest.DocumentID != 7 {
		t.Fatalf("document id lost: %+v", provider.lastRequest)
	}
	if provider.lastRequest.CustomPrompt != "extract the total" {
		t.Fatalf("custom prompt lost: %+v", provider.lastRequest)
	}

	var got llm.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Document.Title != "Invoice 42" || got.Usage.TotalTokens != 52 {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestAnalyzeFailureStaysHTTPOK(t *testing.T) {
	provider := &stubProvider{result: llm.Result{
		Document: llm.EmptyDocument(),
		Error:    "ai provider unavailable",
	}}
	s := newTestServer(provider, &stubAsker{}, &stubRetrieval{})

	rec := doRequest(t, s, http.MethodPost, "/api/analyze", `{"content":"some text"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("analysis failures are reported in-band, got %d", rec.Code)
	}

	var got llm.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Error == "" {
		t.Fatal("error field missing from degraded result")
	}
}

func TestAnalyzeRejectsUnknownFields(t *testing.T) {
	s := newTestServer(&stubProvider{}, &stubAsker{}, &stubRetrieval{})

	rec := doRequest(t, s, http.MethodPost, "/api/analyze", `{"content":"x","bogus":true}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
}

func TestChat(t *testing.T) {
	asker := &stubAsker{answer: rag.Answer{
		Answer:  "resposta",
		Sources: []rag.Source{{DocumentID: 7, Title: "Invoice 42"}},
	}}
	s := newTestServer(&stubProvider{}, asker, &stubRetrieval{})

	rec := doRequest(t, s, http.MethodPost, "/api/chat", `{"question":"o que foi faturado?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	var got rag.Answer
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Answer != "resposta" || len(got.Sources) != 1 {
		t.Fatalf("unexpected answer: %+v", got)
	}
}

func TestChatFailure(t *testing.T) {
	asker := &stubAsker{err: errors.New("failed to retrieve context for the question")}
	s := newTestServer(&stubProvider{}, asker, &stubRetrieval{})

	rec := doRequest(t, s, http.MethodPost, "/api/chat", `{"question":"pergunta"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestChatRequiresQuestion(t *testing.T) {
	s := newTestServer(&stubProvider{}, &stubAsker{}, &stubRetrieval{})

	rec := doRequest(t, s, http.MethodPost, "/api/chat", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestIndexingEndpointsPassThrough(t *testing.T) {
	retrieval := &stubRetrieval{raw: json.RawMessage(`{"state":"indexing"}`)}
	s := newTestServer(&stubProvider{}, &stubAsker{}, retrieval)

	cases := []struct {
		method, path, body string
	}{
		{http.MethodPost, "/api/indexing/start", `{"force":true}`},
		{http.MethodPost, "/api/indexing/check", ""},
		{http.MethodGet, "/api/indexing/status", ""},
		{http.MethodPost, "/api/initialize", `{"force":false}`},
	}

	for _, tc := range cases {
		rec := doRequest(t, s, tc.method, tc.path, tc.body)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s %s: unexpected status %d", tc.method, tc.path, rec.Code)
		}
		if rec.Body.String() != `{"state":"indexing"}` {
			t.Fatalf("%s %s: body reshaped: %s", tc.method, tc.path, rec.Body.String())
		}
	}
}
