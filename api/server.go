// Package api exposes HTTP handlers for document analysis and question
// answering.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fabfab/papermind/config"
	"github.com/fabfab/papermind/llm"
	"github.com/fabfab/papermind/rag"
)

// Retrieval is the slice of the retrieval-service client the server needs.
type Retrieval interface {
	Status(ctx context.Context) rag.StatusResponse
	StartIndexing(ctx context.Context, force, background bool) (json.RawMessage, error)
	CheckIndexing(ctx context.Context) (json.RawMessage, error)
	IndexingStatus(ctx context.Context) (json.RawMessage, error)
	Initialize(ctx context.Context, force bool) (json.RawMessage, error)
}

// Asker answers one question about the corpus.
type Asker interface {
	AskQuestion(ctx context.Context, question string) (rag.Answer, error)
}

type Server struct {
	cfg       config.Config
	provider  llm.Provider
	asker     Asker
	retrieval Retrieval
	logger    *log.Logger
	handler   http.Handler
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type analyzeRequest struct {
	Content        string   `json:"content"`
	DocumentID     int      `json:"documentId"`
	Tags           []string `json:"tags"`
	Correspondents []string `json:"correspondents"`
	DocumentTypes  []string `json:"documentTypes"`
	CustomPrompt   string   `json:"customPrompt"`
	ExternalData   any      `json:"externalData"`
}

type playgroundRequest struct {
	Content string `json:"content"`
	Prompt  string `json:"prompt"`
}

type chatRequest struct {
	Question string `json:"question"`
}

type indexingRequest struct {
	Force      bool `json:"force"`
	Background bool `json:"background"`
}

type statusResponse struct {
	Provider  llm.Status         `json:"provider"`
	Retrieval rag.StatusResponse `json:"retrieval"`
}

func New(cfg config.Config, provider llm.Provider, asker Asker, retrieval Retrieval, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		cfg:       cfg,
		provider:  provider,
		asker:     asker,
		retrieval: retrieval,
		logger:    logger,
	}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Get("/api/status", s.handleStatus)
	r.Post("/api/analyze", s.handleAnalyze)
	r.Post("/api/playground", s.handlePlayground)
	r.Post("/api/chat", s.handleChat)
	r.Post("/api/indexing/start", s.handleIndexingStart)
	r.Post("/api/indexing/check", s.handleIndexingCheck)
	r.Get("/api/indexing/status", s.handleIndexingStatus)
	r.Post("/api/initialize", s.handleInitialize)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, statusResponse{
		Provider:  s.provider.CheckStatus(r.Context()),
		Retrieval: s.retrieval.Status(r.Context()),
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	if strings.TrimSpace(req.Content) == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("content is required"))
		return
	}

	// Analysis failures are reported inside the result, not as an HTTP
	// error: the caller inspects the error field.
	result := s.provider.AnalyzeDocument(r.Context(), llm.Request{
		Content:                req.Content,
		DocumentID:             req.DocumentID,
		ExistingTags:           req.Tags,
		ExistingCorrespondents: req.Correspondents,
		ExistingDocumentTypes:  req.DocumentTypes,
		CustomPrompt:           req.CustomPrompt,
		ExternalData:           req.ExternalData,
	})
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handlePlayground(w http.ResponseWriter, r *http.Request) {
	var req playgroundRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	if strings.TrimSpace(req.Content) == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("content is required"))
		return
	}

	result := s.provider.AnalyzePlayground(r.Context(), req.Content, req.Prompt)
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	if strings.TrimSpace(req.Question) == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("question is required"))
		return
	}

	answer, err := s.asker.AskQuestion(r.Context(), req.Question)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.writeJSON(w, http.StatusOK, answer)
}

func (s *Server) handleIndexingStart(w http.ResponseWriter, r *http.Request) {
	var req indexingRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	raw, err := s.retrieval.StartIndexing(r.Context(), req.Force, req.Background)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.writeRaw(w, raw)
}

func (s *Server) handleIndexingCheck(w http.ResponseWriter, r *http.Request) {
	raw, err := s.retrieval.CheckIndexing(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.writeRaw(w, raw)
}

func (s *Server) handleIndexingStatus(w http.ResponseWriter, r *http.Request) {
	raw, err := s.retrieval.IndexingStatus(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.writeRaw(w, raw)
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var req indexingRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	raw, err := s.retrieval.Initialize(r.Context(), req.Force)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.writeRaw(w, raw)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

func (s *Server) writeRaw(w http.ResponseWriter, raw json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(raw); err != nil {
		s.logger.Printf("write response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Printf("api error (%d): %v", status, err)
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}

	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}
	return nil
}
