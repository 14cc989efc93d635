package rag

// Source is a candidate document returned by the retrieval service. It is
// passed through to callers unmodified.
type Source struct {
	DocumentID int     `json:"doc_id"`
	Title      string  `json:"title"`
	Score      float64 `json:"score,omitempty"`
}

type SearchResult struct {
	DocumentID int     `json:"doc_id"`
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
}

type ContextResponse struct {
	Context string   `json:"context"`
	Sources []Source `json:"sources"`
}

// StatusResponse reflects the retrieval service's health. When the service
// is unreachable a synthesized all-false response carries the error.
type StatusResponse struct {
	Status     string `json:"status,omitempty"`
	ServerUp   bool   `json:"server_up"`
	DataLoaded bool   `json:"data_loaded"`
	IndexReady bool   `json:"index_ready"`
	Error      string `json:"error,omitempty"`
}

type Answer struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// ReferenceDocument is built per question for sources carrying the
// reference tag; it only lives for the duration of one call.
type ReferenceDocument struct {
	ID            int      `json:"id"`
	Title         string   `json:"title"`
	Created       string   `json:"created"`
	Correspondent string   `json:"correspondent,omitempty"`
	Tags          []string `json:"tags"`
	Excerpt       string   `json:"excerpt"`
}
