package llm

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Transcript appends every prompt/response pair to a flat diagnostic log.
// It is best effort: logging failures never fail the request.
type Transcript struct {
	path   string
	logger *log.Logger
	mu     sync.Mutex
}

func NewTranscript(path string, logger *log.Logger) *Transcript {
	if logger == nil {
		logger = log.Default()
	}
	return &Transcript{path: path, logger: logger}
}

func (t *Transcript) Record(kind, system, user, response string) {
	if t == nil || t.path == "" {
		return
	}

	entry := fmt.Sprintf("--- %s %s %s\n[system]\n%s\n[user]\n%s\n[response]\n%s\n\n",
		time.Now().UTC().Format(time.RFC3339), uuid.NewString(), kind, system, user, response)

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		t.logger.Printf("transcript dir: %v", err)
		return
	}
	f, err := os.OpenFile(t.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.logger.Printf("transcript open: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.WriteString(entry); err != nil {
		t.logger.Printf("transcript write: %v", err)
	}
}
