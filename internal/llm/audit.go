package llm

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// auditRecord is one append-only line in the prompt-audit sink (§4.5
// "Prompt audit"). Request fields are populated before the call;
// response fields after. Audit failures never abort the request, so
// every write error is swallowed in appendLocked.
type auditRecord struct {
	ID           string    `json:"id"`
	PromptHash   string    `json:"prompt_hash"`
	SystemPrompt string    `json:"system_prompt"`
	UserPrompt   string    `json:"user_prompt"`
	RequestedAt  time.Time `json:"requested_at"`
	ResponseText string    `json:"response_text,omitempty"`
	LatencyMS    int64     `json:"latency_ms,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// AuditSink is an append-only JSON-lines prompt log, serialized by a
// single-writer mutex so concurrent preprocessing workers never
// interleave partial lines.
type AuditSink struct {
	mu   sync.Mutex
	path string

	pending *auditRecord
}

// NewAuditSink returns a sink appending to path, creating it if absent.
func NewAuditSink(path string) *AuditSink {
	return &AuditSink{path: path}
}

func (s *AuditSink) recordRequest(system, user string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := sha256.Sum256([]byte(system + "\x00" + user))
	s.pending = &auditRecord{
		ID:           uuid.NewString(),
		PromptHash:   hex.EncodeToString(hash[:]),
		SystemPrompt: system,
		UserPrompt:   user,
		RequestedAt:  time.Now(),
	}
	s.appendLocked(s.pending)
}

func (s *AuditSink) recordResponse(text string, callErr error, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.pending
	if rec == nil {
		return
	}
	rec.ResponseText = text
	rec.LatencyMS = latency.Milliseconds()
	if callErr != nil {
		rec.Error = callErr.Error()
	}
	s.appendLocked(rec)
	s.pending = nil
}

// appendLocked writes rec as one JSON line. Errors are swallowed: audit
// failures must never abort the underlying LLM request (§4.5).
func (s *AuditSink) appendLocked(rec *auditRecord) {
	line, err := json.Marshal(rec)
	if err != nil {
		return
	}
	line = append(line, '\n')

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = f.Write(line)
}
