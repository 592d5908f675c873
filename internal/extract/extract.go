// Package extract implements the Content Extractor (C3): converting
// any supported input file into normalized plain text plus source
// metadata.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v5"
	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"

	"github.com/alebairos/supertask-pipeline/internal/pipelineerr"
)

const (
	maxFileSize = 10 * 1024 * 1024
	retryBase   = 100 * time.Millisecond
	maxAttempts = 3 // one initial attempt plus two retries, per §4.3
)

var supportedExtensions = map[string]bool{
	".md": true, ".markdown": true, ".txt": true,
	".json": true, ".pdf": true, ".docx": true,
}

// SourceMetadata describes the file a Result was extracted from.
type SourceMetadata struct {
	Path         string    `json:"path"`
	ByteSize     int64     `json:"byte_size"`
	ModifiedAt   time.Time `json:"modified_at"`
	LanguageHint string    `json:"language_hint"`
}

// Result is the normalized plain text plus its source metadata.
type Result struct {
	Text     string
	Metadata SourceMetadata
}

// Extract dispatches on the file's extension and returns normalized
// plain text. ExtractionFailed is retried up to twice with a 100 ms
// backoff (§4.3); UnsupportedFormat and oversize files are not retried.
func Extract(ctx context.Context, path string) (*Result, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !supportedExtensions[ext] {
		return nil, pipelineerr.New(pipelineerr.UnsupportedFormat, fmt.Sprintf("unsupported extension %q", ext), nil).WithFile(path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.ExtractionFailed, "cannot stat file", err).WithFile(path)
	}
	if info.Size() > maxFileSize {
		return nil, pipelineerr.New(pipelineerr.UnsupportedFormat, fmt.Sprintf("file exceeds max size of %d bytes", maxFileSize), nil).WithFile(path)
	}

	text, err := retryExtract(ctx, ext, path)
	if err != nil {
		return nil, err
	}

	return &Result{
		Text: text,
		Metadata: SourceMetadata{
			Path:         path,
			ByteSize:     info.Size(),
			ModifiedAt:   info.ModTime(),
			LanguageHint: languageHint(text),
		},
	}, nil
}

func retryExtract(ctx context.Context, ext, path string) (string, error) {
	op := func() (string, error) {
		text, err := extractByExtension(ext, path)
		if err != nil {
			if perr, ok := err.(*pipelineerr.Error); ok && perr.Kind == pipelineerr.ExtractionFailed {
				return "", perr // retryable
			}
			return "", backoff.Permanent(err)
		}
		return text, nil
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(retryBase)),
		backoff.WithMaxTries(maxAttempts),
	)
}

func extractByExtension(ext, path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", pipelineerr.New(pipelineerr.ExtractionFailed, "cannot read file", err).WithFile(path)
	}

	switch ext {
	case ".md", ".markdown", ".txt":
		return normalizeText(raw), nil
	case ".json":
		return extractJSON(raw, path)
	case ".pdf":
		return extractPDF(path)
	case ".docx":
		return extractDOCX(path)
	default:
		return "", pipelineerr.New(pipelineerr.UnsupportedFormat, fmt.Sprintf("unsupported extension %q", ext), nil).WithFile(path)
	}
}

// normalizeText strips a UTF-8 BOM and normalizes CRLF/CR line endings
// to LF, without collapsing markdown structure.
func normalizeText(raw []byte) string {
	raw = bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF})
	s := string(raw)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return s
}

// extractJSON promotes a "content" or "body" field when present;
// otherwise serializes keys into readable sections, preserving source
// key order (§4.3).
func extractJSON(raw []byte, path string) (string, error) {
	var loose map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&loose); err != nil {
		return "", pipelineerr.New(pipelineerr.ExtractionFailed, "invalid JSON", err).WithFile(path)
	}

	if content, ok := loose["content"].(string); ok {
		return normalizeText([]byte(content)), nil
	}
	if body, ok := loose["body"].(string); ok {
		return normalizeText([]byte(body)), nil
	}

	keys, err := orderedKeys(raw)
	if err != nil {
		return "", pipelineerr.New(pipelineerr.ExtractionFailed, "cannot determine key order", err).WithFile(path)
	}

	var b strings.Builder
	for _, k := range keys {
		v := loose[k]
		fmt.Fprintf(&b, "## %s\n\n%v\n\n", k, v)
	}
	return strings.TrimSpace(b.String()), nil
}

// orderedKeys walks the raw JSON token stream to recover top-level key
// order, since decoding into a map loses it.
func orderedKeys(raw []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if _, ok := tok.(json.Delim); !ok {
		return nil, fmt.Errorf("expected JSON object")
	}

	var keys []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := keyTok.(string)
		keys = append(keys, key)

		var skip any
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

func extractPDF(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", pipelineerr.New(pipelineerr.ExtractionFailed, "cannot open pdf", err).WithFile(path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", pipelineerr.New(pipelineerr.ExtractionFailed, "cannot stat pdf", err).WithFile(path)
	}

	reader, err := pdf.NewReader(f, info.Size())
	if err != nil {
		return "", pipelineerr.New(pipelineerr.ExtractionFailed, "cannot open pdf reader", err).WithFile(path)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", pipelineerr.New(pipelineerr.ExtractionFailed, "cannot extract pdf text", err).WithFile(path)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", pipelineerr.New(pipelineerr.ExtractionFailed, "cannot read pdf text stream", err).WithFile(path)
	}
	return normalizeText(buf.Bytes()), nil
}

func extractDOCX(path string) (string, error) {
	doc, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", pipelineerr.New(pipelineerr.ExtractionFailed, "cannot open docx", err).WithFile(path)
	}
	defer doc.Close()

	content := doc.Editable().GetContent()
	return normalizeText([]byte(content)), nil
}

// languageHint is a cheap heuristic: scans for Portuguese-specific
// diacritics and stopwords before falling back to English.
func languageHint(text string) string {
	lower := strings.ToLower(text)
	ptMarkers := []string{"ção", "não", "você", "é", "ã", "õ"}
	for _, m := range ptMarkers {
		if strings.Contains(lower, m) {
			return "portuguese"
		}
	}
	esMarkers := []string{"¿", "¡", "ñ"}
	for _, m := range esMarkers {
		if strings.Contains(lower, m) {
			return "spanish"
		}
	}
	if !utf8.ValidString(text) {
		return "unknown"
	}
	return "english"
}
