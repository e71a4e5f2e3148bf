package httpserver

import (
	"fmt"
	"strings"

	"github.com/jobmatch/core/internal/domain"
)

// PlainTextExtractor handles text/plain uploads directly and rejects
// anything else. PDF/DOCX extraction is an explicit non-goal of this core
// (see SPEC_FULL.md); a deployer wiring a real extractor (e.g. Apache Tika,
// as the CV evaluator does) implements TextExtractor and passes it to
// httpserver.New instead of this one.
type PlainTextExtractor struct {
	// MaxBytesPerPage approximates a page boundary for maxPages truncation
	// since plain text carries no page metadata.
	MaxBytesPerPage int
}

// NewPlainTextExtractor returns an extractor with a reasonable bytes-per-
// page default.
func NewPlainTextExtractor() *PlainTextExtractor {
	return &PlainTextExtractor{MaxBytesPerPage: 4000}
}

func (e *PlainTextExtractor) Extract(_ domain.Context, data []byte, mime string, maxPages int) (string, error) {
	if !strings.HasPrefix(mime, "text/plain") {
		return "", fmt.Errorf("unsupported content type %q: only text/plain is supported without a real PDF/DOCX extractor wired in", mime)
	}
	text := string(data)
	if maxPages > 0 {
		limit := e.MaxBytesPerPage * maxPages
		if limit > 0 && len(text) > limit {
			text = text[:limit]
		}
	}
	return text, nil
}

var _ TextExtractor = (*PlainTextExtractor)(nil)
