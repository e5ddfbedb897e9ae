// Package report renders audit results as text, HTML or JSON.
package report

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jwalton/go-supportscolor"

	"github.com/andrej220/secuaudit/pkg/audit"
)

const (
	FormatText = "text"
	FormatHTML = "html"
	FormatJSON = "json"
)

var ErrUnknownFormat = errors.New("unknown report format")

// Summary counts results per status.
type Summary struct {
	Total  int `json:"total" bson:"total"`
	Passed int `json:"passed" bson:"passed"`
	Failed int `json:"failed" bson:"failed"`
	Errors int `json:"errors" bson:"errors"`
}

func Summarize(results []audit.Result) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case audit.StatusPass:
			s.Passed++
		case audit.StatusFail:
			s.Failed++
		default:
			s.Errors++
		}
	}
	return s
}

// AllPassed reports whether the run had no FAIL or ERROR results.
func (s Summary) AllPassed() bool { return s.Passed == s.Total }

// Report is one audit run against one target.
type Report struct {
	RunID       string         `json:"run_id" bson:"_id"`
	Target      string         `json:"target" bson:"target"`
	GeneratedAt time.Time      `json:"generated_at" bson:"generated_at"`
	Summary     Summary        `json:"summary" bson:"summary"`
	Results     []audit.Result `json:"results" bson:"results"`
}

// NewReport stamps results with a fresh run id and the current time.
func NewReport(target string, results []audit.Result) Report {
	return Report{
		RunID:       uuid.NewString(),
		Target:      target,
		GeneratedAt: time.Now().UTC(),
		Summary:     Summarize(results),
		Results:     results,
	}
}

// Renderer writes a report in one output format.
type Renderer interface {
	Render(w io.Writer, r Report) error
	Format() string
}

// New returns the renderer for format. Text output is coloured when stdout supports it.
func New(format string) (Renderer, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatText, "":
		return Text{Color: supportscolor.Stdout().SupportsColor}, nil
	case FormatHTML:
		return HTML{}, nil
	case FormatJSON:
		return JSON{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// RenderString is a convenience wrapper around Render.
func RenderString(rd Renderer, r Report) (string, error) {
	var sb strings.Builder
	if err := rd.Render(&sb, r); err != nil {
		return "", err
	}
	return sb.String(), nil
}
