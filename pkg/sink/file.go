package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/andrej220/secuaudit/pkg/report"
)

// Serializer turns a report into bytes.
type Serializer interface {
	Marshal(r report.Report) ([]byte, error)
}

// Writer stores bytes under a file name.
type Writer interface {
	Write(filename string, data []byte) error
}

// RenderSerializer serializes through a report.Renderer.
type RenderSerializer struct {
	Renderer report.Renderer
}

func (s RenderSerializer) Marshal(r report.Report) ([]byte, error) {
	out, err := report.RenderString(s.Renderer, r)
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

// FileWriter replaces the target through a temp file and rename.
type FileWriter struct {
	Overwrite bool
}

func (w FileWriter) Write(filename string, data []byte) error {
	if filename == "" {
		return os.ErrInvalid
	}
	if _, err := os.Stat(filename); !os.IsNotExist(err) && !w.Overwrite {
		return os.ErrExist
	}
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(filename)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filename)
}

// FileSink writes each report to Path.
type FileSink struct {
	Path       string
	Serializer Serializer
	Writer     Writer
}

var _ Sink = (*FileSink)(nil)

// NewFile returns a FileSink rendering with rd. Without overwrite, an
// existing file at path makes Publish fail with os.ErrExist.
func NewFile(path string, rd report.Renderer, overwrite bool) *FileSink {
	return &FileSink{
		Path:       path,
		Serializer: RenderSerializer{Renderer: rd},
		Writer:     FileWriter{Overwrite: overwrite},
	}
}

func (s *FileSink) Publish(_ context.Context, r report.Report) error {
	if s.Path == "" {
		return fmt.Errorf("invalid filename: %w", os.ErrInvalid)
	}
	data, err := s.Serializer.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	if err := s.Writer.Write(s.Path, data); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", s.Path, err)
	}
	return nil
}

func (s *FileSink) Close() error { return nil }
