package report

import (
	"encoding/json"
	"io"
)

// JSON renders the full Report document, indented.
type JSON struct{}

func (JSON) Format() string { return FormatJSON }

func (JSON) Render(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(r)
}
