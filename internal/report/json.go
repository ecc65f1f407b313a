package report

import (
	"encoding/json"
	"io"

	"github.com/1sec-project/instatrace/internal/core"
)

// WriteJSON writes the full result as an indented JSON document.
func WriteJSON(w io.Writer, result *core.AnalysisResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
