package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"

	"course-workbench/internal/devutil"
)

var (
	okMark   = color.New(color.FgGreen).Sprint("OK")
	warnMark = color.New(color.FgYellow).Sprint("WARN")
	staleTag = color.New(color.FgYellow).Sprint("(cached)")
)

func okLine(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", okMark, fmt.Sprintf(format, args...))
}

func warnLine(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", warnMark, fmt.Sprintf(format, args...))
}

// writeJSON prints v indented. fields, when set, narrows each object to
// those keys.
func writeJSON[T any](w io.Writer, items []T, fields string) error {
	keys := devutil.ParseFields(fields)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(devutil.PickAll(items, keys...))
}

func writeOneJSON(w io.Writer, v any, fields string) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if keys := devutil.ParseFields(fields); len(keys) > 0 {
		return enc.Encode(devutil.Pick(v, keys...))
	}
	return enc.Encode(v)
}
