package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"course-workbench/internal/domain"
)

// Header is the column order of the shared course sheet. Keep it EXACT: rows
// are pasted straight into it.
var Header = []string{
	"id",
	"title",
	"type",
	"status",
	"version",
	"owner",
	"audience",
	"duration_min",
	"capacity",
	"tags",
	"summary",
	"objectives",
	"outline",
	"materials",
	"links",
	"assets",
	"notes",
	"created_at",
	"updated_at",
}

// Row flattens rec into Header order with every cell cleaned for a
// single-line paste.
func Row(rec domain.CourseRecord) []string {
	row := []string{
		rec.ID,                       // id
		rec.Title,                    // title
		string(rec.Kind),             // type
		rec.Status,                   // status
		rec.Version,                  // version
		rec.Owner,                    // owner
		rec.Audience,                 // audience
		intCell(rec.DurationMinutes), // duration_min
		intCell(rec.Capacity),        // capacity
		rec.Tags,                     // tags
		rec.Summary,                  // summary
		rec.Objectives,               // objectives
		rec.Outline,                  // outline
		rec.Materials,                // materials
		rec.Links,                    // links
		rec.Assets,                   // assets
		rec.Notes,                    // notes
		timeCell(rec.CreatedAt),      // created_at
		timeCell(rec.UpdatedAt),      // updated_at
	}
	for i := range row {
		row[i] = CleanCell(row[i])
	}
	return row
}

// CleanCell turns line breaks into " / " and tabs into two spaces so a value
// stays in one cell.
func CleanCell(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\t", "  ")
	var parts []string
	for _, p := range strings.Split(s, "\n") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " / ")
}

func newWriter(w io.Writer) *csv.Writer {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	return cw
}

// Line is one record as a single TSV line without the trailing newline, for
// pasting into the sheet.
func Line(rec domain.CourseRecord) string {
	var buf bytes.Buffer
	cw := newWriter(&buf)
	_ = cw.Write(Row(rec))
	cw.Flush()
	return strings.TrimRight(buf.String(), "\n")
}

// WriteTSV writes a header line followed by one line per record.
func WriteTSV(w io.Writer, recs []domain.CourseRecord) error {
	cw := newWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range recs {
		if err := cw.Write(Row(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTSVFile writes recs to path, creating its directory.
func WriteTSVFile(path string, recs []domain.CourseRecord) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("export: mkdir %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create %s: %w", path, err)
	}
	if err := WriteTSV(f, recs); err != nil {
		f.Close()
		return fmt.Errorf("export: write %s: %w", path, err)
	}
	return f.Close()
}

// FileName is the default export name for a stage, stamped with the day.
func FileName(stage domain.Stage, now time.Time) string {
	return fmt.Sprintf("courses-%s-%s.tsv", stage, now.Format("20060102"))
}

func intCell(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func timeCell(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
