package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/qbandev/safefetch/internal/fetch"
)

const (
	FormatJSON  = "json"
	FormatTable = "table"
	FormatRaw   = "raw"
)

// FetchReport is the JSON form of a fetch result printed by the CLI.
type FetchReport struct {
	URL         string  `json:"url"`
	Status      int     `json:"status"`
	ContentType string  `json:"content_type,omitempty"`
	Redirects   int     `json:"redirects"`
	Filename    *string `json:"filename"`
	Content     string  `json:"content"`
}

// ValidFormat reports whether format is supported by WriteResult.
func ValidFormat(format string) bool {
	switch format {
	case FormatJSON, FormatTable, FormatRaw:
		return true
	}
	return false
}

// WriteResult renders res to w in the given format. JSON and table output
// require a UTF-8 body; raw output writes the bytes unchanged.
func WriteResult(w io.Writer, res *fetch.Result, format string) error {
	if format == FormatRaw {
		_, err := w.Write(res.Body)
		return err
	}
	if !utf8.Valid(res.Body) {
		return fmt.Errorf("content is not valid UTF-8; use --output=raw")
	}

	if format == FormatJSON {
		report := FetchReport{
			URL:         res.URL,
			Status:      res.StatusCode,
			ContentType: res.ContentType,
			Redirects:   res.Redirects,
			Content:     string(res.Body),
		}
		if res.Filename != "" {
			report.Filename = &res.Filename
		}
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling report: %w", err)
		}
		_, err = fmt.Fprintln(w, string(out))
		return err
	}

	printTable(w, res)
	return nil
}

func printTable(w io.Writer, res *fetch.Result) {
	name := res.Filename
	if name == "" {
		name = "-"
	}
	preview := strings.Join(strings.Fields(string(res.Body)), " ")
	if len(preview) > 60 {
		preview = truncateRunes(preview, 57) + "..."
	}
	rows := [][2]string{
		{"URL", res.URL},
		{"STATUS", strconv.Itoa(res.StatusCode)},
		{"CONTENT TYPE", res.ContentType},
		{"REDIRECTS", strconv.Itoa(res.Redirects)},
		{"FILENAME", name},
		{"BYTES", strconv.Itoa(len(res.Body))},
		{"PREVIEW", preview},
	}

	widths := [2]int{}
	for _, r := range rows {
		for i, f := range r {
			if n := utf8.RuneCountInString(f); n > widths[i] {
				widths[i] = n
			}
		}
	}

	hLine := func(left, mid, right string) string {
		var sb strings.Builder
		_, _ = sb.WriteString(left)
		for i, width := range widths {
			_, _ = sb.WriteString(strings.Repeat("─", width+2))
			if i < len(widths)-1 {
				_, _ = sb.WriteString(mid)
			}
		}
		_, _ = sb.WriteString(right)
		return sb.String()
	}

	dataLine := func(r [2]string) string {
		var sb strings.Builder
		_, _ = sb.WriteString("│")
		for i, f := range r {
			pad := widths[i] - utf8.RuneCountInString(f)
			_, _ = fmt.Fprintf(&sb, " %s%s ", f, strings.Repeat(" ", pad))
			if i < len(r)-1 {
				_, _ = sb.WriteString("│")
			}
		}
		_, _ = sb.WriteString("│")
		return sb.String()
	}

	_, _ = fmt.Fprintln(w, hLine("┌", "┬", "┐"))
	for i, r := range rows {
		_, _ = fmt.Fprintln(w, dataLine(r))
		if i < len(rows)-1 {
			_, _ = fmt.Fprintln(w, hLine("├", "┼", "┤"))
		}
	}
	_, _ = fmt.Fprintln(w, hLine("└", "┴", "┘"))
}

func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
