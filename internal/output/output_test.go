package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/qbandev/safefetch/internal/fetch"
)

func sampleResult() *fetch.Result {
	return &fetch.Result{
		Body:        []byte("hello\nworld"),
		Filename:    "file.txt",
		URL:         "https://example.com/file.txt",
		StatusCode:  200,
		ContentType: "text/plain",
		Redirects:   1,
	}
}

func TestWriteResultJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteResult(&buf, sampleResult(), FormatJSON); err != nil {
		t.Fatalf("WriteResult() unexpected error: %v", err)
	}

	var got FetchReport
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, buf.String())
	}
	name := "file.txt"
	want := FetchReport{
		URL:         "https://example.com/file.txt",
		Status:      200,
		ContentType: "text/plain",
		Redirects:   1,
		Filename:    &name,
		Content:     "hello\nworld",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteResultJSONNullFilename(t *testing.T) {
	res := sampleResult()
	res.Filename = ""
	var buf bytes.Buffer
	if err := WriteResult(&buf, res, FormatJSON); err != nil {
		t.Fatalf("WriteResult() unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), `"filename": null`) {
		t.Errorf("expected null filename, got:\n%s", buf.String())
	}
}

func TestWriteResultTable(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteResult(&buf, sampleResult(), FormatTable); err != nil {
		t.Fatalf("WriteResult() unexpected error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"┌", "└", "FILENAME", "file.txt", "hello world", "REDIRECTS"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteResultRawAndInvalidUTF8(t *testing.T) {
	res := sampleResult()
	res.Body = []byte{0xff, 0x00, 0xfe}

	var buf bytes.Buffer
	if err := WriteResult(&buf, res, FormatRaw); err != nil {
		t.Fatalf("WriteResult(raw) unexpected error: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), res.Body) {
		t.Errorf("raw output = %v, want %v", buf.Bytes(), res.Body)
	}

	for _, format := range []string{FormatJSON, FormatTable} {
		if err := WriteResult(&bytes.Buffer{}, res, format); err == nil {
			t.Errorf("WriteResult(%s) expected error for invalid UTF-8", format)
		}
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		input string
		n     int
		want  string
	}{
		{"abcdef", 3, "abc"},
		{"héllo", 2, "hé"},
		{"ab", 5, "ab"},
	}
	for _, tt := range tests {
		if got := truncateRunes(tt.input, tt.n); got != tt.want {
			t.Errorf("truncateRunes(%q, %d) = %q, want %q", tt.input, tt.n, got, tt.want)
		}
	}
}

func TestValidFormat(t *testing.T) {
	for _, f := range []string{"json", "table", "raw"} {
		if !ValidFormat(f) {
			t.Errorf("ValidFormat(%q) = false", f)
		}
	}
	if ValidFormat("html") {
		t.Error("ValidFormat(html) = true")
	}
}
