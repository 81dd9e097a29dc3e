package filename

import (
	"strings"
	"testing"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		want          string
		wantTruncated bool
	}{
		{name: "accents and punctuation", input: "Nañtes Café!.txt", want: "Nantes_Cafe.txt"},
		{name: "empty", input: "", want: ""},
		{name: "spaces", input: "report 2024.csv", want: "report_2024.csv"},
		{name: "all invalid", input: "!!!@@@###", want: ""},
		{name: "non latin dropped", input: "日本語.pdf", want: ".pdf"},
		{name: "ligature decomposed", input: "ﬁle.txt", want: "file.txt"},
		{name: "path separators dropped", input: "../../etc/passwd", want: "....etcpasswd"},
		{name: "whitelist kept", input: "a-b_c.D9", want: "a-b_c.D9"},
		{
			name:          "truncated",
			input:         "a_very_long_file_name_that_exceeds_limit.tar.gz",
			want:          "a_very_long_file_name_that_exc",
			wantTruncated: true,
		},
		{name: "exactly max", input: strings.Repeat("x", MaxLength), want: strings.Repeat("x", MaxLength)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, truncated := Sanitize(tt.input)
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
			if truncated != tt.wantTruncated {
				t.Errorf("Sanitize(%q) truncated = %v, want %v", tt.input, truncated, tt.wantTruncated)
			}
		})
	}
}

func TestSanitizeIdempotentAndTotal(t *testing.T) {
	inputs := []string{
		"",
		"Nañtes Café!.txt",
		"  leading and trailing  ",
		"\x00\xff\xfe invalid utf8",
		"Ǆemal ǅ ǆ",
		"㎏ ² ½",
		strings.Repeat("é", 100),
		"report 2024.csv",
	}

	for _, input := range inputs {
		once, _ := Sanitize(input)
		twice, truncated := Sanitize(once)
		if once != twice {
			t.Errorf("Sanitize not idempotent for %q: %q then %q", input, once, twice)
		}
		if truncated {
			t.Errorf("Sanitize(%q) reported truncation on second pass", once)
		}
		if len(once) > MaxLength {
			t.Errorf("Sanitize(%q) length %d exceeds %d", input, len(once), MaxLength)
		}
		for _, r := range once {
			if !allowed(r) {
				t.Errorf("Sanitize(%q) kept disallowed rune %q", input, r)
			}
		}
	}
}

func TestFromContentDisposition(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{`attachment; filename="report 2024.csv"`, "report 2024.csv"},
		{`attachment; filename="a%20b.txt"`, "a b.txt"},
		{`attachment; filename="first.txt"; filename="second.txt"`, "first.txt"},
		{`attachment; filename="bad%zz.txt"`, "bad%zz.txt"},
		{`attachment; filename=unquoted.txt`, ""},
		{`inline`, ""},
		{``, ""},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			if got := FromContentDisposition(tt.header); got != tt.want {
				t.Errorf("FromContentDisposition(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestFromURL(t *testing.T) {
	tests := []struct {
		rawURL string
		want   string
	}{
		{"https://example.com/path/data.json", "data.json"},
		{"https://example.com/file.txt?x=1#frag", "file.txt"},
		{"https://example.com/my%20file.txt", "my file.txt"},
		{"https://example.com/a%2Fb.txt", "a/b.txt"},
		{"https://example.com/dir/", ""},
		{"https://example.com", ""},
	}

	for _, tt := range tests {
		t.Run(tt.rawURL, func(t *testing.T) {
			if got := FromURL(tt.rawURL); got != tt.want {
				t.Errorf("FromURL(%q) = %q, want %q", tt.rawURL, got, tt.want)
			}
		})
	}
}

func TestDerive(t *testing.T) {
	name := Derive(`attachment; filename="report 2024.csv"`, "https://example.com/download")
	if name != "report 2024.csv" {
		t.Fatalf("Derive() = %q, want %q", name, "report 2024.csv")
	}
	if clean, _ := Sanitize(name); clean != "report_2024.csv" {
		t.Fatalf("Sanitize(Derive()) = %q, want %q", clean, "report_2024.csv")
	}

	if got := Derive(`attachment; filename=""`, "https://example.com/path/data.json"); got != "data.json" {
		t.Fatalf("Derive() with empty disposition = %q, want %q", got, "data.json")
	}
}
