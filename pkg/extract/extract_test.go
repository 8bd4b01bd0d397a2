package extract

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Yaswanth-ampolu/productdemo-sub001/pkg/rag"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExtractPlainText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		filename string
		content  string
	}{
		{"txt", "notes.txt", "plain text body\nsecond line\n"},
		{"markdown", "readme.md", "# Title\n\nSome prose.\n"},
		{"csv", "data.csv", "a,b,c\n1,2,3\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := writeFile(t, tt.filename, []byte(tt.content))
			got, err := Extract(context.Background(), path)
			if err != nil {
				t.Fatalf("Extract() error: %v", err)
			}
			if got != tt.content {
				t.Errorf("Extract() = %q, want %q", got, tt.content)
			}
		})
	}
}

func TestExtractRejectsBinary(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "blob.bin", []byte{0x00, 0x01, 0xff, 0xfe, 0x00})
	_, err := Extract(context.Background(), path)
	if err == nil {
		t.Fatal("expected error for binary input")
	}
	var xerr *rag.ExtractionError
	if !errors.As(err, &xerr) {
		t.Errorf("error type %T, want *rag.ExtractionError", err)
	}
}

func TestExtractRejectsEmpty(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "empty.txt", []byte("   \n\t \n"))
	_, err := Extract(context.Background(), path)
	var xerr *rag.ExtractionError
	if !errors.As(err, &xerr) {
		t.Fatalf("error %v, want *rag.ExtractionError for whitespace-only file", err)
	}
}

func TestExtractDOCX(t *testing.T) {
	t.Parallel()

	const documentXML = `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second </w:t></w:r><w:r><w:t>paragraph.</w:t></w:r></w:p>
    <w:tbl>
      <w:tr><w:tc><w:p><w:r><w:t>cell A</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>cell B</w:t></w:r></w:p></w:tc></w:tr>
    </w:tbl>
  </w:body>
</w:document>`

	path := filepath.Join(t.TempDir(), "doc.docx")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	entry, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := entry.Write([]byte(documentXML)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	got, err := Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	for _, want := range []string{"First paragraph.", "Second paragraph.", "cell A", "cell B"} {
		if !strings.Contains(got, want) {
			t.Errorf("extracted text missing %q:\n%s", want, got)
		}
	}
}

func TestExtractMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Extract(context.Background(), filepath.Join(t.TempDir(), "nope.txt"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSupported(t *testing.T) {
	t.Parallel()

	tests := []struct {
		filename string
		want     bool
	}{
		{"report.pdf", true},
		{"report.PDF", true},
		{"memo.docx", true},
		{"notes.txt", true},
		{"readme.md", true},
		{"data.csv", true},
		{"archive.tar.gz", false},
		{"binary.exe", false},
	}

	for _, tt := range tests {
		if got := Supported(tt.filename); got != tt.want {
			t.Errorf("Supported(%q) = %v, want %v", tt.filename, got, tt.want)
		}
	}
}

func TestRenderMarkdownTable(t *testing.T) {
	t.Parallel()

	rows := [][]string{
		{"Layer", "Width", "Spacing"},
		{"M1", "0.1", "0.1"},
		{"M2", "0.14"},
	}
	got := renderMarkdownTable(rows)

	lines := strings.Split(got, "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4:\n%s", len(lines), got)
	}
	if lines[0] != "| Layer | Width | Spacing |" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "| --- | --- | --- |" {
		t.Errorf("separator = %q", lines[1])
	}
	if lines[3] != "| M2 | 0.14 |  |" {
		t.Errorf("padded row = %q", lines[3])
	}
}

func TestRenderMarkdownTableEmpty(t *testing.T) {
	t.Parallel()

	if got := renderMarkdownTable(nil); got != "" {
		t.Errorf("renderMarkdownTable(nil) = %q, want empty", got)
	}
}
