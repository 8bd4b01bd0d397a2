// Package extract converts uploaded source documents into plain text
// for chunking. Extraction dispatches on file extension; PDF input gets
// a table-aware pass that splices detected tables into the page text as
// markdown, with a plain-text fallback when table detection fails.
//
// An extraction failure is terminal for that document only: it surfaces
// as a rag.ExtractionError and never aborts sibling ingestions.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/Yaswanth-ampolu/productdemo-sub001/pkg/rag"
)

// plainTextExtensions are handled by direct file reads.
var plainTextExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".log":      true,
}

// Supported reports whether the extension has a dedicated extractor.
func Supported(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".pdf" || ext == ".docx" || plainTextExtensions[ext]
}

// Extract converts the file at path into text.
//
// Input: context and source file path
// Output: extracted text, or a rag.ExtractionError
// Behavior: dispatches on extension, falls back to a plain read for
// unknown extensions that contain valid UTF-8 text
func Extract(ctx context.Context, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	filename := filepath.Base(path)

	var text string
	var err error
	switch {
	case ext == ".pdf":
		text, err = extractPDF(ctx, path)
	case ext == ".docx":
		text, err = extractDOCX(path)
	case plainTextExtensions[ext]:
		text, err = extractPlain(path)
	default:
		text, err = extractUnknown(path)
	}
	if err != nil {
		return "", &rag.ExtractionError{Filename: filename, Format: ext, Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return "", &rag.ExtractionError{Filename: filename, Format: ext, Err: fmt.Errorf("no readable text found")}
	}
	return text, nil
}

// extractPlain reads a UTF-8 text file as-is.
func extractPlain(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("file is not valid UTF-8 text")
	}
	return string(data), nil
}

// extractUnknown handles undeclared extensions: accept the bytes only
// if they decode as text, otherwise the document is unsupported.
func extractUnknown(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) || looksBinary(data) {
		return "", fmt.Errorf("unsupported file type")
	}
	return string(data), nil
}

// looksBinary checks a sample of the data for NUL bytes.
func looksBinary(data []byte) bool {
	sample := data
	if len(sample) > 4096 {
		sample = sample[:4096]
	}
	for _, b := range sample {
		if b == 0 {
			return true
		}
	}
	return false
}
