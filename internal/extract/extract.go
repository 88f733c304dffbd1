// ABOUTME: Text extraction contract and the plain-text extractor
// ABOUTME: Documents with no usable text fail with an ExtractionError wrapping ErrNoText
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MinTextChars is the fewest non-space characters a usable document has
const MinTextChars = 10

// DefaultMaxBytes caps how much of a file is read
const DefaultMaxBytes = 10 << 20

var (
	// ErrNoText means the document has no extractable text
	ErrNoText = errors.New("no extractable text")
	// ErrUnsupported means no extractor handles the file type
	ErrUnsupported = errors.New("unsupported document type")
)

// ExtractionError reports which source failed and why
type ExtractionError struct {
	Source string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("extraction failed: %v", e.Err)
	}
	return fmt.Sprintf("extraction failed for %s: %v", e.Source, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Extractor turns a document stream into plain text
type Extractor interface {
	Extract(ctx context.Context, r io.Reader, name string) (string, error)
}

// CheckText fails when text has fewer than MinTextChars non-space characters
func CheckText(source, text string) error {
	n := 0
	for _, r := range text {
		if !unicode.IsSpace(r) {
			n++
			if n >= MinTextChars {
				return nil
			}
		}
	}
	return &ExtractionError{Source: source, Err: ErrNoText}
}

// PlainText reads UTF-8 text, dropping a byte order mark and normalizing
// line endings. Invalid UTF-8 sequences are replaced.
type PlainText struct {
	MaxBytes int64
}

// Extract implements Extractor
func (p PlainText) Extract(ctx context.Context, r io.Reader, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	limit := p.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return "", &ExtractionError{Source: name, Err: err}
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	text := string(data)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	if err := CheckText(name, text); err != nil {
		return "", err
	}
	return text, nil
}

var byExtension = map[string]Extractor{
	".txt":      PlainText{},
	".text":     PlainText{},
	".md":       PlainText{},
	".markdown": PlainText{},
	".rst":      PlainText{},
}

// Supported reports whether path has an extension with a registered extractor
func Supported(path string) bool {
	_, ok := byExtension[strings.ToLower(filepath.Ext(path))]
	return ok
}

// File extracts text from the file at path using its extension
func File(ctx context.Context, path string) (string, error) {
	ex, ok := byExtension[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return "", &ExtractionError{Source: path, Err: ErrUnsupported}
	}
	f, err := os.Open(path)
	if err != nil {
		return "", &ExtractionError{Source: path, Err: err}
	}
	defer f.Close()
	return ex.Extract(ctx, f, filepath.Base(path))
}
