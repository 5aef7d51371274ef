package extract

import (
	"context"
	"fmt"
	"io"
)

// Document is a stored file handed to a backend
type Document struct {
	Key    string
	Format Format
	Data   []byte
}

// Backend turns one document format into text
type Backend interface {
	Extract(ctx context.Context, doc Document) (string, error)
}

// Opener gives read access to stored files
type Opener interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Extractor reads stored documents and dispatches them by format
type Extractor struct {
	files    Opener
	backends map[Format]Backend
}

// Option configures an Extractor
type Option func(*Extractor)

// WithBackend replaces the backend used for a format
func WithBackend(f Format, b Backend) Option {
	return func(e *Extractor) {
		e.backends[f] = b
	}
}

// New returns an Extractor with the local PDF and DOCX backends
func New(files Opener, opts ...Option) *Extractor {
	e := &Extractor{
		files: files,
		backends: map[Format]Backend{
			FormatPDF:  PDFBackend{},
			FormatDOCX: DOCXBackend{},
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the full text of the stored file at key. The format is
// resolved from the key before the file is opened.
func (e *Extractor) Extract(ctx context.Context, key string) (string, error) {
	format, err := FormatOf(key)
	if err != nil {
		return "", err
	}

	backend, ok := e.backends[format]
	if !ok {
		return "", &UnsupportedFormatError{Ext: "." + string(format)}
	}

	data, err := e.read(ctx, key)
	if err != nil {
		return "", wrap(err)
	}

	text, err := backend.Extract(ctx, Document{Key: key, Format: format, Data: data})
	if err != nil {
		return "", wrap(err)
	}
	return text, nil
}

func (e *Extractor) read(ctx context.Context, key string) ([]byte, error) {
	rc, err := e.files.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", key, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}
