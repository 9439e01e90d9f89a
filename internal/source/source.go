// Package source turns the optional attachment of a create-tree request
// into plain text that can be handed to the tree generator.
package source

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

const (
	maxFetchSize = 5 << 20
	fetchTimeout = 10 * time.Second
	// MaxTextLen bounds the text passed on to generation.
	MaxTextLen = 20000
)

type Type string

const (
	TypeText Type = "text"
	TypeURL  Type = "url"
	TypePDF  Type = "pdf"
)

// ErrInvalidSource marks problems with the caller's input, as opposed to
// failures fetching or parsing it.
var ErrInvalidSource = errors.New("invalid source")

// Source is the attachment as received from a client. Data holds base64
// for pdf sources.
type Source struct {
	Type Type   `json:"type,omitempty"`
	URL  string `json:"url,omitempty"`
	Data string `json:"data,omitempty"`
}

// Empty reports whether there is nothing to extract.
func (s Source) Empty() bool {
	return strings.TrimSpace(s.URL) == "" && strings.TrimSpace(s.Data) == ""
}

// Extractor resolves sources. The zero value uses a default HTTP client.
type Extractor struct {
	HTTPClient *http.Client
}

// Extract returns the text of src truncated to MaxTextLen. An empty source
// yields an empty string.
func (e *Extractor) Extract(ctx context.Context, src Source) (string, error) {
	if src.Empty() {
		return "", nil
	}
	typ := src.Type
	if typ == "" {
		typ = TypeText
		if src.URL != "" {
			typ = TypeURL
		}
	}

	var (
		text string
		err  error
	)
	switch typ {
	case TypeText:
		text = src.Data
	case TypeURL:
		text, err = e.fetch(ctx, src.URL)
	case TypePDF:
		raw, derr := base64.StdEncoding.DecodeString(strings.TrimSpace(src.Data))
		if derr != nil {
			return "", fmt.Errorf("%w: pdf data is not valid base64", ErrInvalidSource)
		}
		text, err = PDFText(raw)
	default:
		return "", fmt.Errorf("%w: unknown type %q", ErrInvalidSource, typ)
	}
	if err != nil {
		return "", err
	}
	return Truncate(collapseWhitespace(text), MaxTextLen), nil
}

func (e *Extractor) client() *http.Client {
	if e != nil && e.HTTPClient != nil {
		return e.HTTPClient
	}
	return http.DefaultClient
}

func (e *Extractor) fetch(ctx context.Context, raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: url must be absolute http(s)", ErrInvalidSource)
	}

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	resp, err := e.client().Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("url returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchSize))
	if err != nil {
		return "", fmt.Errorf("reading url response: %w", err)
	}

	mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch {
	case mt == "application/pdf" || isPDF(body):
		return PDFText(body)
	case mt == "text/html" || mt == "application/xhtml+xml" || looksLikeHTML(body):
		return HTMLText(bytes.NewReader(body))
	default:
		return string(body), nil
	}
}

// PDFText returns the plain text of a PDF document.
func PDFText(data []byte) (string, error) {
	if !isPDF(data) {
		return "", fmt.Errorf("%w: missing %%PDF header", ErrInvalidSource)
	}
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf reader: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdf plaintext: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("pdf read: %w", err)
	}
	return string(b), nil
}

// Truncate cuts s to at most n bytes without splitting a rune.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isPDF(b []byte) bool {
	return bytes.HasPrefix(b, []byte("%PDF-"))
}

func looksLikeHTML(b []byte) bool {
	s := strings.ToLower(strings.TrimSpace(string(b[:min(len(b), 2048)])))
	return strings.HasPrefix(s, "<!doctype html") || strings.HasPrefix(s, "<html")
}

func collapseWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}
