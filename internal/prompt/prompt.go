// Package prompt loads the system prompt document that seeds every conversation.
//
// The document lives at a site-root style path (default "/llms.md"). With a
// base URL it is fetched over HTTP; without one it is read from a local root
// directory. HTML documents are converted to markdown before use.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

const (
	DefaultPath = "/llms.md"

	fetchTimeout     = 15 * time.Second
	fetchMaxBodySize = 1 << 20 // 1MB
	fetchUserAgent   = "streamchat/1.0"
)

// ErrNotFound is returned when the document does not exist.
var ErrNotFound = errors.New("prompt document not found")

// Source supplies the system prompt text.
type Source interface {
	Fetch(ctx context.Context) (string, error)
}

// Config selects where the document is loaded from.
type Config struct {
	Path    string // document path, default "/llms.md"
	BaseURL string // when set, Path is resolved against it and fetched over HTTP
	Root    string // local directory Path is resolved against, default "."
}

// New returns the Source described by cfg. A Path that is itself an absolute
// http(s) URL is always fetched over HTTP.
func New(cfg Config) (Source, error) {
	path := cfg.Path
	if path == "" {
		path = DefaultPath
	}

	if isHTTP(path) {
		return NewHTTPSource(path, nil), nil
	}
	if cfg.BaseURL != "" {
		base, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid prompt base_url %q: %w", cfg.BaseURL, err)
		}
		ref, err := url.Parse(path)
		if err != nil {
			return nil, fmt.Errorf("invalid prompt path %q: %w", path, err)
		}
		return NewHTTPSource(base.ResolveReference(ref).String(), nil), nil
	}

	root := cfg.Root
	if root == "" {
		root = "."
	}
	return FileSource{Path: filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(path, "/")))}, nil
}

func isHTTP(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// ---------- HTTP ----------

// HTTPSource fetches the document from a URL.
type HTTPSource struct {
	URL    string
	client *http.Client
}

// NewHTTPSource returns an HTTPSource. A nil client gets a default with a timeout.
func NewHTTPSource(rawURL string, client *http.Client) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}
	return &HTTPSource{URL: rawURL, client: client}
}

func (s *HTTPSource) Fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return "", fmt.Errorf("build prompt request: %w", err)
	}
	req.Header.Set("User-Agent", fetchUserAgent)
	req.Header.Set("Accept", "text/markdown, text/plain, text/html;q=0.8, */*;q=0.5")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch prompt %s: %w", s.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("%w: %s", ErrNotFound, s.URL)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetch prompt %s: HTTP %d", s.URL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, fetchMaxBodySize))
	if err != nil {
		return "", fmt.Errorf("read prompt body: %w", err)
	}

	text := string(body)
	if isHTML(resp.Header.Get("Content-Type")) {
		md, err := htmltomarkdown.ConvertString(text)
		if err != nil {
			return "", fmt.Errorf("convert prompt html: %w", err)
		}
		text = md
	}
	return strings.TrimSpace(text), nil
}

func isHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// ---------- local file ----------

// FileSource reads the document from disk.
type FileSource struct {
	Path string
}

func (s FileSource) Fetch(_ context.Context) (string, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, s.Path)
		}
		return "", fmt.Errorf("open prompt: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, fetchMaxBodySize))
	if err != nil {
		return "", fmt.Errorf("read prompt: %w", err)
	}

	text := string(data)
	if ext := strings.ToLower(filepath.Ext(s.Path)); ext == ".html" || ext == ".htm" {
		md, err := htmltomarkdown.ConvertString(text)
		if err != nil {
			return "", fmt.Errorf("convert prompt html: %w", err)
		}
		text = md
	}
	return strings.TrimSpace(text), nil
}

// ---------- fixed ----------

// Static is a Source that always returns the same text. Used when the prompt
// is given inline in the configuration.
type Static string

func (s Static) Fetch(context.Context) (string, error) { return string(s), nil }
