package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config holds the storage provider's HTTP surface.
type Config struct {
	// APIBaseURL is where objects are written and deleted,
	// e.g. "https://storage.example.com/voicememo".
	APIBaseURL string
	// PublicBaseURL is where objects are served from,
	// e.g. "https://cdn.example.com/voicememo".
	PublicBaseURL string
	// AccessKey authenticates write and delete calls.
	AccessKey string
	// Folder prefixes all object names, defaults to "recordings".
	Folder string
	// Timeout bounds each provider call, defaults to 30s.
	Timeout time.Duration
}

// HTTPStore talks to an object-storage provider over plain HTTP:
// PUT to write, DELETE to remove, GET on the public URL to read.
type HTTPStore struct {
	apiBase    string
	publicBase string
	accessKey  string
	folder     string
	httpClient *http.Client
}

// NewHTTPStore constructs a configured storage client.
func NewHTTPStore(cfg Config) *HTTPStore {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	folder := strings.Trim(cfg.Folder, "/")
	if folder == "" {
		folder = "recordings"
	}
	return &HTTPStore{
		apiBase:    strings.TrimRight(cfg.APIBaseURL, "/"),
		publicBase: strings.TrimRight(cfg.PublicBaseURL, "/"),
		accessKey:  cfg.AccessKey,
		folder:     folder,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (s *HTTPStore) Put(ctx context.Context, data []byte, contentType, nameHint string) (Location, error) {
	name := objectName(contentType, nameHint)
	handle := s.folder + "/" + name

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.apiBase+"/"+handle, bytes.NewReader(data))
	if err != nil {
		return Location{}, fmt.Errorf("build put request: %w", err)
	}
	req.Header.Set("AccessKey", s.accessKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("put %s: %w", handle, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Location{}, fmt.Errorf("put %s: unexpected status %d: %s", handle, resp.StatusCode, string(body))
	}

	return Location{
		URL:    s.publicBase + "/" + handle,
		Handle: handle,
	}, nil
}

func (s *HTTPStore) Delete(ctx context.Context, handle string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.apiBase+"/"+strings.TrimLeft(handle, "/"), nil)
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}
	req.Header.Set("AccessKey", s.accessKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete %s: %w", handle, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("delete %s: %w", handle, ErrObjectNotFound)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("delete %s: unexpected status %d", handle, resp.StatusCode)
	}
	return nil
}

func (s *HTTPStore) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: read body: %w", url, err)
	}
	return data, nil
}

// objectName builds a collision-free object name, preferring an extension
// derived from the content type.
func objectName(contentType, hint string) string {
	ext := ""
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		ext = exts[0]
	}
	if ext == "" {
		if i := strings.LastIndex(hint, "."); i >= 0 {
			ext = hint[i:]
		}
	}
	return uuid.NewString() + ext
}
