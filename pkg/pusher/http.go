package pusher

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/atelier-socle/hlskit/pkg/herr"
)

// HTTPPusher delivers playlists, segments, and partials via PUT to a
// base URL, grounded on pkg/storage/s3.go's retry-loop shape (read
// body, classify status, retry on 5xx/connection errors) generalized
// into the shared RetryPolicy rather than reimplemented per pusher.
type HTTPPusher struct {
	statsTracker
	name       string
	baseURL    string
	httpClient *http.Client
	headers    map[string]string
}

// NewHTTPPusher targets baseURL, joining it with the path passed to
// each Push call.
func NewHTTPPusher(name, baseURL string, headers map[string]string, timeout time.Duration) *HTTPPusher {
	return &HTTPPusher{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		headers:    headers,
	}
}

func (p *HTTPPusher) Name() string { return p.name }

// Connect is a no-op: each HTTP push is a self-contained request.
func (p *HTTPPusher) Connect(ctx context.Context) error { return nil }
func (p *HTTPPusher) Disconnect() error                 { return nil }
func (p *HTTPPusher) Stats() Stats                      { return p.snapshot() }

func (p *HTTPPusher) PushSegment(ctx context.Context, path string, data []byte) error {
	return p.put(ctx, "segment", path, data)
}

func (p *HTTPPusher) PushPlaylist(ctx context.Context, path string, data []byte) error {
	return p.put(ctx, "playlist", path, data)
}

func (p *HTTPPusher) PushPartial(ctx context.Context, path string, data []byte) error {
	return p.put(ctx, "partial", path, data)
}

func (p *HTTPPusher) put(ctx context.Context, kind, path string, data []byte) error {
	url := p.baseURL + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		err = herr.NewPushPermanent(p.name, 0, err)
		p.recordFailure(err)
		return err
	}
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		err = herr.NewPushTransient(p.name, 1, err)
		p.recordFailure(err)
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		p.recordSuccess(kind, len(data))
		return nil
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		err = herr.NewPushTransient(p.name, 1, fmt.Errorf("http %d", resp.StatusCode))
	default:
		err = herr.NewPushPermanent(p.name, resp.StatusCode, fmt.Errorf("http %d", resp.StatusCode))
	}
	p.recordFailure(err)
	return err
}
