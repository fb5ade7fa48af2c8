package llhls

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// RegistryLookup resolves a rendition name (from the URL path) to its
// Manager, for servers publishing more than one rendition.
type RegistryLookup func(rendition string) (*Manager, bool)

// NewPlaylistHandler returns an http.Handler implementing the
// blocking-reload query contract from spec.md §5: _HLS_msn and
// _HLS_part select the playlist state to wait for; the handler blocks
// (bounded by requestTimeout) until the manager's state satisfies the
// request, matching the chi-routed handler style the teacher's
// pkg/streaming/hls server uses for its manifest endpoints.
func NewPlaylistHandler(lookup RegistryLookup, requestTimeout time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Get("/{rendition}.m3u8", func(w http.ResponseWriter, req *http.Request) {
		rendition := chi.URLParam(req, "rendition")
		mgr, ok := lookup(rendition)
		if !ok {
			http.NotFound(w, req)
			return
		}

		msn, part, blocking := parseBlockingParams(req)
		skip := req.URL.Query().Get("_HLS_skip") == "YES"

		ctx := req.Context()
		if blocking {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, requestTimeout)
			defer cancel()
		}

		text, err := mgr.AwaitPlaylist(ctx, msn, part, skip)
		if err != nil {
			http.Error(w, err.Error(), http.StatusGatewayTimeout)
			return
		}

		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write([]byte(text))
	})
	return r
}

// parseBlockingParams extracts _HLS_msn/_HLS_part from the query
// string. blocking is false (render immediately) when _HLS_msn is
// absent, per RFC 8216 bis §6.2.5.1.
func parseBlockingParams(req *http.Request) (msn uint64, part int, blocking bool) {
	q := req.URL.Query()
	msnStr := q.Get("_HLS_msn")
	if msnStr == "" {
		return 0, -1, false
	}
	parsedMSN, err := strconv.ParseUint(msnStr, 10, 64)
	if err != nil {
		return 0, -1, false
	}

	part = -1
	if partStr := q.Get("_HLS_part"); partStr != "" {
		if p, err := strconv.Atoi(partStr); err == nil {
			part = p
		}
	}

	return parsedMSN, part, true
}
