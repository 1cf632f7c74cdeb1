package media

import (
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"streamgate/internal/metrics"
)

// copyChunk is the write granularity towards the player. Large enough to
// keep syscall overhead down, small enough that disconnect detection and
// reader-activity touches stay prompt.
const copyChunk = 256 << 10

// Proxy turns a partially-downloaded video file into a progressive fMP4
// HTTP response. When HelperURL is set the request is reverse-proxied to
// an external streaming helper instead of transcoding locally.
type Proxy struct {
	FFmpegPath string
	HelperURL  string
	Logger     *slog.Logger
}

// ServeVideo streams the file at path to the client. onProgress fires
// after every chunk so the caller can mark the session as actively read.
//
// The output is produced live, so its total size is unknowable and a
// Range request cannot be served from disk. `bytes=N-` is synthesized
// instead: the leading N output bytes are produced and discarded. A
// failure before the first byte yields 503; after the first byte the
// connection is simply closed, the player is already committed.
func (p *Proxy) ServeVideo(w http.ResponseWriter, r *http.Request, path string, onProgress func()) {
	if p.HelperURL != "" {
		p.serveFromHelper(w, r)
		return
	}

	proc := NewProcess(r.Context(), p.FFmpegPath, buildStreamArgs(ArgConfig{Input: path}))
	if err := proc.Start(); err != nil {
		metrics.TranscodeFailuresTotal.Inc()
		p.Logger.Error("ffmpeg start failed", slog.String("error", err.Error()))
		http.Error(w, "transcoder unavailable", http.StatusServiceUnavailable)
		return
	}
	metrics.TranscodeStartsTotal.Inc()
	defer proc.Stop()

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Cache-Control", "no-store")

	offset := parseRangeStart(r.Header.Get("Range"))
	skip := offset

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, copyChunk)
	var sent int64
	for {
		n, readErr := proc.Stdout().Read(buf)
		if n > 0 {
			var chunk []byte
			chunk, skip = skipLeading(buf[:n], skip)
			if len(chunk) > 0 {
				if sent == 0 && offset > 0 {
					// No Content-Range: the total length is unknown
					// until ffmpeg finishes, which is after the last
					// byte has gone out.
					w.WriteHeader(http.StatusPartialContent)
				}
				if _, writeErr := w.Write(chunk); writeErr != nil {
					// Player went away; the deferred Stop kills ffmpeg.
					p.Logger.Debug("client disconnected", slog.Int64("bytesSent", sent))
					return
				}
				sent += int64(len(chunk))
				if flusher != nil {
					flusher.Flush()
				}
			}
			if onProgress != nil {
				onProgress()
			}
		}
		if readErr != nil {
			break
		}
	}

	if err := proc.Wait(); err != nil && r.Context().Err() == nil {
		if tail := proc.Stderr(); tail != "" {
			p.Logger.Warn("ffmpeg exited with error",
				slog.String("error", err.Error()),
				slog.String("stderr", tail))
		}
		if sent == 0 {
			metrics.TranscodeFailuresTotal.Inc()
			http.Error(w, "stream could not be started", http.StatusServiceUnavailable)
		}
		return
	}
	p.Logger.Debug("stream finished", slog.Int64("bytesSent", sent))
}

// parseRangeStart extracts N from a `bytes=N-` request header. Anything
// else, including multi-range and suffix forms, maps to 0: the player
// gets the whole stream from the top.
func parseRangeStart(header string) int64 {
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return 0
	}
	start, ok := strings.CutSuffix(spec, "-")
	if !ok || start == "" {
		return 0
	}
	n, err := strconv.ParseInt(start, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// skipLeading drops up to remaining bytes off the front of chunk and
// returns what is left of both.
func skipLeading(chunk []byte, remaining int64) ([]byte, int64) {
	if remaining <= 0 {
		return chunk, 0
	}
	if int64(len(chunk)) <= remaining {
		return nil, remaining - int64(len(chunk))
	}
	return chunk[remaining:], 0
}

// serveFromHelper forwards the request to the external helper verbatim,
// including Range, and relays the response as-is.
func (p *Proxy) serveFromHelper(w http.ResponseWriter, r *http.Request) {
	target := strings.TrimSuffix(p.HelperURL, "/") + "/stream/" + url.PathEscape(lastPathSegment(r.URL.Path))
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		http.Error(w, "bad helper url", http.StatusInternalServerError)
		return
	}
	if rng := r.Header.Get("Range"); rng != "" {
		req.Header.Set("Range", rng)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		p.Logger.Error("helper request failed", slog.String("error", err.Error()))
		http.Error(w, "stream helper unavailable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	copyRelayHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	_, _ = io.CopyBuffer(w, resp.Body, make([]byte, copyChunk))
}

// relayedHeaders are the end-to-end headers worth forwarding; hop-by-hop
// headers stay behind.
var relayedHeaders = []string{
	"Content-Type",
	"Content-Length",
	"Content-Range",
	"Accept-Ranges",
	"Cache-Control",
}

func copyRelayHeaders(dst, src http.Header) {
	for _, k := range relayedHeaders {
		if v := src.Get(k); v != "" {
			dst.Set(k, v)
		}
	}
}

func lastPathSegment(p string) string {
	p = strings.TrimSuffix(p, "/")
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}
