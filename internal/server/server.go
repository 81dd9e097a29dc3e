// Package server exposes the guarded fetcher over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/qbandev/safefetch/internal/download"
	"github.com/qbandev/safefetch/internal/fetch"
)

var (
	ErrUndecodableContent = errors.New("content is not valid UTF-8")
	ErrBadRequest         = errors.New("bad request")
)

const maxRequestBodyBytes = 1 << 20

// Fetcher is implemented by *fetch.Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, maxRedirects int) (*fetch.Result, error)
}

// Options configures a Server.
type Options struct {
	MaxRedirects     int
	ErrorStatusCodes bool
}

type Server struct {
	fetcher    Fetcher
	downloader *download.Downloader
	opts       Options
	log        zerolog.Logger
}

func New(fetcher Fetcher, downloader *download.Downloader, opts Options, log zerolog.Logger) *Server {
	return &Server{fetcher: fetcher, downloader: downloader, opts: opts, log: log}
}

type messageResponse struct {
	Message string `json:"message"`
}

type contentResponse struct {
	Content  string  `json:"content"`
	Filename *string `json:"filename"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type downloadRequest struct {
	URL string `json:"url"`
	Dir string `json:"dir"`
}

// Handler returns the root handler with request logging installed.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleHello)
	mux.HandleFunc("GET /health", s.handleHello)
	mux.HandleFunc("GET /get", s.handleGetQuery)
	mux.HandleFunc("POST /get_file_from_url_into_dir", s.handleDownload)

	// The path form carries a full URL whose "//" the mux would clean away, so it
	// is routed before the mux sees it.
	routed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && strings.HasPrefix(r.URL.EscapedPath(), "/get/") {
			s.handleGetPath(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	})

	var h http.Handler = routed
	h = hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request handled")
	})(h)
	h = hlog.RequestIDHandler("req_id", "X-Request-Id")(h)
	h = hlog.NewHandler(s.log)(h)
	return h
}

func (s *Server) handleHello(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, messageResponse{Message: "Hello World"})
}

func (s *Server) handleGetQuery(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	target := query.Get("url")
	if target == "" {
		s.writeError(w, r, fmt.Errorf("%w: missing url query parameter", ErrBadRequest))
		return
	}
	maxRedirects := s.opts.MaxRedirects
	if raw := query.Get("max_redirects"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, r, fmt.Errorf("%w: max_redirects must be a non-negative integer", ErrBadRequest))
			return
		}
		maxRedirects = n
	}
	s.serveContent(w, r, target, maxRedirects)
}

func (s *Server) handleGetPath(w http.ResponseWriter, r *http.Request) {
	escaped := strings.TrimPrefix(r.URL.EscapedPath(), "/get/")
	target, err := url.PathUnescape(escaped)
	if err != nil || target == "" {
		s.writeError(w, r, fmt.Errorf("%w: missing or malformed url path parameter", ErrBadRequest))
		return
	}
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	s.serveContent(w, r, target, s.opts.MaxRedirects)
}

func (s *Server) serveContent(w http.ResponseWriter, r *http.Request, target string, maxRedirects int) {
	result, err := s.fetcher.Fetch(r.Context(), target, maxRedirects)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !utf8.Valid(result.Body) {
		s.writeError(w, r, fmt.Errorf("%w: %s", ErrUndecodableContent, result.URL))
		return
	}

	resp := contentResponse{Content: string(result.Body)}
	if result.Filename != "" {
		resp.Filename = &result.Filename
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: decoding request body: %v", ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		s.writeError(w, r, fmt.Errorf("%w: url is required", ErrBadRequest))
		return
	}

	saved, err := s.downloader.SaveToDir(r.Context(), req.URL, req.Dir, s.opts.MaxRedirects)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	hlog.FromRequest(r).Warn().Err(err).Int("mapped_status", status).Msg("Request failed")
	if !s.opts.ErrorStatusCodes {
		status = http.StatusOK
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// StatusFor maps a failure to the HTTP status used when error status codes are
// enabled.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, fetch.ErrInvalidURL), errors.Is(err, ErrBadRequest), errors.Is(err, download.ErrInvalidDir):
		return http.StatusBadRequest
	case errors.Is(err, fetch.ErrUnsafeAddress):
		return http.StatusForbidden
	case errors.Is(err, ErrUndecodableContent):
		return http.StatusUnprocessableEntity
	case errors.Is(err, fetch.ErrRedirectLimitExceeded):
		return http.StatusLoopDetected
	case errors.Is(err, fetch.ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
