package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
)

// ========================================
// HTTP surface
// Thin JSON layer over the automation engine. Error responses reuse the
// ActionResult envelope with success=false and a populated error_code.
// ========================================

type apiServer struct {
	automator *Automator
	version   string
}

// NewHandler builds the full route table wrapped in the middleware chain.
func NewHandler(a *Automator, version string) http.Handler {
	s := &apiServer{automator: a, version: version}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ui/dump", s.handleDump)
	mux.HandleFunc("/ui/dump/xml", s.handleDumpXML)
	mux.HandleFunc("/ui/click", s.handleClick)
	mux.HandleFunc("/ui/input", s.handleInput)
	mux.HandleFunc("/ui/scroll", s.handleScroll)
	mux.HandleFunc("/ui/wait", s.handleWait)
	mux.HandleFunc("/device/back", s.handleKey("back", a.PressBack))
	mux.HandleFunc("/device/home", s.handleKey("home", a.PressHome))
	mux.HandleFunc("/device/recent", s.handleKey("recent", a.PressRecent))
	mux.HandleFunc("/device/info", s.handleDeviceInfo)
	mux.HandleFunc("/journal", s.handleJournal)

	return requestIDMiddleware(accessLogMiddleware(gzipMiddleware(mux)))
}

// ========================================
// Request bodies
// ========================================

type clickRequest struct {
	Selector *ElementSelector `json:"selector"`
}

type inputRequest struct {
	Selector   *ElementSelector `json:"selector"`
	Text       string           `json:"text"`
	ClearFirst bool             `json:"clear_first"`
}

type scrollRequest struct {
	Direction string           `json:"direction"`
	Steps     int              `json:"steps"`
	Selector  *ElementSelector `json:"selector"`
}

type waitRequest struct {
	Selector  *ElementSelector `json:"selector"`
	Timeout   int              `json:"timeout"`
	Condition string           `json:"condition"`
}

// ========================================
// Handlers
// ========================================

func (s *apiServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSON(w, http.StatusNotFound, failResult(ErrCodeServiceError, "unknown endpoint", false))
		return
	}
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, indexHTML)
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UnixMilli(),
		"version":   s.version,
	})
}

func (s *apiServer) handleDump(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, s.automator.Snapshot(r.Context()))
}

func (s *apiServer) handleDumpXML(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	io.WriteString(w, s.automator.SnapshotXML(r.Context()))
}

func (s *apiServer) handleClick(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req clickRequest
	if !decodeBody(w, r, &req) {
		return
	}

	started := time.Now()
	res := s.automator.Click(r.Context(), req.Selector)
	s.automator.Journal().Record("/ui/click", req.Selector, res, time.Since(started))
	writeJSON(w, http.StatusOK, res)
}

func (s *apiServer) handleInput(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req inputRequest
	if !decodeBody(w, r, &req) {
		return
	}

	started := time.Now()
	res := s.automator.Input(r.Context(), req.Selector, req.Text, req.ClearFirst)
	s.automator.Journal().Record("/ui/input", req.Selector, res, time.Since(started))
	writeJSON(w, http.StatusOK, res)
}

func (s *apiServer) handleScroll(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req scrollRequest
	if !decodeBody(w, r, &req) {
		return
	}

	started := time.Now()
	res := s.automator.Scroll(r.Context(), req.Direction, req.Steps, req.Selector)
	s.automator.Journal().Record("/ui/scroll", req.Selector, res, time.Since(started))
	writeJSON(w, http.StatusOK, res)
}

func (s *apiServer) handleWait(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req waitRequest
	if !decodeBody(w, r, &req) {
		return
	}

	started := time.Now()
	res := s.automator.Wait(r.Context(), req.Selector, req.Condition, req.Timeout)
	s.automator.Journal().Record("/ui/wait", req.Selector, res, time.Since(started))
	writeJSON(w, http.StatusOK, res)
}

func (s *apiServer) handleKey(name string, press func(context.Context) ActionResult) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		started := time.Now()
		res := press(r.Context())
		s.automator.Journal().Record("/device/"+name, nil, res, time.Since(started))
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *apiServer) handleDeviceInfo(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	info, err := s.automator.DeviceInfo(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError,
			failResult(ErrCodeServiceError, fmt.Sprintf("device info unavailable: %v", err), false))
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *apiServer) handleJournal(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	entries, err := s.automator.Journal().Recent(limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError,
			failResult(ErrCodeServiceError, fmt.Sprintf("journal unavailable: %v", err), false))
		return
	}
	if entries == nil {
		entries = []JournalEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// ========================================
// Helpers and middleware
// ========================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		LogWarn("server").Err(err).Msg("Failed to encode response")
	}
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		writeJSON(w, http.StatusMethodNotAllowed,
			failResult(ErrCodeServiceError, fmt.Sprintf("method %s not allowed", r.Method), false))
		return false
	}
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest,
			failResult(ErrCodeServiceError, fmt.Sprintf("invalid request body: %v", err), false))
		return false
	}
	return true
}

// requestIDMiddleware tags every request with an ID for log correlation.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		LogInfo("server").
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Str("requestId", w.Header().Get("X-Request-ID")).
			Dur("duration", time.Since(started)).
			Msg("Request handled")
	})
}

type gzipResponseWriter struct {
	http.ResponseWriter
	gz *gzip.Writer
}

func (g *gzipResponseWriter) Write(p []byte) (int, error) {
	return g.gz.Write(p)
}

// gzipMiddleware compresses responses when the client accepts it. Dump
// payloads for busy screens run to hundreds of kilobytes.
func gzipMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		defer gz.Close()
		next.ServeHTTP(&gzipResponseWriter{ResponseWriter: w, gz: gz}, r)
	})
}

const indexHTML = `<!DOCTYPE html>
<html>
<head><title>Marionette</title></head>
<body>
<h1>Marionette UI Automation Agent</h1>
<p>HTTP control surface for on-device UI automation.</p>
<ul>
  <li><code>GET  /health</code> - liveness</li>
  <li><code>GET  /ui/dump</code> - UI tree snapshot (JSON)</li>
  <li><code>GET  /ui/dump/xml</code> - UI tree snapshot (XML)</li>
  <li><code>POST /ui/click</code> - {selector}</li>
  <li><code>POST /ui/input</code> - {selector, text, clear_first}</li>
  <li><code>POST /ui/scroll</code> - {direction, steps, selector?}</li>
  <li><code>POST /ui/wait</code> - {selector, timeout, condition}</li>
  <li><code>POST /device/back</code> | <code>/device/home</code> | <code>/device/recent</code></li>
  <li><code>GET  /device/info</code> - device descriptors</li>
  <li><code>GET  /journal?limit=N</code> - recent action journal</li>
</ul>
</body>
</html>
`
