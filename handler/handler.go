// Package handler provides the HTTP handlers for the card server.
package handler

import (
	"errors"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/stevemurr/simple-card-server/store"
	"github.com/stevemurr/simple-card-server/web"
)

// maxBodySize caps POST bodies.
const maxBodySize = 10 << 20

// Options tunes the middleware around the routes.
type Options struct {
	// AllowedOrigins lists the CORS origins; "*" allows any.
	AllowedOrigins []string
	// RateLimit is the number of mutating requests per client IP per minute.
	// 0 disables rate limiting.
	RateLimit int
	RateBurst int
	// ExposeStack adds a stack trace to error responses. Debug only: it
	// leaks server internals to clients.
	ExposeStack bool
	// Assets is the static client. Defaults to the embedded web files.
	Assets fs.FS
}

// Handler holds the server dependencies and registers routes.
type Handler struct {
	store   store.Store
	opts    Options
	mux     *http.ServeMux
	root    http.Handler
	metrics *metrics
	limiter *limiter
}

// New creates a Handler and wires up all routes.
func New(s store.Store, opts Options) *Handler {
	if opts.Assets == nil {
		opts.Assets = web.Files
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	h := &Handler{
		store:   s,
		opts:    opts,
		mux:     http.NewServeMux(),
		metrics: newMetrics(s),
	}
	if opts.RateLimit > 0 {
		h.limiter = newLimiter(opts.RateLimit, time.Minute, opts.RateBurst)
	}
	h.routes()
	h.root = logMiddleware(h.recoverMiddleware(corsMiddleware(h.rateLimitMiddleware(h.metricsMiddleware(h.mux)), opts.AllowedOrigins)))
	return h
}

// ServeHTTP makes Handler an http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.root.ServeHTTP(w, r)
}

// Close stops background work. It does not close the store.
func (h *Handler) Close() {
	if h.limiter != nil {
		h.limiter.close()
	}
}

func (h *Handler) routes() {
	h.mux.HandleFunc("GET /health", h.health)
	h.mux.Handle("GET /metrics", h.metrics.handler())

	h.mux.HandleFunc("GET /card", h.listCards)
	h.mux.HandleFunc("GET /card/{id}", h.getCard)
	h.mux.HandleFunc("POST /card", h.createCard)
	h.mux.HandleFunc("DELETE /card/{id}", h.deleteCard)

	h.mux.HandleFunc("GET /", h.static)
	h.mux.HandleFunc("/", h.notFound)
}

// ---------- helpers ----------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// readCard decodes a POST body into a document. JSON objects and url-encoded
// forms are accepted; repeated form keys become arrays.
func readCard(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close()

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return nil, badRequest("invalid form body", err)
		}
		data := make(map[string]any, len(r.PostForm))
		for k, vs := range r.PostForm {
			if len(vs) == 1 {
				data[k] = vs[0]
				continue
			}
			arr := make([]any, len(vs))
			for i, v := range vs {
				arr[i] = v
			}
			data[k] = arr
		}
		return data, nil
	}

	var data map[string]any
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, badRequest("request body is required", nil)
		}
		return nil, badRequest("invalid JSON", err)
	}
	if data == nil {
		return nil, badRequest("request body must be a JSON object", nil)
	}
	return data, nil
}

// ---------- status endpoints ----------

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"documents": h.store.Count(),
	})
}

// ---------- cards ----------

func (h *Handler) listCards(w http.ResponseWriter, r *http.Request) {
	docs, err := h.store.SelectAll()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *Handler) getCard(w http.ResponseWriter, r *http.Request) {
	id, err := store.ParseID(r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	doc, err := h.store.Select(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) createCard(w http.ResponseWriter, r *http.Request) {
	data, err := readCard(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	doc, err := h.store.Insert(data)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) deleteCard(w http.ResponseWriter, r *http.Request) {
	existed := false
	if id, err := store.ParseID(r.PathValue("id")); err == nil {
		if existed, err = h.store.Delete(id); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": existed})
}

// ---------- static client ----------

func (h *Handler) static(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	if name == "" {
		name = "index.html"
	}
	if fi, err := fs.Stat(h.opts.Assets, name); err != nil || fi.IsDir() {
		h.notFound(w, r)
		return
	}
	http.ServeFileFS(w, r, h.opts.Assets, name)
}
