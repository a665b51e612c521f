package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/classic-hero/classichero/internal/book"
	"github.com/classic-hero/classichero/internal/metrics"
	"github.com/classic-hero/classichero/internal/storage"
)

// DefaultRequestTimeout bounds every handler when Config.RequestTimeout is unset.
const DefaultRequestTimeout = 30 * time.Second

// RequestIDHeader carries the per-request id back to the caller.
const RequestIDHeader = "X-Request-ID"

// Pinger reports whether the backing store can serve requests.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RequestIDGenerator issues request ids.
type RequestIDGenerator interface {
	MustNewID() string
}

// Config controls server behavior.
type Config struct {
	RequestTimeout time.Duration
}

// Server wires HTTP handlers to the book store.
type Server struct {
	router chi.Router
	store  book.Store
	pinger Pinger
	ids    RequestIDGenerator
	logger *zap.Logger
}

// BookResponse is a book with its chapters in served form.
type BookResponse struct {
	ID          string               `json:"id"`
	Title       string               `json:"title"`
	Author      string               `json:"author"`
	Difficulty  book.Difficulty      `json:"difficulty"`
	Genre       string               `json:"genre"`
	Year        int                  `json:"year"`
	Description string               `json:"description"`
	CoverColor  string               `json:"coverColor"`
	HeroID      string               `json:"heroId,omitempty"`
	Chapters    []book.ServedChapter `json:"chapters"`
}

// NewServer constructs a Server with middleware and routes. pinger may be nil
// when the store has no external dependency.
func NewServer(
	store book.Store,
	pinger Pinger,
	ids RequestIDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	s := &Server{
		store:  store,
		pinger: pinger,
		ids:    ids,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1/books", func(r chi.Router) {
		r.Get("/", s.listBooks)
		r.Route("/{book_id}", func(r chi.Router) {
			r.Get("/", s.getBook)
			r.Get("/chapters", s.listChapters)
			r.Get("/chapters/{chapter_number}", s.getChapter)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			s.writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listBooks(w http.ResponseWriter, r *http.Request) {
	difficulty := book.Difficulty(r.URL.Query().Get("difficulty"))
	if difficulty != "" && !difficulty.Valid() {
		s.writeError(w, http.StatusBadRequest, "difficulty must be easy, medium or hard")
		return
	}
	books, err := s.store.ListBooks(r.Context(), difficulty)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	out := make([]BookResponse, 0, len(books))
	for _, b := range books {
		chapters, err := s.store.ListChapters(r.Context(), b.ID)
		if err != nil {
			s.storeError(w, r, err)
			return
		}
		out = append(out, toResponse(b, chapters))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) getBook(w http.ResponseWriter, r *http.Request) {
	bookID := chi.URLParam(r, "book_id")
	b, err := s.store.GetBook(r.Context(), bookID)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	chapters, err := s.store.ListChapters(r.Context(), bookID)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toResponse(b, chapters))
}

func (s *Server) listChapters(w http.ResponseWriter, r *http.Request) {
	chapters, err := s.store.ListChapters(r.Context(), chi.URLParam(r, "book_id"))
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	if chapters == nil {
		chapters = []book.ServedChapter{}
	}
	s.writeJSON(w, http.StatusOK, chapters)
}

func (s *Server) getChapter(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(chi.URLParam(r, "chapter_number"))
	if err != nil || number < 1 {
		s.writeError(w, http.StatusBadRequest, "chapter number must be a positive integer")
		return
	}
	ch, err := s.store.GetChapter(r.Context(), chi.URLParam(r, "book_id"), number)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ch)
}

func (s *Server) storeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.logger.Error("store query failed", zap.String("path", r.URL.Path), zap.Error(err))
	s.writeError(w, http.StatusInternalServerError, "internal server error")
}

func toResponse(b book.Book, chapters []book.ServedChapter) BookResponse {
	if chapters == nil {
		chapters = []book.ServedChapter{}
	}
	return BookResponse{
		ID:          b.ID,
		Title:       b.Title,
		Author:      b.Author,
		Difficulty:  b.Difficulty,
		Genre:       b.Genre,
		Year:        b.Year,
		Description: b.Description,
		CoverColor:  b.CoverColor,
		HeroID:      b.HeroID,
		Chapters:    chapters,
	}
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(RequestIDHeader)
		if reqID == "" {
			reqID = s.ids.MustNewID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set(RequestIDHeader, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered",
					zap.String("request_id", RequestID(r.Context())),
					zap.Any("error", rec),
				)
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

// RequestID returns the id assigned by the request-id middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
