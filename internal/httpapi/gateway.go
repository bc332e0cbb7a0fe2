package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"sitbrief/internal/config"
	"sitbrief/internal/domain"
	"sitbrief/internal/metrics"
)

const gatewayCacheControl = "public, max-age=300"

// ObjectReader is the read side of the bucket the gateway proxies.
type ObjectReader interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Gateway serves exported documents read-only to app clients.
type Gateway struct {
	store   ObjectReader
	prefix  string
	token   string
	cache   *expirable.LRU[string, []byte]
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewGateway wires the gateway to the bucket holding exports under prefix.
func NewGateway(store ObjectReader, prefix string, cfg config.GatewayConfig, m *metrics.Metrics, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Gateway{
		store:   store,
		prefix:  strings.Trim(prefix, "/"),
		token:   cfg.AccessToken,
		cache:   expirable.NewLRU[string, []byte](cfg.CacheSize, nil, ttl),
		metrics: m,
		logger:  logger.With("component", "gateway"),
	}
}

// Router registers the public routes.
func (g *Gateway) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware)
	r.Use(loggingMiddleware(g.logger))
	r.Methods(http.MethodOptions).HandlerFunc(preflight)

	r.HandleFunc("/", g.health).Methods(http.MethodGet)
	r.HandleFunc("/health", g.health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(g.requireToken)
	api.HandleFunc("/metadata", g.serve("metadata.json")).Methods(http.MethodGet)
	api.HandleFunc("/topics", g.serve("topics.json")).Methods(http.MethodGet)
	api.HandleFunc("/articles/latest", g.serve("articles/latest.json")).Methods(http.MethodGet)
	api.HandleFunc("/articles", g.serve("articles/latest.json")).Methods(http.MethodGet)
	api.HandleFunc("/articles/page/{page:[0-9]+}", g.servePage).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(notFound)
	api.NotFoundHandler = r.NotFoundHandler
	return r
}

func (g *Gateway) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "sitbrief gateway"})
}

func (g *Gateway) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing Authorization header"})
			return
		}
		token := header
		if t, ok := bearerToken(header); ok {
			token = t
		}
		if g.token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(g.token)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Gateway) serve(key string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g.serveKey(w, r, key)
	}
}

func (g *Gateway) servePage(w http.ResponseWriter, r *http.Request) {
	page := strings.TrimLeft(mux.Vars(r)["page"], "0")
	if page == "" {
		notFound(w, r)
		return
	}
	g.serveKey(w, r, fmt.Sprintf("articles/page-%s.json", page))
}

func (g *Gateway) serveKey(w http.ResponseWriter, r *http.Request, key string) {
	if g.prefix != "" {
		key = g.prefix + "/" + key
	}

	content, hit := g.cache.Get(key)
	g.metrics.CacheLookup(hit)
	if !hit {
		data, err := g.store.Get(r.Context(), key)
		if errors.Is(err, domain.ErrObjectNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "File not found", "key": key})
			return
		}
		if err != nil {
			g.logger.Error("object read failed", "key", key, "error", err)
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "storage unavailable"})
			return
		}
		g.cache.Add(key, data)
		content = data
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", gatewayCacheControl)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		next.ServeHTTP(w, r)
	})
}

func preflight(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.WriteHeader(http.StatusNoContent)
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not Found"})
}
