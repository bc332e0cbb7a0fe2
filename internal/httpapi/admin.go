package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"sitbrief/internal/domain"
	"sitbrief/internal/metrics"
	"sitbrief/internal/ports"
	"sitbrief/internal/usecase"
)

const defaultUnanalyzedLimit = 50

// Analyzer is the classification use case the admin API drives.
type Analyzer interface {
	AnalyzeArticle(ctx context.Context, articleID int64) (domain.ClassificationResult, error)
	Analysis(ctx context.Context, articleID int64) (domain.Analysis, error)
	Unanalyzed(ctx context.Context, limit int) ([]domain.Article, error)
	LinkTopics(ctx context.Context, articleID int64, topicIDs []int64, confirmed bool) (usecase.LinkOutcome, error)
	AttachTopics(ctx context.Context, articleID int64, topicIDs []int64, confirmed bool) (usecase.LinkOutcome, error)
}

// Publisher exports and syncs on demand.
type Publisher interface {
	Publish(ctx context.Context) (usecase.PublishReport, error)
}

// AdminDeps wires the admin API.
type AdminDeps struct {
	Articles  ports.ArticleRepository
	Topics    ports.TopicRepository
	Analyzer  Analyzer
	Publisher Publisher
	Auth      *Authenticator
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// AdminAPI serves the authenticated management endpoints.
type AdminAPI struct {
	deps   AdminDeps
	logger *slog.Logger
}

// NewAdminAPI constructs the admin handlers.
func NewAdminAPI(deps AdminDeps) *AdminAPI {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminAPI{deps: deps, logger: logger.With("component", "admin")}
}

// Router registers every admin route.
func (a *AdminAPI) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(loggingMiddleware(a.logger))

	r.HandleFunc("/health", a.health).Methods(http.MethodGet)
	r.Handle("/metrics", a.deps.Metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/api/auth/login", a.login).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(a.deps.Auth.Middleware)
	api.HandleFunc("/auth/logout", a.logout).Methods(http.MethodPost)

	api.HandleFunc("/articles", a.listArticles).Methods(http.MethodGet)
	api.HandleFunc("/articles", a.createArticle).Methods(http.MethodPost)
	api.HandleFunc("/articles/unanalyzed", a.unanalyzed).Methods(http.MethodGet)
	api.HandleFunc("/articles/{id:[0-9]+}", a.getArticle).Methods(http.MethodGet)
	api.HandleFunc("/articles/{id:[0-9]+}", a.updateArticle).Methods(http.MethodPut)
	api.HandleFunc("/articles/{id:[0-9]+}", a.deleteArticle).Methods(http.MethodDelete)
	api.HandleFunc("/articles/{id:[0-9]+}/analyze", a.analyze).Methods(http.MethodPost)
	api.HandleFunc("/articles/{id:[0-9]+}/analysis", a.analysis).Methods(http.MethodGet)
	api.HandleFunc("/articles/{id:[0-9]+}/topics", a.replaceTopics).Methods(http.MethodPut)
	api.HandleFunc("/articles/{id:[0-9]+}/topics", a.attachTopics).Methods(http.MethodPost)

	api.HandleFunc("/topics", a.listTopics).Methods(http.MethodGet)
	api.HandleFunc("/topics", a.createTopic).Methods(http.MethodPost)
	api.HandleFunc("/topics/{id:[0-9]+}", a.getTopic).Methods(http.MethodGet)
	api.HandleFunc("/topics/{id:[0-9]+}", a.updateTopic).Methods(http.MethodPut)
	api.HandleFunc("/topics/{id:[0-9]+}", a.deleteTopic).Methods(http.MethodDelete)

	api.HandleFunc("/publish", a.publish).Methods(http.MethodPost)

	return r
}

func (a *AdminAPI) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "sitbrief admin"})
}

func (a *AdminAPI) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	session, err := a.deps.Auth.Login(req.Username, req.Password)
	switch {
	case errors.Is(err, ErrAuthNotConfigured):
		a.logger.Error("login attempted without admin credentials configured")
		writeMessage(w, http.StatusInternalServerError, err.Error())
		return
	case err != nil:
		a.logger.Warn("login rejected", "username", req.Username)
		writeMessage(w, http.StatusUnauthorized, err.Error())
		return
	}
	a.logger.Info("admin logged in", "username", session.Username)
	writeData(w, http.StatusOK, session)
}

func (a *AdminAPI) logout(w http.ResponseWriter, r *http.Request) {
	if session, ok := SessionFrom(r.Context()); ok {
		a.deps.Auth.Logout(session.Token)
	}
	writeMessage(w, http.StatusOK, "logged out")
}

func (a *AdminAPI) listArticles(w http.ResponseWriter, r *http.Request) {
	articles, err := a.deps.Articles.ListArticles(r.Context())
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeData(w, http.StatusOK, newArticleDTOs(articles))
}

func (a *AdminAPI) getArticle(w http.ResponseWriter, r *http.Request) {
	article, err := a.deps.Articles.GetArticle(r.Context(), pathID(r))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeData(w, http.StatusOK, newArticleDTO(article))
}

func (a *AdminAPI) createArticle(w http.ResponseWriter, r *http.Request) {
	var req articleRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	article, err := req.article()
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	created, err := a.deps.Articles.CreateArticle(r.Context(), article)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	a.logger.Info("article created", "article_id", created.ID)
	writeData(w, http.StatusCreated, newArticleDTO(created))
}

func (a *AdminAPI) updateArticle(w http.ResponseWriter, r *http.Request) {
	var req articleRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	article, err := req.article()
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	article.ID = pathID(r)
	if err := a.deps.Articles.UpdateArticle(r.Context(), article); err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "article updated")
}

func (a *AdminAPI) deleteArticle(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	if err := a.deps.Articles.DeleteArticle(r.Context(), id); err != nil {
		writeError(w, a.logger, err)
		return
	}
	a.logger.Info("article deleted", "article_id", id)
	writeMessage(w, http.StatusOK, "article deleted")
}

func (a *AdminAPI) unanalyzed(w http.ResponseWriter, r *http.Request) {
	limit := defaultUnanalyzedLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, a.logger, invalid("limit must be a positive integer"))
			return
		}
		limit = n
	}
	articles, err := a.deps.Analyzer.Unanalyzed(r.Context(), limit)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeData(w, http.StatusOK, newArticleDTOs(articles))
}

func (a *AdminAPI) analyze(w http.ResponseWriter, r *http.Request) {
	result, err := a.deps.Analyzer.AnalyzeArticle(r.Context(), pathID(r))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

func (a *AdminAPI) analysis(w http.ResponseWriter, r *http.Request) {
	stored, err := a.deps.Analyzer.Analysis(r.Context(), pathID(r))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeData(w, http.StatusOK, newAnalysisDTO(stored))
}

func (a *AdminAPI) replaceTopics(w http.ResponseWriter, r *http.Request) {
	a.reconcile(w, r, a.deps.Analyzer.LinkTopics)
}

func (a *AdminAPI) attachTopics(w http.ResponseWriter, r *http.Request) {
	a.reconcile(w, r, a.deps.Analyzer.AttachTopics)
}

type reconcileFunc func(ctx context.Context, articleID int64, topicIDs []int64, confirmed bool) (usecase.LinkOutcome, error)

func (a *AdminAPI) reconcile(w http.ResponseWriter, r *http.Request, fn reconcileFunc) {
	var req linkRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	if req.TopicIDs == nil {
		writeError(w, a.logger, invalid("topicIds is required"))
		return
	}
	outcome, err := fn(r.Context(), pathID(r), req.TopicIDs, req.confirmed())
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeData(w, http.StatusOK, outcome)
}

func (a *AdminAPI) listTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := a.deps.Topics.ListTopics(r.Context())
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	out := make([]topicDTO, 0, len(topics))
	for _, t := range topics {
		out = append(out, newTopicDTO(t))
	}
	writeData(w, http.StatusOK, out)
}

func (a *AdminAPI) getTopic(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	topic, err := a.deps.Topics.GetTopic(r.Context(), id)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	articles, err := a.deps.Topics.TopicArticles(r.Context(), id)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	dto := newTopicDTO(topic)
	dto.Articles = newArticleDTOs(articles)
	writeData(w, http.StatusOK, dto)
}

func (a *AdminAPI) createTopic(w http.ResponseWriter, r *http.Request) {
	var req topicRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	topic, err := req.topic()
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	created, err := a.deps.Topics.CreateTopic(r.Context(), topic)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	a.logger.Info("topic created", "topic_id", created.ID)
	writeData(w, http.StatusCreated, newTopicDTO(created))
}

func (a *AdminAPI) updateTopic(w http.ResponseWriter, r *http.Request) {
	var req topicRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	topic, err := req.topic()
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	topic.ID = pathID(r)
	if err := a.deps.Topics.UpdateTopic(r.Context(), topic); err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "topic updated")
}

func (a *AdminAPI) deleteTopic(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	if err := a.deps.Topics.DeleteTopic(r.Context(), id); err != nil {
		writeError(w, a.logger, err)
		return
	}
	a.logger.Info("topic deleted", "topic_id", id)
	writeMessage(w, http.StatusOK, "topic deleted")
}

func (a *AdminAPI) publish(w http.ResponseWriter, r *http.Request) {
	if a.deps.Publisher == nil {
		writeMessage(w, http.StatusServiceUnavailable, "publishing is not configured")
		return
	}
	report, err := a.deps.Publisher.Publish(r.Context())
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"generatedAt": report.Export.GeneratedAt,
		"files":       report.Export.Keys,
		"uploaded":    len(report.Sync.Uploaded),
		"deleted":     len(report.Sync.Deleted),
	})
}

// pathID reads the {id} route variable; the route pattern guarantees digits.
func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}
