package snippets

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/kodespace/apierrors"
	"github.com/saiset-co/kodespace/cache"
	"github.com/saiset-co/kodespace/middleware"
	"github.com/saiset-co/kodespace/types"
	"github.com/saiset-co/kodespace/utils"
)

const (
	snippetCacheName = "snippet"
	snippetCacheTTL  = 5 * time.Minute
	listCacheTTL     = time.Minute

	LikeLimit  = 30
	LikeWindow = time.Minute
)

type Handlers struct {
	repo      Repository
	responder *apierrors.Responder
	validate  *validator.Validate
	caches    *cache.Registry
	revisions *cache.Revisions
	logger    types.Logger
	now       func() time.Time
	load      cache.LoaderFunc[string, *Snippet]

	// Serializes read-modify-write cycles.
	mu sync.Mutex
}

type Option func(*Handlers)

func WithClock(now func() time.Time) Option {
	return func(h *Handlers) {
		h.now = now
	}
}

func NewHandlers(
	repo Repository,
	responder *apierrors.Responder,
	caches *cache.Registry,
	revisions *cache.Revisions,
	logger types.Logger,
	opts ...Option,
) *Handlers {
	h := &Handlers{
		repo:      repo,
		responder: responder,
		validate:  apierrors.NewValidator(),
		caches:    caches,
		revisions: revisions,
		logger:    logger,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(h)
	}

	h.load = cache.Cached[string, *Snippet](caches.User(), snippetCacheName, repo.Get,
		cache.WithTTL[string](snippetCacheTTL),
		cache.WithKeyFunc[string](func(id string) (string, error) { return id, nil }),
	)

	return h
}

func (h *Handlers) RegisterRoutes(router types.HTTPRouter) {
	api := router.Group("/api/snippets")

	api.GET("", middleware.ValidateQueryParams(h.validate, h.list)).
		WithCache(listCacheTTL, cacheDependency)
	api.GET("/{id}", h.get)
	api.POST("", middleware.ValidateRequestBody(h.validate, h.create)).
		WithMiddlewares("auth", "email_verified")
	api.PUT("/{id}", middleware.ValidateRequestBody(h.validate, h.update)).
		WithMiddlewares("auth")
	api.DELETE("/{id}", h.delete).
		WithMiddlewares("auth")
	api.POST("/{id}/verify", h.verify).
		WithRoles(RoleModerator, RoleAdmin)
	api.POST("/{id}/like", h.like).
		WithMiddlewares("auth").
		WithRateLimit(LikeLimit, LikeWindow, types.RateLimitByUser)

	router.GET("/api/cache/stats", h.cacheStats).
		WithRoles(RoleAdmin).
		WithoutMiddlewares("cache")
}

func (h *Handlers) list(ctx *fasthttp.RequestCtx, query *ListQuery) error {
	filter := query.filter()

	list, total, err := h.repo.List(ctx, filter)
	if err != nil {
		return apierrors.NewDatabaseError(err)
	}

	page := filter.Offset/filter.Limit + 1
	return h.responder.WriteSuccess(ctx, http.StatusOK, list, apierrors.NewMeta(total, page, filter.Limit))
}

func (h *Handlers) get(ctx *fasthttp.RequestCtx) error {
	snippet, err := h.find(ctx, utils.PathParam(ctx, "id"))
	if err != nil {
		return err
	}

	return h.responder.WriteSuccess(ctx, http.StatusOK, snippet, nil)
}

func (h *Handlers) create(ctx *fasthttp.RequestCtx, req *CreateRequest) error {
	user, err := requireUser(ctx)
	if err != nil {
		return err
	}

	now := h.now().UTC()
	snippet := &Snippet{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Code:        req.Code,
		Language:    strings.ToLower(req.Language),
		Tags:        normalizeTags(req.Tags),
		AuthorID:    user.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.repo.Create(ctx, snippet); err != nil {
		return apierrors.NewDatabaseError(err)
	}

	h.invalidate(snippet.ID)
	h.logger.Info("Snippet created", zap.String("snippet_id", snippet.ID), zap.String("author_id", user.ID))

	return h.responder.WriteSuccess(ctx, http.StatusCreated, snippet, nil)
}

func (h *Handlers) update(ctx *fasthttp.RequestCtx, req *UpdateRequest) error {
	user, err := requireUser(ctx)
	if err != nil {
		return err
	}

	snippet, err := h.modify(ctx, utils.PathParam(ctx, "id"), func(s *Snippet) error {
		if s.AuthorID != user.ID {
			return apierrors.NewAuthorizationError("Only the author can edit this snippet")
		}

		req.apply(s)
		s.Language = strings.ToLower(s.Language)
		s.Tags = normalizeTags(s.Tags)
		return nil
	})
	if err != nil {
		return err
	}

	return h.responder.WriteSuccess(ctx, http.StatusOK, snippet, nil)
}

func (h *Handlers) delete(ctx *fasthttp.RequestCtx) error {
	user, err := requireUser(ctx)
	if err != nil {
		return err
	}
	id := utils.PathParam(ctx, "id")

	h.mu.Lock()
	defer h.mu.Unlock()

	snippet, err := h.find(ctx, id)
	if err != nil {
		return err
	}

	if snippet.AuthorID != user.ID && !user.HasRole(RoleAdmin) {
		return apierrors.NewAuthorizationError("Only the author or an admin can delete this snippet")
	}

	if err := h.repo.Delete(ctx, id); err != nil {
		return h.storageError(err)
	}

	h.invalidate(id)
	h.logger.Info("Snippet deleted", zap.String("snippet_id", id), zap.String("user_id", user.ID))

	return h.responder.WriteSuccess(ctx, http.StatusOK, map[string]interface{}{"id": id, "deleted": true}, nil)
}

func (h *Handlers) verify(ctx *fasthttp.RequestCtx) error {
	user, err := requireUser(ctx)
	if err != nil {
		return err
	}

	snippet, err := h.modify(ctx, utils.PathParam(ctx, "id"), func(s *Snippet) error {
		if s.Verified {
			return apierrors.NewConflictError("Snippet is already verified")
		}

		s.Verified = true
		s.VerifiedBy = user.ID
		return nil
	})
	if err != nil {
		return err
	}

	return h.responder.WriteSuccess(ctx, http.StatusOK, snippet, nil)
}

func (h *Handlers) like(ctx *fasthttp.RequestCtx) error {
	user, err := requireUser(ctx)
	if err != nil {
		return err
	}

	snippet, err := h.modify(ctx, utils.PathParam(ctx, "id"), func(s *Snippet) error {
		if slices.Contains(s.LikedBy, user.ID) {
			return apierrors.NewConflictError("Snippet is already liked")
		}

		s.LikedBy = append(s.LikedBy, user.ID)
		s.Likes = len(s.LikedBy)
		return nil
	})
	if err != nil {
		return err
	}

	return h.responder.WriteSuccess(ctx, http.StatusOK, map[string]interface{}{"id": snippet.ID, "likes": snippet.Likes}, nil)
}

type cacheStatsView struct {
	cache.CacheStats
	HitRate float64 `json:"hitRate"`
}

func (h *Handlers) cacheStats(ctx *fasthttp.RequestCtx) error {
	stats := h.caches.Stats()

	view := make(map[string]cacheStatsView, len(stats))
	for name, s := range stats {
		view[name] = cacheStatsView{CacheStats: s, HitRate: s.HitRate()}
	}

	utils.SetNoCacheHeaders(ctx)
	return h.responder.WriteSuccess(ctx, http.StatusOK, view, nil)
}

// find returns a private copy of the snippet; the cached value is shared.
func (h *Handlers) find(ctx context.Context, id string) (*Snippet, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apierrors.NewNotFoundError("Snippet not found")
	}

	snippet, err := h.load(ctx, id)
	if err != nil {
		return nil, h.storageError(err)
	}

	return snippet.Clone(), nil
}

func (h *Handlers) modify(ctx context.Context, id string, change func(*Snippet) error) (*Snippet, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	snippet, err := h.find(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := change(snippet); err != nil {
		return nil, err
	}

	snippet.UpdatedAt = h.now().UTC()

	if err := h.repo.Update(ctx, snippet); err != nil {
		return nil, h.storageError(err)
	}

	h.invalidate(id)
	return snippet, nil
}

func (h *Handlers) invalidate(id string) {
	h.caches.User().Delete(snippetCacheName + ":" + id)
	h.revisions.Bump(cacheDependency)
}

func (h *Handlers) storageError(err error) error {
	if errors.Is(err, types.ErrRecordNotFound) {
		return apierrors.NewNotFoundError("Snippet not found")
	}
	return apierrors.NewDatabaseError(err)
}

func normalizeTags(tags []string) []string {
	normalized := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag != "" && !slices.Contains(normalized, tag) {
			normalized = append(normalized, tag)
		}
	}
	return normalized
}

func requireUser(ctx *fasthttp.RequestCtx) (*middleware.User, error) {
	user, ok := middleware.CurrentUser(ctx)
	if !ok {
		return nil, apierrors.NewAuthenticationError("")
	}
	return user, nil
}
