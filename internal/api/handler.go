package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eugenenazirov/coffee-shop/internal/auth"
	"github.com/eugenenazirov/coffee-shop/internal/drinks"
	"github.com/eugenenazirov/coffee-shop/internal/environment"
	"github.com/eugenenazirov/coffee-shop/internal/storage"
)

const maxRequestBodyBytes = 1 << 20

// Permissions required by the protected drink endpoints.
const (
	PermGetDrinksDetail = "get:drinks-detail"
	PermPostDrinks      = "post:drinks"
	PermPatchDrinks     = "patch:drinks"
	PermDeleteDrinks    = "delete:drinks"
)

type contextKey string

const (
	requestIDContextKey contextKey = "requestID"
	claimsContextKey    contextKey = "claims"
)

// TokenVerifier validates bearer tokens presented to protected endpoints.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*auth.Claims, error)
}

// Handler wires storage, token verification and the active environment into HTTP handlers.
type Handler struct {
	storage  storage.Storage
	verifier TokenVerifier
	env      environment.Environment
	logger   *zap.Logger

	clock    func() time.Time
	newState func() string
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithHandlerLogger sets the logger used for unexpected failures.
func WithHandlerLogger(logger *zap.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithStateGenerator overrides how login state values are produced.
func WithStateGenerator(fn func() string) HandlerOption {
	return func(h *Handler) {
		h.newState = fn
	}
}

// NewHandler constructs a Handler with the provided dependencies.
func NewHandler(store storage.Storage, verifier TokenVerifier, env environment.Environment, opts ...HandlerOption) *Handler {
	h := &Handler{
		storage:  store,
		verifier: verifier,
		env:      env,
		logger:   zap.NewNop(),
		clock: func() time.Time {
			return time.Now().UTC()
		},
		newState: uuid.NewString,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// healthChecker is implemented by stores that can check their backend.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
	}
	if checker, ok := h.storage.(healthChecker); ok {
		if err := checker.HealthCheck(r.Context()); err != nil {
			h.logger.Warn("storage health check failed", zap.Error(err))
			resp.Status = "unavailable"
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleEnvironment(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.env)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.env.LoginURL(h.newState()), http.StatusFound)
}

func (h *Handler) handleListDrinks(w http.ResponseWriter, r *http.Request) {
	list, err := h.storage.List(r.Context())
	if err != nil {
		h.writeInternalError(w, r, err)
		return
	}

	out := make([]drinks.ShortDrink, 0, len(list))
	for _, d := range list {
		out = append(out, d.Short())
	}
	writeJSON(w, http.StatusOK, drinksResponse[drinks.ShortDrink]{Success: true, Drinks: out})
}

func (h *Handler) handleDrinkDetails(w http.ResponseWriter, r *http.Request) {
	list, err := h.storage.List(r.Context())
	if err != nil {
		h.writeInternalError(w, r, err)
		return
	}

	out := make([]drinks.Drink, 0, len(list))
	for _, d := range list {
		out = append(out, d.Long())
	}
	writeJSON(w, http.StatusOK, drinksResponse[drinks.Drink]{Success: true, Drinks: out})
}

func (h *Handler) handleCreateDrink(w http.ResponseWriter, r *http.Request) {
	var req drinkRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity)
		return
	}

	drink := drinks.Drink{Recipe: req.Recipe}
	if req.Title != nil {
		drink.Title = *req.Title
	}

	created, err := h.storage.Create(r.Context(), drink)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	h.logger.Info("drink created", zap.Int64("id", created.ID), zap.String("subject", subjectFromContext(r.Context())))
	writeJSON(w, http.StatusOK, drinksResponse[drinks.Drink]{Success: true, Drinks: []drinks.Drink{created.Long()}})
}

func (h *Handler) handlePatchDrink(w http.ResponseWriter, r *http.Request) {
	id, ok := drinkID(r)
	if !ok {
		writeError(w, http.StatusNotFound)
		return
	}

	var req drinkRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest)
		return
	}

	existing, err := h.storage.Get(r.Context(), id)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}

	if req.Title == nil || strings.TrimSpace(*req.Title) == "" {
		writeError(w, http.StatusBadRequest)
		return
	}

	existing.Title = *req.Title
	if req.Recipe != nil {
		existing.Recipe = req.Recipe
	}

	updated, err := h.storage.Update(r.Context(), existing)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	h.logger.Info("drink updated", zap.Int64("id", updated.ID), zap.String("subject", subjectFromContext(r.Context())))
	writeJSON(w, http.StatusOK, drinksResponse[drinks.Drink]{Success: true, Drinks: []drinks.Drink{updated.Long()}})
}

func (h *Handler) handleDeleteDrink(w http.ResponseWriter, r *http.Request) {
	id, ok := drinkID(r)
	if !ok {
		writeError(w, http.StatusNotFound)
		return
	}

	if err := h.storage.Delete(r.Context(), id); err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	h.logger.Info("drink deleted", zap.Int64("id", id), zap.String("subject", subjectFromContext(r.Context())))
	writeJSON(w, http.StatusOK, deleteResponse{Success: true, Delete: id})
}

func (h *Handler) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound)
}

// requirePermission rejects requests whose bearer token does not grant perm.
func (h *Handler) requirePermission(perm string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.BearerToken(r.Header.Get("Authorization"))
		if err != nil {
			writeAuthError(w, err)
			return
		}

		claims, err := h.verifier.Verify(r.Context(), token)
		if errors.Is(err, auth.ErrKeySourceUnavailable) {
			h.writeInternalError(w, r, err)
			return
		}
		if err != nil {
			h.logger.Warn("token validation failed",
				zap.String("path", r.URL.Path),
				zap.String("request_id", requestIDFromContext(r.Context())),
				zap.Error(err),
			)
			writeAuthError(w, err)
			return
		}

		if err := auth.CheckPermission(claims, perm); err != nil {
			writeAuthError(w, err)
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), claimsContextKey, claims)))
	}
}

func (h *Handler) writeStorageError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, drinks.ErrNotFound):
		writeError(w, http.StatusNotFound)
	case errors.Is(err, drinks.ErrInvalidDrink), errors.Is(err, drinks.ErrDuplicateTitle):
		h.logger.Debug("drink rejected",
			zap.String("request_id", requestIDFromContext(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusUnprocessableEntity)
	default:
		h.writeInternalError(w, r, err)
	}
}

func (h *Handler) writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("request_id", requestIDFromContext(r.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

func drinkID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

func claimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*auth.Claims)
	return claims, ok
}

func subjectFromContext(ctx context.Context) string {
	if claims, ok := claimsFromContext(ctx); ok {
		return claims.Subject
	}
	return ""
}
