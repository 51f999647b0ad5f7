package coach

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tradecoach-platform/tradecoach/internal/api"
	"github.com/tradecoach-platform/tradecoach/internal/auth"
	"github.com/tradecoach-platform/tradecoach/internal/ratelimit"
)

type Handler struct {
	svc      *Service
	validate *validator.Validate
}

func NewHandler(svc *Service) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(),
	}
}

// Chat handles POST /chat.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	plan := planFor(claims, req.Plan)

	result, err := h.svc.Chat(r.Context(), claims.UserID, plan, req.Messages)
	if err != nil {
		h.handleChatError(w, r, claims.UserID, err)
		return
	}

	api.JSON(w, http.StatusOK, ChatResponse{
		Reply:             result.Reply,
		DailyQueriesUsed:  result.Quota.Used,
		DailyQueriesLimit: result.Quota.Limit,
		FromCache:         result.FromCache,
	})
}

func (h *Handler) handleChatError(w http.ResponseWriter, r *http.Request, userID int64, err error) {
	var throttle *ThrottleError
	if errors.As(err, &throttle) {
		setRetryAfter(w, throttle.ResetAt)
		api.HandleError(w, api.NewTooManyRequestsError(throttle.Error()))
		return
	}

	var quota *QuotaError
	if errors.As(err, &quota) {
		setRetryAfter(w, quota.Snapshot.ResetAt)
		api.HandleError(w, api.NewTooManyRequestsError(quota.Error()))
		return
	}

	slog.Error("chat gateway failed", "error", err, "user_id", userID, "path", r.URL.Path)
	api.HandleError(w, api.ErrInternalServer)
}

// QueryCount handles GET /chat/query-count. Read-only, never increments.
func (h *Handler) QueryCount(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	snap := h.svc.QueryCount(r.Context(), claims.UserID, planFor(claims, ""))
	api.JSON(w, http.StatusOK, QueryCountResponse{
		DailyQueriesUsed:  snap.Used,
		DailyQueriesLimit: snap.Limit,
	})
}

// ResetQuota handles POST /chat/reset-quota.
func (h *Handler) ResetQuota(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	if err := h.svc.ResetQuota(r.Context(), claims.UserID); err != nil {
		slog.Error("resetting daily quota", "error", err, "user_id", claims.UserID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONMessage(w, http.StatusOK, "daily quota reset")
}

// planFor resolves the billing plan: token claims win, the request body is
// a fallback for sessions issued before plans landed in the token.
func planFor(claims *auth.AccessClaims, bodyPlan string) ratelimit.Plan {
	if claims.Plan != "" {
		return ratelimit.ParsePlan(claims.Plan)
	}
	return ratelimit.ParsePlan(bodyPlan)
}

func setRetryAfter(w http.ResponseWriter, resetAt time.Time) {
	secs := int(time.Until(resetAt).Seconds())
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
}
