package usage

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/tradecoach-platform/tradecoach/internal/api"
	"github.com/tradecoach-platform/tradecoach/internal/auth"
)

type Handler struct {
	repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// List handles GET /usage: the caller's recent chat usage records.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	params := DefaultListParams()
	if p := r.URL.Query().Get("page"); p != "" {
		if page, err := strconv.Atoi(p); err == nil && page > 0 {
			params.Page = page
		}
	}
	if ps := r.URL.Query().Get("page_size"); ps != "" {
		if pageSize, err := strconv.Atoi(ps); err == nil && pageSize > 0 && pageSize <= 100 {
			params.PageSize = pageSize
		}
	}
	params.Outcome = r.URL.Query().Get("outcome")

	records, totalCount, err := h.repo.ListByUser(r.Context(), claims.UserID, params)
	if err != nil {
		slog.Error("listing usage records", "error", err, "user_id", claims.UserID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, records, totalCount, params.Page, params.PageSize)
}
