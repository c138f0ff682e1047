package links

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/chainscope/bridge-sentinel/pkg/app/errors"
	apphttp "github.com/chainscope/bridge-sentinel/pkg/app/http"
	"github.com/chainscope/bridge-sentinel/pkg/auth"
	"github.com/chainscope/bridge-sentinel/pkg/model"
)

// defaultStatsWindow is the trailing aggregation window when the request
// does not name one.
const defaultStatsWindow = 24 * time.Hour

// LinkReader is the persistence surface the handler reads from.
type LinkReader interface {
	LinksByWallet(ctx context.Context, address string, limit int) ([]*model.CrossChainLink, error)
	LinkStats(ctx context.Context, window time.Duration) ([]*model.LinkStat, error)
}

// Handler serves link read endpoints.
type Handler struct {
	store  LinkReader
	logger *zap.Logger
}

func NewHandler(store LinkReader, logger *zap.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Register mounts the link routes on the router. The caller applies the
// authentication middleware.
func (h *Handler) Register(r chi.Router) {
	r.Get("/links/wallet/{address}", apphttp.HandleError(h.linksByWallet))
	r.Get("/links/stats", apphttp.HandleError(h.linkStats))
}

type walletLinksResponse struct {
	Wallet string                  `json:"wallet"`
	Links  []*model.CrossChainLink `json:"links"`
	Count  int                     `json:"count"`
}

func (h *Handler) linksByWallet(w http.ResponseWriter, r *http.Request) error {
	if _, err := requirePermission(r, auth.PermLinksRead); err != nil {
		return err
	}

	address := chi.URLParam(r, "address")
	if address == "" {
		return errors.DataError("wallet address is required")
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			return errors.DataError("limit must be an integer between 1 and 500")
		}
		limit = parsed
	}

	links, err := h.store.LinksByWallet(r.Context(), address, limit)
	if err != nil {
		h.logger.Error("Failed to list links by wallet",
			zap.String("wallet", address),
			zap.Error(err))
		return errors.GeneralError(err)
	}

	return apphttp.WriteJSON(w, http.StatusOK, walletLinksResponse{
		Wallet: address,
		Links:  links,
		Count:  len(links),
	})
}

type linkStatsResponse struct {
	Window string            `json:"window"`
	Stats  []*model.LinkStat `json:"stats"`
}

func (h *Handler) linkStats(w http.ResponseWriter, r *http.Request) error {
	if _, err := requirePermission(r, auth.PermStatsRead); err != nil {
		return err
	}

	window := defaultStatsWindow
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			return errors.DataError("window must be a positive duration such as 24h")
		}
		window = parsed
	}

	stats, err := h.store.LinkStats(r.Context(), window)
	if err != nil {
		h.logger.Error("Failed to aggregate link stats", zap.Error(err))
		return errors.GeneralError(err)
	}

	return apphttp.WriteJSON(w, http.StatusOK, linkStatsResponse{
		Window: window.String(),
		Stats:  stats,
	})
}
