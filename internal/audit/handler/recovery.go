package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"custody/pkg/platform/httputil"
	"custody/pkg/requestcontext"
)

// RecoveryBuffer reports the state of the writer's recovery buffer.
type RecoveryBuffer interface {
	Len() int
	Dropped() int64
}

// Replayer persists one batch of buffered events and returns how many landed.
type Replayer interface {
	Drain(ctx context.Context) int
}

// Breaker reports and resets the writer's circuit breaker.
type Breaker interface {
	BreakerOpen() bool
	ResetBreaker()
}

// RecoveryHandler exposes operator endpoints over the recovery buffer.
type RecoveryHandler struct {
	buffer   RecoveryBuffer
	replayer Replayer
	breaker  Breaker
	logger   *slog.Logger
}

func NewRecoveryHandler(buffer RecoveryBuffer, replayer Replayer, breaker Breaker, logger *slog.Logger) *RecoveryHandler {
	return &RecoveryHandler{buffer: buffer, replayer: replayer, breaker: breaker, logger: logger}
}

// Register mounts the endpoints. Callers gate them behind the admin token.
func (h *RecoveryHandler) Register(r chi.Router) {
	r.Get("/admin/audit/recovery", h.HandleStatus)
	r.Post("/admin/audit/recovery/replay", h.HandleReplay)
	if h.breaker != nil {
		r.Post("/admin/audit/recovery/breaker/reset", h.HandleResetBreaker)
	}
}

type RecoveryStatusResponse struct {
	Success     bool  `json:"success"`
	Depth       int   `json:"depth"`
	Dropped     int64 `json:"dropped"`
	BreakerOpen bool  `json:"breaker_open"`
}

type BreakerResetResponse struct {
	Success     bool `json:"success"`
	WasOpen     bool `json:"was_open"`
	BreakerOpen bool `json:"breaker_open"`
}

type ReplayResponse struct {
	Success   bool `json:"success"`
	Replayed  int  `json:"replayed"`
	Remaining int  `json:"remaining"`
}

// HandleStatus handles GET /admin/audit/recovery.
func (h *RecoveryHandler) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, &RecoveryStatusResponse{
		Success:     true,
		Depth:       h.buffer.Len(),
		Dropped:     h.buffer.Dropped(),
		BreakerOpen: h.breaker != nil && h.breaker.BreakerOpen(),
	})
}

// HandleReplay handles POST /admin/audit/recovery/replay.
func (h *RecoveryHandler) HandleReplay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	replayed := h.replayer.Drain(ctx)
	remaining := h.buffer.Len()

	h.logger.InfoContext(ctx, "manual audit replay",
		"request_id", requestcontext.RequestID(ctx),
		"replayed", replayed,
		"remaining", remaining,
	)
	httputil.WriteJSON(w, http.StatusOK, &ReplayResponse{
		Success:   true,
		Replayed:  replayed,
		Remaining: remaining,
	})
}

// HandleResetBreaker handles POST /admin/audit/recovery/breaker/reset. It
// closes the circuit so writes and replays reach the store again without
// waiting out the cooldown.
func (h *RecoveryHandler) HandleResetBreaker(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wasOpen := h.breaker.BreakerOpen()
	h.breaker.ResetBreaker()

	h.logger.InfoContext(ctx, "audit circuit breaker reset",
		"request_id", requestcontext.RequestID(ctx),
		"was_open", wasOpen,
	)
	httputil.WriteJSON(w, http.StatusOK, &BreakerResetResponse{
		Success:     true,
		WasOpen:     wasOpen,
		BreakerOpen: h.breaker.BreakerOpen(),
	})
}
