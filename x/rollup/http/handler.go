package http

import (
	"net/http"

	"github.com/rs/zerolog"

	apicommon "github.com/hyli-org/degen-party/server/api"
	"github.com/hyli-org/degen-party/x/rollup"
)

// Handler serves read-only views of the executor's optimistic state. All
// responses come from the module's published snapshot and never touch the
// execution loop.
type Handler struct {
	module *rollup.Module
	log    zerolog.Logger
}

func NewHandler(module *rollup.Module, log zerolog.Logger) *Handler {
	return &Handler{
		module: module,
		log:    log.With().Str("component", "rollup-http").Logger(),
	}
}

// handleState returns the full published state, both games plus the settled
// chain height.
func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	state := h.module.Published()
	if state == nil {
		apicommon.WriteError(
			w, r,
			http.StatusServiceUnavailable,
			"state_unavailable",
			"Executor state is not yet published",
			nil,
		)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, state)
}

// handleBoardState returns the board game's optimistic state.
func (h *Handler) handleBoardState(w http.ResponseWriter, r *http.Request) {
	state := h.module.Published()
	if state == nil || state.Board == nil {
		apicommon.WriteError(
			w, r,
			http.StatusServiceUnavailable,
			"board_unavailable",
			"Board game contract is not hosted",
			nil,
		)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, state.Board)
}

// handleCrashState returns the crash game's optimistic state.
func (h *Handler) handleCrashState(w http.ResponseWriter, r *http.Request) {
	state := h.module.Published()
	if state == nil || state.Crash == nil {
		apicommon.WriteError(
			w, r,
			http.StatusServiceUnavailable,
			"crash_unavailable",
			"Crash game contract is not hosted",
			nil,
		)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, state.Crash)
}

// handleHeight returns the height of the last settled block.
func (h *Handler) handleHeight(w http.ResponseWriter, _ *http.Request) {
	var height uint64
	if state := h.module.Published(); state != nil {
		height = uint64(state.Height)
	}
	apicommon.WriteJSON(w, http.StatusOK, map[string]uint64{"height": height})
}

// handleHealth reports liveness.
func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	apicommon.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
