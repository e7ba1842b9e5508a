package http

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Register binds stdlib mux routes.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc(routeState, h.handleState)
	mux.HandleFunc(routeBoardState, h.handleBoardState)
	mux.HandleFunc(routeCrashState, h.handleCrashState)
	mux.HandleFunc(routeHeight, h.handleHeight)
	mux.HandleFunc(routeHealth, h.handleHealth)
}

// RegisterMux binds gorilla/mux routes.
func (h *Handler) RegisterMux(r *mux.Router) {
	r.HandleFunc(routeState, h.handleState).
		Methods(http.MethodGet).
		Name(routeNameState)

	r.HandleFunc(routeBoardState, h.handleBoardState).
		Methods(http.MethodGet).
		Name(routeNameBoardState)

	r.HandleFunc(routeCrashState, h.handleCrashState).
		Methods(http.MethodGet).
		Name(routeNameCrashState)

	r.HandleFunc(routeHeight, h.handleHeight).
		Methods(http.MethodGet).
		Name(routeNameHeight)

	r.HandleFunc(routeHealth, h.handleHealth).
		Methods(http.MethodGet).
		Name(routeNameHealth)
}
