package http

// Route patterns for the executor HTTP surface.
const (
	routeState      = "/v1/state"
	routeBoardState = "/v1/state/board"
	routeCrashState = "/v1/state/crash"
	routeHeight     = "/v1/height"
	routeHealth     = "/healthz"
)

// Route names for mux URL building.
const (
	routeNameState      = "rollup_state"
	routeNameBoardState = "rollup_board_state"
	routeNameCrashState = "rollup_crash_state"
	routeNameHeight     = "rollup_height"
	routeNameHealth     = "rollup_health"
)
