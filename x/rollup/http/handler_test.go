package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/hyli-org/degen-party/x/boardgame"
	"github.com/hyli-org/degen-party/x/contract"
	"github.com/hyli-org/degen-party/x/contract/secp"
	"github.com/hyli-org/degen-party/x/crashgame"
	"github.com/hyli-org/degen-party/x/node"
	"github.com/hyli-org/degen-party/x/rollup"
	"github.com/hyli-org/degen-party/x/storage"
)

type nullSink struct{}

func (nullSink) Broadcast(any) error { return nil }

func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()

	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)

	now := uint64(1_000_000)
	backend := contract.NewIdentity("backend", "secp256k1")
	store := rollup.NewStore(map[contract.ContractName]contract.Executor{
		boardgame.Name: boardgame.NewExecutor(backend),
		crashgame.Name: crashgame.NewExecutor(boardgame.Name, backend),
		secp.Name:      secp.New(),
	}, func() uint64 { return now })

	m := rollup.NewModule(rollup.Config{
		BoardContract: boardgame.Name,
		CrashContract: crashgame.Name,
		PrivateKey:    key,
		Now:           func() time.Time { return time.UnixMilli(int64(now)) },
	}, store, node.NewMemoryClient("lane-1", func() uint64 { return now }),
		nil, nil, nullSink{}, storage.NewMemoryStore(), nil, prometheus.NewRegistry())

	r := mux.NewRouter()
	NewHandler(m, zerolog.Nop()).RegisterMux(r)
	return r
}

func TestHandler_StateRoutes(t *testing.T) {
	r := newTestRouter(t)

	for _, route := range []string{routeState, routeBoardState, routeCrashState} {
		req := httptest.NewRequest(http.MethodGet, route, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, route)
		require.Equal(t, "application/json", rec.Header().Get("Content-Type"), route)
	}

	req := httptest.NewRequest(http.MethodGet, routeBoardState, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var board boardgame.Game
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &board))
}

func TestHandler_Height(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, routeHeight, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]uint64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Zero(t, body["height"])
}

func TestHandler_Health(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, routeHealth, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, routeHealth, nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
