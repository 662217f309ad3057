package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimazeighami/dust-zap-engine/internal/configs"
	"github.com/nimazeighami/dust-zap-engine/internal/fees"
	"github.com/nimazeighami/dust-zap-engine/internal/intents"
	"github.com/nimazeighami/dust-zap-engine/internal/stream"
	"github.com/nimazeighami/dust-zap-engine/internal/types"
)

const (
	testUser     = "0x2a84Ca5ED9F9F9C52F42D44ca9fe4ef962BB2b47"
	testTarget   = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"
	testRouter   = "0x1111111254EEB25477B68fb85Ed929f73A960582"
	testTreasury = "0x3333333333333333333333333333333333333333"
)

type staticPrices struct{}

func (staticPrices) GetPrice(_ context.Context, _ string) (decimal.Decimal, error) {
	return decimal.NewFromInt(3000), nil
}

type noBalances struct{}

func (noBalances) GetBalances(_ context.Context, _ string, _ int64) ([]types.Token, error) {
	return nil, nil
}

type staticQuotes struct{}

func (staticQuotes) GetBest(_ context.Context, req *types.QuoteRequest) (*types.SwapQuote, error) {
	toAmount := big.NewInt(6000000000000)
	return &types.SwapQuote{
		Provider:    "1inch",
		To:          testRouter,
		ApproveTo:   testRouter,
		ToAmount:    toAmount,
		MinToAmount: types.MinOutAmount(toAmount, req.SlippagePct),
		Data:        "0x12345678",
		Gas:         150_000,
		GasCostUSD:  decimal.NewFromFloat(0.0001),
		ToUSD:       decimal.NewFromFloat(0.018),
	}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *intents.Manager) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	cfg := &configs.Config{
		DustThresholdUSD:  configs.DEFAULT_DUST_THRESHOLD_USD,
		MaxDustTokens:     configs.DEFAULT_MAX_DUST_TOKENS,
		HeartbeatInterval: time.Hour,
		ConnectionTimeout: 5 * time.Minute,
		MaxContexts:       100,
		MaxConnections:    10,
		TreasuryAddress:   common.HexToAddress(testTreasury),
		PlatformFeeRate:   configs.DEFAULT_PLATFORM_FEE_RATE,
		ReferrerFeeShare:  configs.DEFAULT_REFERRER_FEE_SHARE,
	}

	store := intents.NewManager(cfg.ConnectionTimeout, time.Hour, cfg.MaxContexts, log)
	t.Cleanup(store.Close)

	handler := intents.NewDustZapHandler(cfg, staticPrices{}, noBalances{}, store, log)
	registry := intents.NewRegistry()
	registry.Register(intents.IntentTypeDustZap, handler)

	pipeline := stream.NewPipeline(
		stream.NewProcessor(staticQuotes{}, log),
		fees.NewCalculator(cfg.PlatformFeeRate, cfg.ReferrerFeeShare, cfg.TreasuryAddress),
		cfg.HeartbeatInterval,
		log,
	)

	srv := httptest.NewServer(New(cfg, registry, store, pipeline, log).Handler())
	t.Cleanup(srv.Close)
	return srv, store
}

func createIntent(t *testing.T, srv *httptest.Server) intents.IntentResponse {
	t.Helper()
	body := fmt.Sprintf(`{
		"userAddress": %q,
		"chainId": 1,
		"params": {
			"toTokenAddress": %q,
			"toTokenDecimals": 18,
			"dustTokens": [{
				"address": "0x6982508145454Ce325dDbE47a25d4ec3d2311933",
				"symbol": "PEPE",
				"decimals": 18,
				"priceUSD": "0.02",
				"rawAmountHex": "0xde0b6b3a7640000"
			}]
		}
	}`, testUser, testTarget)

	resp, err := http.Post(srv.URL+"/intents/dustZap", "application/json", bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out intents.IntentResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// readSSE consumes the whole stream and returns the decoded event payloads.
func readSSE(t *testing.T, body io.Reader) []map[string]interface{} {
	t.Helper()
	raw, err := io.ReadAll(body)
	require.NoError(t, err)

	var events []map[string]interface{}
	for _, frame := range strings.Split(string(raw), "\n\n") {
		frame = strings.TrimSpace(frame)
		if frame == "" {
			continue
		}
		require.True(t, strings.HasPrefix(frame, "data: "), frame)
		var event map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frame, "data: ")), &event))
		events = append(events, event)
	}
	return events
}

func TestCreateAndStream(t *testing.T) {
	srv, _ := newTestServer(t)
	created := createIntent(t, srv)

	assert.Regexp(t, `^dustZap_\d+_bb2b47_[0-9a-f]{16}$`, created.IntentID)
	assert.Equal(t, "/intents/"+created.IntentID+"/stream", created.StreamURL)
	assert.Equal(t, "streaming", created.Mode)
	assert.Equal(t, 1, created.Metadata.TotalTokens)

	resp, err := http.Get(srv.URL + created.StreamURL)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	events := readSSE(t, resp.Body)
	require.Len(t, events, 3)
	assert.Equal(t, "connected", events[0]["type"])
	assert.Equal(t, "token_ready", events[1]["type"])
	assert.Equal(t, "complete", events[2]["type"])

	assert.Equal(t, "5940000000000", events[1]["minToAmount"])

	complete := events[2]
	txs := complete["transactions"].([]interface{})
	require.Len(t, txs, 3)
	feeTx := txs[2].(map[string]interface{})
	assert.Equal(t, "666666666", feeTx["value"])
}

func TestStreamIsSingleConsumer(t *testing.T) {
	srv, _ := newTestServer(t)
	created := createIntent(t, srv)

	first, err := http.Get(srv.URL + created.StreamURL)
	require.NoError(t, err)
	io.Copy(io.Discard, first.Body)
	first.Body.Close()
	require.Equal(t, http.StatusOK, first.StatusCode)

	second, err := http.Get(srv.URL + created.StreamURL)
	require.NoError(t, err)
	defer second.Body.Close()
	assert.Equal(t, http.StatusNotFound, second.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(second.Body).Decode(&body))
	assert.Equal(t, "UNKNOWN_INTENT", body["code"])
}

func TestStreamExpiredIntent(t *testing.T) {
	srv, _ := newTestServer(t)

	// Well-formed id with a timestamp older than the connection timeout.
	staleMillis := time.Now().Add(-10 * time.Minute).UnixMilli()
	staleID := fmt.Sprintf("dustZap_%d_bb2b47_deadbeefdeadbeef", staleMillis)

	resp, err := http.Get(srv.URL + "/intents/" + staleID + "/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusGone, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "EXPIRED", body["code"])
}

func TestStreamUnknownIntent(t *testing.T) {
	srv, _ := newTestServer(t)

	freshID := fmt.Sprintf("dustZap_%d_bb2b47_deadbeefdeadbeef", time.Now().UnixMilli())
	resp, err := http.Get(srv.URL + "/intents/" + freshID + "/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateRejectsInvalidBody(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/intents/dustZap", "application/json", strings.NewReader("not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
}

func TestCreateRejectsEmptyDust(t *testing.T) {
	srv, _ := newTestServer(t)

	body := fmt.Sprintf(`{
		"userAddress": %q,
		"chainId": 1,
		"params": {"toTokenAddress": %q, "toTokenDecimals": 18, "dustTokens": []}
	}`, testUser, testTarget)

	resp, err := http.Post(srv.URL+"/intents/dustZap", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "NO_DUST_TOKENS", out["code"])
}

func TestHealthz(t *testing.T) {
	srv, store := newTestServer(t)
	require.NoError(t, store.Put("probe", &types.ExecutionContext{}))

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 1, body["contexts"])
}
