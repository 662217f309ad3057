// Package stream runs the token-by-token dust-zap pipeline over a
// server-sent-events connection.
package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/nimazeighami/dust-zap-engine/internal/fees"
	"github.com/nimazeighami/dust-zap-engine/internal/types"
)

const (
	EventConnected   = "connected"
	EventTokenReady  = "token_ready"
	EventTokenFailed = "token_failed"
	EventComplete    = "complete"
	EventError       = "error"
	EventHeartbeat   = "heartbeat"
)

// EventSink delivers one event to the client. Writes are synchronous: if
// the transport blocks, the pipeline blocks.
type EventSink interface {
	Send(event interface{}) error
}

func eventTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

type ConnectedEvent struct {
	Type      string `json:"type"`
	IntentID  string `json:"intentId"`
	Timestamp string `json:"timestamp"`
}

type TokenReadyEvent struct {
	Type                string              `json:"type"`
	TokenIndex          int                 `json:"tokenIndex"`
	TokenSymbol         string              `json:"tokenSymbol"`
	TokenAddress        string              `json:"tokenAddress"`
	Transactions        []types.Transaction `json:"transactions"`
	Provider            string              `json:"provider"`
	ExpectedTokenAmount string              `json:"expectedTokenAmount"`
	MinToAmount         string              `json:"minToAmount"`
	ToUSD               decimal.Decimal     `json:"toUsd"`
	GasCostUSD          decimal.Decimal     `json:"gasCostUSD"`
	TradingLoss         types.TradingLoss   `json:"tradingLoss"`
	Progress            decimal.Decimal     `json:"progress"`
	ProcessedTokens     int                 `json:"processedTokens"`
	TotalTokens         int                 `json:"totalTokens"`
	Timestamp           string              `json:"timestamp"`
}

type TokenFailedEvent struct {
	Type                string            `json:"type"`
	TokenIndex          int               `json:"tokenIndex"`
	TokenSymbol         string            `json:"tokenSymbol"`
	TokenAddress        string            `json:"tokenAddress"`
	Error               string            `json:"error"`
	ErrorCategory       string            `json:"errorCategory"`
	UserFriendlyMessage string            `json:"userFriendlyMessage"`
	Provider            string            `json:"provider"`
	TradingLoss         types.TradingLoss `json:"tradingLoss"`
	Progress            decimal.Decimal   `json:"progress"`
	ProcessedTokens     int               `json:"processedTokens"`
	TotalTokens         int               `json:"totalTokens"`
	Timestamp           string            `json:"timestamp"`
}

type CompleteMetadata struct {
	TotalTokens       int             `json:"totalTokens"`
	ProcessedTokens   int             `json:"processedTokens"`
	TotalValueUSD     decimal.Decimal `json:"totalValueUSD"`
	FeeInfo           fees.Info       `json:"feeInfo"`
	EstimatedTotalGas string          `json:"estimatedTotalGas"`
}

type CompleteEvent struct {
	Type         string              `json:"type"`
	Transactions []types.Transaction `json:"transactions"`
	Metadata     CompleteMetadata    `json:"metadata"`
	Timestamp    string              `json:"timestamp"`
}

type ErrorEvent struct {
	Type      string `json:"type"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

type HeartbeatEvent struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// SSEWriter frames events as `data: <json>\n\n` on a text/event-stream
// response, flushing after every write.
type SSEWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support streaming")
	}
	return &SSEWriter{w: w, flusher: flusher}, nil
}

func (s *SSEWriter) Send(event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to encode event")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return errors.Wrap(err, "failed to write event")
	}
	s.flusher.Flush()
	return nil
}
