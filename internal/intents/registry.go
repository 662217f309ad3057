package intents

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/nimazeighami/dust-zap-engine/internal/zaperr"
)

// IntentRequest is the common request envelope. Params are decoded by the
// handler the intent type maps to.
type IntentRequest struct {
	UserAddress string          `json:"userAddress"`
	ChainID     int64           `json:"chainId"`
	Params      json.RawMessage `json:"params"`
}

// IntentMetadata summarizes the prepared intent for the client.
type IntentMetadata struct {
	TotalTokens          int             `json:"totalTokens"`
	TotalValueUSD        decimal.Decimal `json:"totalValueUSD"`
	EstimatedDurationSec int             `json:"estimatedDuration"`
}

// IntentResponse tells the client where to pick up the stream.
type IntentResponse struct {
	IntentID  string         `json:"intentId"`
	StreamURL string         `json:"streamUrl"`
	Mode      string         `json:"mode"`
	Metadata  IntentMetadata `json:"metadata"`
}

// Handler executes one intent type.
type Handler interface {
	Execute(ctx context.Context, req *IntentRequest) (*IntentResponse, error)
}

// Registry maps intent-type strings to handlers and validates the common
// envelope before dispatch.
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(intentType string, h Handler) {
	r.handlers[intentType] = h
}

// Execute validates the envelope and dispatches to the registered handler.
func (r *Registry) Execute(ctx context.Context, intentType string, req *IntentRequest) (*IntentResponse, error) {
	if err := validateEnvelope(req); err != nil {
		return nil, err
	}
	h, ok := r.handlers[intentType]
	if !ok {
		return nil, zaperr.Newf(zaperr.KindNotFound, "unknown intent type %q", intentType)
	}
	return h.Execute(ctx, req)
}

func validateEnvelope(req *IntentRequest) error {
	if req == nil {
		return zaperr.New(zaperr.KindValidation, "request body is required")
	}
	if req.UserAddress == "" {
		return zaperr.New(zaperr.KindValidation, "userAddress is required")
	}
	if req.ChainID <= 0 {
		return zaperr.New(zaperr.KindValidation, "chainId must be a positive integer")
	}
	if len(req.Params) == 0 {
		return zaperr.New(zaperr.KindValidation, "params object is required")
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(req.Params, &probe); err != nil {
		return zaperr.New(zaperr.KindValidation, "params must be an object")
	}
	return nil
}
