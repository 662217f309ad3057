package intents

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimazeighami/dust-zap-engine/internal/zaperr"
)

type stubHandler struct {
	resp *IntentResponse
	err  error
	got  *IntentRequest
}

func (s *stubHandler) Execute(_ context.Context, req *IntentRequest) (*IntentResponse, error) {
	s.got = req
	return s.resp, s.err
}

func validEnvelope() *IntentRequest {
	return &IntentRequest{
		UserAddress: testUser,
		ChainID:     1,
		Params:      json.RawMessage(`{"toTokenAddress":"0x0"}`),
	}
}

func TestRegistryDispatch(t *testing.T) {
	stub := &stubHandler{resp: &IntentResponse{IntentID: "dustZap_1_aaaaaa_deadbeefdeadbeef"}}
	r := NewRegistry()
	r.Register("dustZap", stub)

	req := validEnvelope()
	resp, err := r.Execute(context.Background(), "dustZap", req)
	require.NoError(t, err)
	assert.Equal(t, stub.resp, resp)
	assert.Same(t, req, stub.got)
}

func TestRegistryUnknownType(t *testing.T) {
	r := NewRegistry()
	_, err := r.Execute(context.Background(), "vaultZap", validEnvelope())
	require.Error(t, err)
	assert.Equal(t, zaperr.KindNotFound, zaperr.KindOf(err))
}

func TestRegistryEnvelopeValidation(t *testing.T) {
	r := NewRegistry()
	r.Register("dustZap", &stubHandler{})

	tests := []struct {
		name string
		req  *IntentRequest
	}{
		{"nil request", nil},
		{"missing user address", &IntentRequest{ChainID: 1, Params: json.RawMessage(`{}`)}},
		{"zero chain id", &IntentRequest{UserAddress: testUser, Params: json.RawMessage(`{}`)}},
		{"negative chain id", &IntentRequest{UserAddress: testUser, ChainID: -1, Params: json.RawMessage(`{}`)}},
		{"missing params", &IntentRequest{UserAddress: testUser, ChainID: 1}},
		{"params not an object", &IntentRequest{UserAddress: testUser, ChainID: 1, Params: json.RawMessage(`[1,2]`)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Execute(context.Background(), "dustZap", tt.req)
			require.Error(t, err)
			assert.Equal(t, zaperr.KindValidation, zaperr.KindOf(err))
		})
	}
}
