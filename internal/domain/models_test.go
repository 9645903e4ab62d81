package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurchaseRequestKeepsOriginalBytes(t *testing.T) {
	in := `{"id":"sku-1","pricePoint":10,"name":"Gem","postbackURL":"https://app.example/pb","icons":{"64":"https://app.example/64.png"},"vendorField":{"nested":true}}`

	var req PurchaseRequest
	require.NoError(t, json.Unmarshal([]byte(in), &req))
	assert.Equal(t, "sku-1", req.ID)
	assert.Equal(t, "10", req.PricePoint.String())
	assert.Equal(t, "https://app.example/pb", req.PostbackURL)
	assert.Equal(t, "https://app.example/64.png", req.Icons["64"])

	out, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
}

func TestPurchaseRequestWithoutRawMarshalsFields(t *testing.T) {
	out, err := json.Marshal(PurchaseRequest{Name: "Gem", ChargebackURL: "https://app.example/cb"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Gem","chargebackURL":"https://app.example/cb"}`, string(out))
}

func TestNotesDecode(t *testing.T) {
	var n Notes
	require.NoError(t, json.Unmarshal([]byte(`{"issuer_key":"k","pay_request":{"iss":"k","typ":"mozilla/payments/pay/v1","request":null}}`), &n))
	assert.Equal(t, "k", n.IssuerKey)
	assert.Equal(t, "k", n.PayRequest.Issuer)
	assert.Empty(t, n.PayRequest.Request.Name)
}

func TestOutcomeKinds(t *testing.T) {
	assert.Equal(t, "success", Success().Kind.String())
	assert.Equal(t, Outcome{Kind: OutcomeRetryable, Reason: "Timeout: x"}, Retryable("Timeout: x"))
	assert.Equal(t, "terminal", Terminal("done").Kind.String())
}
