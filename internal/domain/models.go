package domain

import (
	"encoding/json"
	"time"
)

// TransactionStatus is owned by the billing backend. This service only reads it.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusReceived  TransactionStatus = "received"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
)

type TransactionType string

const (
	TypePayment TransactionType = "payment"
	TypeRefund  TransactionType = "refund"
)

// Transaction is a read-only snapshot fetched from the billing backend at the
// start of every task invocation. It is never cached or mutated locally.
type Transaction struct {
	UUID   string            `json:"uuid"`
	Status TransactionStatus `json:"status"`
	Type   TransactionType   `json:"type"`
	Notes  Notes             `json:"notes"`
}

// Notes is the data the front end attached to the transaction when the buyer
// started the purchase.
type Notes struct {
	IssuerKey  string     `json:"issuer_key"`
	PayRequest PayRequest `json:"pay_request"`
}

// PayRequest is the decoded JWT the issuer app handed to the buyer's device.
type PayRequest struct {
	Issuer   string          `json:"iss,omitempty"`
	Audience string          `json:"aud,omitempty"`
	Type     string          `json:"typ,omitempty"`
	Request  PurchaseRequest `json:"request"`
}

// PurchaseRequest holds the fields of the request block this service needs.
// The original bytes are kept so notices echo back exactly what the issuer
// sent, including fields unknown to this type.
type PurchaseRequest struct {
	ID            string            `json:"id,omitempty"`
	PricePoint    json.Number       `json:"pricePoint,omitempty"`
	Name          string            `json:"name,omitempty"`
	Description   string            `json:"description,omitempty"`
	ProductData   string            `json:"productData,omitempty"`
	PostbackURL   string            `json:"postbackURL,omitempty"`
	ChargebackURL string            `json:"chargebackURL,omitempty"`
	DefaultLocale string            `json:"defaultLocale,omitempty"`
	Icons         map[string]string `json:"icons,omitempty"`

	raw json.RawMessage
}

func (r *PurchaseRequest) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	type plain PurchaseRequest
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*r = PurchaseRequest(p)
	r.raw = append(json.RawMessage(nil), b...)
	return nil
}

func (r PurchaseRequest) MarshalJSON() ([]byte, error) {
	if len(r.raw) > 0 {
		return r.raw, nil
	}
	type plain PurchaseRequest
	return json.Marshal(plain(r))
}

// NoticeType is the typ claim of a signed notice.
type NoticeType string

const (
	NoticePostback   NoticeType = "mozilla/payments/pay/postback/v1"
	NoticeChargeback NoticeType = "mozilla/payments/pay/chargeback/v1"
)

const (
	ReasonRefund   = "refund"
	ReasonReversal = "reversal"
)

// Simulated tags a Notice produced by a simulated purchase.
type Simulated string

const (
	SimulatedNone       Simulated = "none"
	SimulatedPostback   Simulated = "postback"
	SimulatedChargeback Simulated = "chargeback"
)

// Notice records the outcome of one notification attempt sequence. ID is the
// sequence id; each retry of the same sequence updates the same record.
type Notice struct {
	ID              string    `json:"id"`
	TransactionUUID string    `json:"transaction_uuid"`
	URL             string    `json:"url"`
	Success         bool      `json:"success"`
	LastError       string    `json:"last_error"`
	Simulated       Simulated `json:"simulated"`
	Attempts        int       `json:"attempts"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Simulation asks for a fake notice without touching the billing backend.
type Simulation struct {
	Result string `json:"result"`
	Reason string `json:"reason,omitempty"`
}
