package models

import "github.com/punchamoorthee/inapppay/internal/domain"

// ConfirmRequest is sent by the front end once the buyer confirms.
type ConfirmRequest struct {
	BuyerUUID string       `json:"buyer_uuid"`
	Notes     domain.Notes `json:"notes"`
	// Simulate turns the purchase into a simulated notice.
	Simulate *domain.Simulation `json:"simulate,omitempty"`
}

// SimulateRequest asks for a simulated notice without a real transaction.
type SimulateRequest struct {
	TransactionUUID string            `json:"transaction_uuid,omitempty"`
	IssuerKey       string            `json:"issuer_key"`
	PayRequest      domain.PayRequest `json:"pay_request"`
	Simulation      domain.Simulation `json:"simulation"`
}

// TaskResponse reports what was scheduled.
type TaskResponse struct {
	TransactionUUID string `json:"transaction_uuid,omitempty"`
	TaskID          string `json:"task_id,omitempty"`
	Status          string `json:"status"`
}

// NoticeList is the delivery history of one transaction.
type NoticeList struct {
	TransactionUUID string          `json:"transaction_uuid"`
	Notices         []domain.Notice `json:"notices"`
}
