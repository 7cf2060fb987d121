package amqp

import (
	"encoding/json"
	"time"
)

// Settlement result statuses.
const (
	StatusSettled         = "settled"
	StatusNothingToSettle = "nothing_to_settle"
	StatusFailed          = "failed"
)

// SettlementRequestMessage asks the worker to run one settlement pass over
// the ledger. The worker reads the current unpaid state itself, so the
// message carries only provenance.
type SettlementRequestMessage struct {
	RequestedBy int64     `json:"requested_by"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewSettlementRequestMessage creates a request message for the given requester
func NewSettlementRequestMessage(requestedBy int64) *SettlementRequestMessage {
	return &SettlementRequestMessage{
		RequestedBy: requestedBy,
		Timestamp:   time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *SettlementRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SettlementRequestMessageFromJSON creates a message from JSON bytes
func SettlementRequestMessageFromJSON(data []byte) (*SettlementRequestMessage, error) {
	var msg SettlementRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// TransferPayload is one settling payment as carried on the wire.
type TransferPayload struct {
	From        int64  `json:"from"`
	To          int64  `json:"to"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

// SettlementResultMessage reports the outcome of one settlement run.
type SettlementResultMessage struct {
	RunID     string            `json:"run_id"`
	Status    string            `json:"status"`
	Error     string            `json:"error,omitempty"`
	Transfers []TransferPayload `json:"transfers,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewSettlementResultMessage creates a result message for the given run
func NewSettlementResultMessage(runID, status string) *SettlementResultMessage {
	return &SettlementResultMessage{
		RunID:     runID,
		Status:    status,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *SettlementResultMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SettlementResultMessageFromJSON creates a message from JSON bytes
func SettlementResultMessageFromJSON(data []byte) (*SettlementResultMessage, error) {
	var msg SettlementResultMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
