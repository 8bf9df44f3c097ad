package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message kinds on the sync queue. Upserts carry only the transaction
// id; the worker re-reads the row so a stale message can never
// overwrite fresher data.
const (
	KindUpsert = "upsert"
	KindDelete = "delete"
)

// TransactionSyncMessage tells the export worker that a transaction
// changed or disappeared.
type TransactionSyncMessage struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTransactionSyncMessage creates an upsert message for a transaction
func NewTransactionSyncMessage(id int64) *TransactionSyncMessage {
	return &TransactionSyncMessage{ID: id, Kind: KindUpsert, Timestamp: time.Now()}
}

// NewTransactionDeleteMessage creates a delete message for a transaction
func NewTransactionDeleteMessage(id int64) *TransactionSyncMessage {
	return &TransactionSyncMessage{ID: id, Kind: KindDelete, Timestamp: time.Now()}
}

// ToJSON converts the message to JSON bytes
func (m *TransactionSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionSyncMessageFromJSON creates a message from JSON bytes
func TransactionSyncMessageFromJSON(data []byte) (*TransactionSyncMessage, error) {
	var msg TransactionSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Kind != KindUpsert && msg.Kind != KindDelete {
		return nil, fmt.Errorf("unknown message kind %q", msg.Kind)
	}
	return &msg, nil
}
