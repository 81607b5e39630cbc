package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message types carried in ExpenseMessage.Type.
const (
	MessageTypeSync   = "expense.sync"
	MessageTypeDelete = "expense.delete"
)

// ExpenseMessage is a lightweight notification about one expense. Sync
// messages carry only identifiers; the worker re-reads the expense from the
// store. Delete messages also carry the month so the exporter can find the
// right sheet without the deleted row.
type ExpenseMessage struct {
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	MonthKey  string    `json:"month,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewExpenseSyncMessage(owner, id string) *ExpenseMessage {
	return &ExpenseMessage{Type: MessageTypeSync, ID: id, Owner: owner, Timestamp: time.Now().UTC()}
}

func NewExpenseDeleteMessage(owner, id, monthKey string) *ExpenseMessage {
	return &ExpenseMessage{Type: MessageTypeDelete, ID: id, Owner: owner, MonthKey: monthKey, Timestamp: time.Now().UTC()}
}

// ToJSON converts the message to JSON bytes
func (m *ExpenseMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// Validate rejects messages a handler cannot act on.
func (m *ExpenseMessage) Validate() error {
	switch m.Type {
	case MessageTypeSync, MessageTypeDelete:
	default:
		return fmt.Errorf("unknown message type %q", m.Type)
	}
	if m.ID == "" || m.Owner == "" {
		return fmt.Errorf("message %q missing id or owner", m.Type)
	}
	return nil
}

// ExpenseMessageFromJSON decodes and validates a message body.
func ExpenseMessageFromJSON(data []byte) (*ExpenseMessage, error) {
	var msg ExpenseMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
