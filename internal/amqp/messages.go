package amqp

import (
	"encoding/json"
	"time"
)

// Event types carried on the expense events queue.
const (
	EventExpenseCreated = "expense.created"
	EventExpenseDeleted = "expense.deleted"
)

// ExpenseEventMessage is a lightweight notification that an expense changed.
// It carries only identifiers, consumers fetch current state from the store.
type ExpenseEventMessage struct {
	Event     string    `json:"event"`
	ExpenseID int64     `json:"expense_id"`
	GroupID   int64     `json:"group_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewExpenseEventMessage(event string, expenseID, groupID int64) *ExpenseEventMessage {
	return &ExpenseEventMessage{
		Event:     event,
		ExpenseID: expenseID,
		GroupID:   groupID,
		Timestamp: time.Now(),
	}
}

func (m *ExpenseEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ExpenseEventMessageFromJSON(data []byte) (*ExpenseEventMessage, error) {
	var msg ExpenseEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
