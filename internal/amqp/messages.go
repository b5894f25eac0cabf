package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tally/internal/core"
	"tally/internal/ledger"
)

// Routing keys for events published on the exchange.
const (
	EventBalanceChanged = "ledger.balance_changed"
	EventDriftDetected  = "ledger.drift_detected"
)

// Command is an operation requested through the command queue.
type Command string

const (
	CommandAudit  Command = "audit"
	CommandRepair Command = "repair"
)

func (c Command) IsValid() bool {
	return c == CommandAudit || c == CommandRepair
}

// BalanceChangedMessage is published after a transaction operation has been
// committed. Entries are the balance log entries that operation wrote.
type BalanceChangedMessage struct {
	MessageID     string                 `json:"messageId"`
	Type          string                 `json:"type"`
	Operation     string                 `json:"operation"`
	TransactionID string                 `json:"transactionId"`
	Entries       []core.BalanceLogEntry `json:"entries"`
	Timestamp     time.Time              `json:"timestamp"`
}

func NewBalanceChangedMessage(operation string, result ledger.Result) *BalanceChangedMessage {
	entries := result.Entries
	if entries == nil {
		entries = []core.BalanceLogEntry{}
	}
	return &BalanceChangedMessage{
		MessageID:     uuid.NewString(),
		Type:          EventBalanceChanged,
		Operation:     operation,
		TransactionID: result.Transaction.ID,
		Entries:       entries,
		Timestamp:     time.Now(),
	}
}

func (m *BalanceChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// DriftDetectedMessage carries an inconsistent audit report.
type DriftDetectedMessage struct {
	MessageID string        `json:"messageId"`
	Type      string        `json:"type"`
	Report    ledger.Report `json:"report"`
	Timestamp time.Time     `json:"timestamp"`
}

func NewDriftDetectedMessage(report ledger.Report) *DriftDetectedMessage {
	return &DriftDetectedMessage{
		MessageID: uuid.NewString(),
		Type:      EventDriftDetected,
		Report:    report,
		Timestamp: time.Now(),
	}
}

func (m *DriftDetectedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// CommandMessage asks the worker to run an audit or a repair.
type CommandMessage struct {
	MessageID   string    `json:"messageId"`
	Command     Command   `json:"command"`
	RequestedBy string    `json:"requestedBy,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewCommandMessage(cmd Command, requestedBy string) *CommandMessage {
	return &CommandMessage{
		MessageID:   uuid.NewString(),
		Command:     cmd,
		RequestedBy: requestedBy,
		Timestamp:   time.Now(),
	}
}

func (m *CommandMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// CommandMessageFromJSON decodes a command and rejects unknown commands.
func CommandMessageFromJSON(data []byte) (*CommandMessage, error) {
	var msg CommandMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if !msg.Command.IsValid() {
		return nil, fmt.Errorf("unknown command %q", msg.Command)
	}
	return &msg, nil
}
