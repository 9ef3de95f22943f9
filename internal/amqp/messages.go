package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"loancalc/internal/core"
)

// ComparisonExportMessage carries a finished comparison from the web
// process to the export worker. The comparison is self-contained, so the
// worker never needs to read session state.
type ComparisonExportMessage struct {
	SessionID  string          `json:"sessionId"`
	Comparison core.Comparison `json:"comparison"`
	Timestamp  time.Time       `json:"timestamp"`
}

// NewComparisonExportMessage stamps a comparison for publishing.
func NewComparisonExportMessage(sessionID string, cmp core.Comparison) *ComparisonExportMessage {
	return &ComparisonExportMessage{
		SessionID:  sessionID,
		Comparison: cmp,
		Timestamp:  time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ComparisonExportMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ComparisonExportMessageFromJSON decodes a message and rejects bodies
// without a session id.
func ComparisonExportMessageFromJSON(data []byte) (*ComparisonExportMessage, error) {
	var msg ComparisonExportMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.SessionID == "" {
		return nil, errors.New("comparison export message without session id")
	}
	return &msg, nil
}
