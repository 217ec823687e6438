package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidMessage = errors.New("invalid refresh request")

// RefreshRequest asks a worker to rebuild the snapshot from the spreadsheet.
// It carries no data; the worker always pulls the current sheets.
type RefreshRequest struct {
	ID          string    `json:"id"`
	RequestedAt time.Time `json:"requested_at"`
	Reason      string    `json:"reason,omitempty"`
}

// NewRefreshRequest creates a request with a fresh id.
func NewRefreshRequest(reason string) *RefreshRequest {
	return &RefreshRequest{
		ID:          uuid.NewString(),
		RequestedAt: time.Now().UTC(),
		Reason:      reason,
	}
}

// ToJSON converts the message to JSON bytes
func (m *RefreshRequest) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RefreshRequestFromJSON decodes and validates a message body.
func RefreshRequestFromJSON(data []byte) (*RefreshRequest, error) {
	var msg RefreshRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, ErrInvalidMessage
	}
	return &msg, nil
}
