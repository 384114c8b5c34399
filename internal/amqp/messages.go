package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// PeriodChangedMessage announces that a stored period was written. It carries
// only identifiers; consumers read the data back from storage.
type PeriodChangedMessage struct {
	User      string    `json:"user"`
	Profile   string    `json:"profile"`
	Year      int       `json:"year"`
	Month     int       `json:"month"`
	Timestamp time.Time `json:"timestamp"`
}

func NewPeriodChangedMessage(user, profile string, year, month int) *PeriodChangedMessage {
	return &PeriodChangedMessage{
		User:      user,
		Profile:   profile,
		Year:      year,
		Month:     month,
		Timestamp: time.Now(),
	}
}

// Validate rejects messages a consumer cannot act on.
func (m *PeriodChangedMessage) Validate() error {
	if m.User == "" || m.Profile == "" {
		return fmt.Errorf("message missing user or profile")
	}
	if m.Month < 1 || m.Month > 12 {
		return fmt.Errorf("invalid month %d", m.Month)
	}
	return nil
}

func (m *PeriodChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func PeriodChangedMessageFromJSON(data []byte) (*PeriodChangedMessage, error) {
	var msg PeriodChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
