package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Event is the envelope carried both through the local hub and over the
// remote transport. OriginID identifies the publishing process instance and
// is stamped at publish time, never on receive.
type Event struct {
	Category  string          `json:"category" validate:"required"`
	Timestamp time.Time       `json:"timestamp" validate:"required"`
	OriginID  string          `json:"originId" validate:"required"`
	Payload   json.RawMessage `json:"payload" validate:"required"`
}

var validate = validator.New()

// DecodeEvent parses and structurally validates a raw transport message.
// Messages failing either step are rejected by the transport receive path.
func DecodeEvent(raw []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		return Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if err := validate.Struct(&evt); err != nil {
		return Event{}, fmt.Errorf("event failed validation: %w", err)
	}
	return evt, nil
}

func (e Event) Encode() ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return body, nil
}
