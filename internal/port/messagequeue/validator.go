package messagequeue

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects pass validation
// (future-proof for new message types).
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	var target any
	switch {
	case subject == SubjectChatRequested:
		target = &ChatRequestedPayload{}
	case subject == SubjectChatAssigned:
		target = &ChatAssignedPayload{}
	case subject == SubjectChatEnded:
		target = &ChatEndedPayload{}
	case strings.HasPrefix(subject, SubjectRoomEvent+"."):
		p := &RoomEventPayload{}
		if err := json.Unmarshal(data, p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.Room == "" || p.Event == "" {
			return fmt.Errorf("schema validation failed for %s: room and event are required", subject)
		}
		return nil
	default:
		return nil
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", subject, err)
	}
	return nil
}
