package hub

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// decodePayload unmarshals an event's data into v and validates it.
func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing data", ErrInvalidMessage)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidMessage, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidMessage, err)
	}
	return nil
}

// decodeIdentity accepts either a bare string or an {userId, username}
// object. A bare string is a user id for register and a username for
// userLogin. Missing halves are filled from each other.
func decodeIdentity(event string, raw json.RawMessage) (Identity, error) {
	var id Identity

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return id, fmt.Errorf("%w: %s", ErrInvalidMessage, err)
		}
		if event == EventUserLogin {
			id.Username = s
		} else {
			id.UserId = s
		}
	} else if err := decodePayload(raw, &id); err != nil {
		return id, err
	}

	id.UserId = strings.TrimSpace(id.UserId)
	id.Username = strings.TrimSpace(id.Username)
	if id.UserId == "" && id.Username == "" {
		return id, fmt.Errorf("%w: userId or username required", ErrInvalidMessage)
	}
	if err := validate.Struct(&id); err != nil {
		return id, fmt.Errorf("%w: %s", ErrInvalidMessage, err)
	}

	if id.UserId == "" {
		id.UserId = id.Username
	}
	if id.Username == "" {
		id.Username = id.UserId
	}
	return id, nil
}
