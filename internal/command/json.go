package command

import (
	"encoding/json"
	"fmt"
)

type jsonHit struct {
	TS    *int64 `json:"ts"`
	Group string `json:"group"`
	User  string `json:"user"`
}

// ParseJSONHit decodes {"ts":<seconds>,"group":...,"user":...} into a hit
// command. Record-only sources (UDP, Kafka, file replay) accept this shape
// alongside the text protocol.
func ParseJSONHit(data []byte) (Command, error) {
	var obj jsonHit
	if err := json.Unmarshal(data, &obj); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if obj.TS == nil {
		return Command{}, fmt.Errorf("%w: ts", ErrMissingField)
	}
	if obj.Group == "" {
		return Command{}, fmt.Errorf("%w: group", ErrMissingField)
	}
	return Command{Kind: KindHit, TS: *obj.TS, Group: obj.Group, User: obj.User}, nil
}
