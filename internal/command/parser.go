package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind discriminates the four operations of the line protocol.
type Kind int

const (
	KindNone Kind = iota
	KindHit
	KindTotal
	KindGroup
	KindUsers
)

type Command struct {
	Kind  Kind
	TS    int64
	Group string
	User  string
}

// Validation failures are returned to the caller instead of being swallowed
// here; each adapter decides whether to skip, log, or abort.
var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrMissingField   = errors.New("missing field")
	ErrBadTimestamp   = errors.New("bad timestamp")
	ErrBadPayload     = errors.New("bad payload")
)

// Parse reads one whitespace-tokenized command line. Verbs are
// case-insensitive:
//
//	hit <ts> <group> [user]
//	total <ts>
//	group <ts> <group>
//	users <ts> <group>
//
// A blank line parses to a Command with Kind == KindNone and no error.
func Parse(line string) (Command, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return Command{}, nil
	}
	verb := strings.ToLower(parts[0])
	switch verb {
	case "hit":
		if len(parts) < 3 {
			return Command{}, fmt.Errorf("%w: hit needs <ts> <group>", ErrMissingField)
		}
		ts, err := parseTS(parts[1])
		if err != nil {
			return Command{}, err
		}
		cmd := Command{Kind: KindHit, TS: ts, Group: parts[2]}
		if len(parts) >= 4 {
			cmd.User = parts[3]
		}
		return cmd, nil
	case "total":
		if len(parts) < 2 {
			return Command{}, fmt.Errorf("%w: total needs <ts>", ErrMissingField)
		}
		ts, err := parseTS(parts[1])
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: KindTotal, TS: ts}, nil
	case "group":
		if len(parts) < 3 {
			return Command{}, fmt.Errorf("%w: group needs <ts> <group>", ErrMissingField)
		}
		ts, err := parseTS(parts[1])
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: KindGroup, TS: ts, Group: parts[2]}, nil
	case "users":
		if len(parts) < 3 {
			return Command{}, fmt.Errorf("%w: users needs <ts> <group>", ErrMissingField)
		}
		ts, err := parseTS(parts[1])
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: KindUsers, TS: ts, Group: parts[2]}, nil
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, verb)
	}
}

// ParseAny accepts either a text command line or a JSON hit object.
func ParseAny(line string) (Command, error) {
	trim := strings.TrimSpace(line)
	if trim == "" {
		return Command{}, nil
	}
	if looksLikeJSON(trim) {
		return ParseJSONHit([]byte(trim))
	}
	return Parse(trim)
}

func parseTS(token string) (int64, error) {
	ts, err := strconv.ParseInt(token, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadTimestamp, token)
	}
	return ts, nil
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}
