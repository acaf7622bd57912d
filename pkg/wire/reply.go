package wire

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Wire errors.
var (
	// ErrDecode indicates a datagram that could not be decrypted or decoded.
	ErrDecode = errors.New("undecodable datagram")

	// ErrProtocol indicates a reply that does not match the expected grammar.
	ErrProtocol = errors.New("protocol error")
)

// Lua type tags returned by typed evaluation.
const (
	TypeNumber  = "number"
	TypeString  = "string"
	TypeBoolean = "boolean"
)

// DecodeTyped decodes a "<lua type>:<value>" reply. Numbers become float64,
// strings are returned verbatim, booleans become bool and any other type
// (nil, table, function, ...) decodes to nil.
func DecodeTyped(s string) (any, error) {
	typ, value, ok := strings.Cut(s, ":")
	if !ok {
		return nil, fmt.Errorf("%w: untyped reply %q", ErrProtocol, s)
	}

	switch typ {
	case TypeNumber:
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad number %q", ErrProtocol, value)
		}
		return f, nil
	case TypeString:
		return value, nil
	case TypeBoolean:
		return value == "true", nil
	default:
		return nil, nil
	}
}

// Update is a value vector reported by the device for one client page.
// Values are positionally aligned with the features of the registration.
type Update struct {
	ClientID int
	Values   []any
}

// ParseUpdate parses a decrypted push datagram.
func ParseUpdate(frame string) (Update, error) {
	body := frame
	if i := IndexOfNth(frame, ':', 4); i >= 0 {
		body = frame[i+1:]
	}
	return parseClientValues(body)
}

// ParseRegisterReply parses the payload of a clientRegister reply (the part
// returned by ExtractPayload), which carries a tag before the client id.
func ParseRegisterReply(payload string) (Update, error) {
	_, body, ok := strings.Cut(payload, ":")
	if !ok {
		return Update{}, fmt.Errorf("%w: bad register reply %q", ErrProtocol, payload)
	}
	return parseClientValues(body)
}

func parseClientValues(body string) (Update, error) {
	idText, rest, ok := strings.Cut(strings.TrimSpace(body), ":")
	if !ok {
		return Update{}, fmt.Errorf("%w: missing client id in %q", ErrProtocol, body)
	}

	clientID, err := strconv.Atoi(strings.TrimSpace(idText))
	if err != nil {
		return Update{}, fmt.Errorf("%w: bad client id %q", ErrProtocol, idText)
	}

	rest = strings.TrimSpace(rest)
	if !strings.HasPrefix(rest, "{") {
		return Update{}, fmt.Errorf("%w: value list expected, got %q", ErrProtocol, rest)
	}
	rest = strings.TrimSuffix(rest[1:], "}")

	values, err := ParseList(rest)
	if err != nil {
		return Update{}, err
	}
	return Update{ClientID: clientID, Values: values}, nil
}
