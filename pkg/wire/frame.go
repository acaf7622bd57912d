package wire

import (
	"math/rand"
	"strings"
)

// RequestIDLength is the number of hex characters in a request id.
const RequestIDLength = 8

const hexDigits = "0123456789abcdef"

// Kind identifies the direction and purpose of a frame.
type Kind uint8

const (
	// KindRequest is a frame sent to the device.
	KindRequest Kind = 0
	// KindReply is the device's answer to a request.
	KindReply Kind = 1
	// KindPush is an unsolicited client report.
	KindPush Kind = 2
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "REQUEST"
	case KindReply:
		return "REPLY"
	case KindPush:
		return "PUSH"
	default:
		return "UNKNOWN"
	}
}

// NewRequestID returns a random correlation id of RequestIDLength hex characters.
func NewRequestID() string {
	var b [RequestIDLength]byte
	for i := range b {
		b[i] = hexDigits[rand.Intn(len(hexDigits))]
	}
	return string(b[:])
}

// EncodeRequest builds the plaintext request frame.
func EncodeRequest(localIP, requestID, payload string) string {
	return "req:" + localIP + ":" + requestID + ":" + payload
}

// IndexOfNth returns the index of the n-th occurrence (1-based) of c in s,
// or -1 if s contains fewer than n occurrences.
func IndexOfNth(s string, c byte, n int) int {
	if n <= 0 {
		return -1
	}
	count := 0
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			count++
			if count == n {
				return i
			}
		}
	}
	return -1
}

// ExtractPayload returns everything after the third colon of a reply frame.
// Frames with fewer than three colons are returned unchanged.
func ExtractPayload(frame string) string {
	i := IndexOfNth(frame, ':', 3)
	if i < 0 {
		return frame
	}
	return frame[i+1:]
}

// RequestIDOf returns the request id segment of a frame, or "" when the
// frame is too short to carry one.
func RequestIDOf(frame string) string {
	start := IndexOfNth(frame, ':', 2)
	end := IndexOfNth(frame, ':', 3)
	if start < 0 || end < 0 {
		return ""
	}
	return strings.TrimSpace(frame[start+1 : end])
}
