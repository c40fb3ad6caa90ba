package join

import "fmt"

// Error is a protocol error answered to a join or switch request.
type Error struct {
	Code       int
	CustomCode int
}

// Reason returns the human-readable cause, or "code:custom_code" when the
// pair is not classified.
func (e *Error) Reason() string {
	if r, ok := Reason(e.Code, e.CustomCode); ok {
		return r
	}
	return fmt.Sprintf("%d:%d", e.Code, e.CustomCode)
}

func (e *Error) Error() string {
	return "join channel: " + e.Reason()
}

// Reason classifies a (code, custom_code) error pair.
func Reason(code, customCode int) (string, bool) {
	switch code {
	case 1006:
		return "QoS limit reached", true
	case 503:
		return "Invalid channel", true
	case 8:
		switch customCode {
		case 0:
			return "Invalid token or user id", true
		case 1:
			return "Profile does not exist", true
		case 2:
			return "Game version mismatch", true
		case 3:
			return "Banned", true
		case 5:
			return "Rank restricted", true
		}
	}
	return "", false
}
