package calendar

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

const (
	unknownErrorMessage     = "Unknown error"
	unavailableTimeMessage  = "The selected time is not available."
	maxErrorPayloadDepth    = 4
	maxPlainTextMessageSize = 300
)

// errorPayload is what a rejected booking body boils down to, whatever its
// shape: a JSON object, a JSON string (possibly wrapping more JSON) or plain
// text.
type errorPayload struct {
	message   string
	suggested string
}

func (p errorPayload) empty() bool {
	return p.message == "" && p.suggested == ""
}

// merge fills blanks in p from other.
func (p errorPayload) merge(other errorPayload) errorPayload {
	if p.message == "" {
		p.message = other.message
	}
	if p.suggested == "" {
		p.suggested = other.suggested
	}
	return p
}

func normalizeFailure(status int, body []byte) *Failure {
	payload := parseErrorPayload(body, 0)

	failure := &Failure{Message: payload.message, Status: status}
	if payload.suggested != "" {
		if t, err := parseInstant(payload.suggested); err == nil {
			failure.Suggested = &t
		}
	}
	if failure.Message == "" {
		if failure.Suggested != nil {
			failure.Message = unavailableTimeMessage
		} else {
			failure.Message = unknownErrorMessage
		}
	}
	return failure
}

func parseErrorPayload(raw []byte, depth int) errorPayload {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || depth > maxErrorPayloadDepth {
		return errorPayload{}
	}

	switch raw[0] {
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return plainText(raw, depth)
		}
		return fromObject(obj, depth)
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return plainText(raw, depth)
		}
		return fromString(s, depth)
	default:
		return plainText(raw, depth)
	}
}

func fromObject(obj map[string]json.RawMessage, depth int) errorPayload {
	var out errorPayload
	if v, ok := obj["suggested"]; ok {
		var s string
		if json.Unmarshal(v, &s) == nil {
			out.suggested = strings.TrimSpace(s)
		}
	}
	for _, key := range []string{"error", "message", "detail"} {
		v, ok := obj[key]
		if !ok {
			continue
		}
		out = out.merge(parseErrorPayload(v, depth+1))
	}
	return out
}

func fromString(s string, depth int) errorPayload {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "\"") {
		if nested := parseErrorPayload([]byte(s), depth+1); !nested.empty() {
			return nested
		}
	}
	return errorPayload{message: s}
}

// plainText keeps a top-level non-JSON body as the message. Nested scalars
// such as numbers or null carry no message.
func plainText(raw []byte, depth int) errorPayload {
	if depth > 0 {
		return errorPayload{}
	}
	return errorPayload{message: truncate(string(raw), maxPlainTextMessageSize)}
}

var instantLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

var errEmptyInstant = errors.New("calendar: empty timestamp")

// parseInstant reads ISO-8601 instants, including the minute-precision form
// "2025-03-04T15:00Z". Values without an offset are taken as UTC.
func parseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errEmptyInstant
	}
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return dateparse.ParseIn(s, time.UTC)
}
