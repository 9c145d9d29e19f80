// Package event holds the invocation event delivered by the runtime API.
package event

import (
	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// Event is an opaque JSON value supplied by the control plane.
// The zero value is not valid; use Parse.
type Event struct {
	raw []byte
}

// Parse validates data as JSON and wraps it. source names where the bytes came
// from and only ends up in the error message.
func Parse(source string, data []byte) (Event, error) {
	if !json.Valid(data) {
		return Event{}, &MalformedPayloadError{Source: source, Size: len(data)}
	}
	return Event{raw: data}, nil
}

// Raw returns the event bytes as received.
func (e Event) Raw() []byte {
	return e.raw
}

// String looks up a dot separated path and reports whether it holds a JSON string.
func (e Event) String(path string) (string, bool) {
	r := gjson.GetBytes(e.raw, path)
	if !r.Exists() || r.Type != gjson.String {
		return "", false
	}
	return r.String(), true
}
