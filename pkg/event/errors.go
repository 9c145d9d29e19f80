package event

import "fmt"

type MalformedPayloadError struct {
	Source string
	Size   int
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("malformed payload from %s: %d bytes are not valid JSON", e.Source, e.Size)
}

func (e *MalformedPayloadError) ErrorType() string {
	return "Runtime.MalformedPayload"
}
