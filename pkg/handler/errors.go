package handler

import "fmt"

type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("event is missing required field %s", e.Field)
}

func (e *MissingFieldError) ErrorType() string {
	return "Handler.MissingField"
}
