package runtimeapi

import "fmt"

// FetchFailedError is returned when the next invocation could not be fetched.
// Either Err is set (transport failure) or StatusCode holds the non-2xx status.
type FetchFailedError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetching %s failed: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetching %s failed with status code %d", e.URL, e.StatusCode)
}

func (e *FetchFailedError) Unwrap() error {
	return e.Err
}

func (e *FetchFailedError) ErrorType() string {
	return "Runtime.FetchFailed"
}

type PostFailedError struct {
	URL string
	Err error
}

func (e *PostFailedError) Error() string {
	return fmt.Sprintf("posting to %s failed: %v", e.URL, e.Err)
}

func (e *PostFailedError) Unwrap() error {
	return e.Err
}

func (e *PostFailedError) ErrorType() string {
	return "Runtime.PostFailed"
}

type PostRejectedError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *PostRejectedError) Error() string {
	return fmt.Sprintf("post to %s rejected with status code %d: %s", e.URL, e.StatusCode, e.Body)
}

func (e *PostRejectedError) ErrorType() string {
	return "Runtime.PostRejected"
}

type MissingRequestIDError struct {
	URL string
}

func (e *MissingRequestIDError) Error() string {
	return fmt.Sprintf("response from %s has no %s header", e.URL, RequestIDHeader)
}

func (e *MissingRequestIDError) ErrorType() string {
	return "Runtime.MissingRequestId"
}
