package event

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name      string
		data      string
		malformed bool
	}{
		{name: "object", data: `{"requestContext":{"http":{"sourceIp":"1.2.3.4"}}}`},
		{name: "null is valid json", data: `null`},
		{name: "array", data: `[1,2,3]`},
		{name: "empty body", data: ``, malformed: true},
		{name: "truncated", data: `{"requestContext":`, malformed: true},
		{name: "plain text", data: `hello`, malformed: true},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			e, err := Parse("test", []byte(testCase.data))
			if !testCase.malformed {
				require.NoError(t, err)
				assert.Equal(t, testCase.data, string(e.Raw()))
				return
			}

			var malformed *MalformedPayloadError
			require.True(t, errors.As(err, &malformed))
			assert.Equal(t, "test", malformed.Source)
			assert.Equal(t, len(testCase.data), malformed.Size)
			assert.Equal(t, "Runtime.MalformedPayload", malformed.ErrorType())
		})
	}
}

func TestEventString(t *testing.T) {
	e, err := Parse("test", []byte(`{"requestContext":{"http":{"sourceIp":"1.2.3.4","userAgent":"curl/8.0","port":443,"empty":""}}}`))
	require.NoError(t, err)

	v, ok := e.String("requestContext.http.sourceIp")
	assert.True(t, ok)
	assert.Equal(t, "1.2.3.4", v)

	v, ok = e.String("requestContext.http.empty")
	assert.True(t, ok)
	assert.Equal(t, "", v)

	_, ok = e.String("requestContext.http.port")
	assert.False(t, ok, "numbers are not strings")

	_, ok = e.String("requestContext.http.missing")
	assert.False(t, ok)

	_, ok = e.String("requestContext.http")
	assert.False(t, ok, "objects are not strings")
}

func TestEventStringOnNull(t *testing.T) {
	e, err := Parse("test", []byte(`null`))
	require.NoError(t, err)

	_, ok := e.String("requestContext.http.sourceIp")
	assert.False(t, ok)
}
