package imagen

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGenerationRequest(t *testing.T) {
	req, err := NewGenerationRequest("  a running dog  ", "", 0, "")
	require.NoError(t, err)
	assert.Equal(t, GenerationRequest{
		Prompt:         "a running dog",
		AspectRatio:    AspectSquare,
		SampleCount:    1,
		OutputMIMEType: "image/png",
	}, req)

	testCases := []struct {
		name    string
		prompt  string
		aspect  AspectRatio
		samples int
		mime    string
		want    error
	}{
		{name: "empty prompt", prompt: "", want: ErrEmptyPrompt},
		{name: "blank prompt", prompt: " \t\n", want: ErrEmptyPrompt},
		{name: "bad aspect", prompt: "x", aspect: "2:1", want: ErrInvalidAspectRatio},
		{name: "too many samples", prompt: "x", samples: 5, want: ErrInvalidSampleCount},
		{name: "negative samples", prompt: "x", samples: -1, want: ErrInvalidSampleCount},
		{name: "bad mime", prompt: "x", mime: "image/gif", want: ErrInvalidOutputFormat},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewGenerationRequest(tc.prompt, tc.aspect, tc.samples, tc.mime)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCredentialsNeverPrintKey(t *testing.T) {
	creds := Credentials{APIKey: "super-secret-key"}
	for _, s := range []string{
		creds.String(),
		fmt.Sprintf("%v", creds),
		fmt.Sprintf("%+v", creds),
		fmt.Sprintf("%#v", creds),
		fmt.Sprintf("%s", creds),
	} {
		assert.NotContains(t, s, "super-secret-key")
	}
	assert.Equal(t, "Credentials{<empty>}", Credentials{}.String())
}

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &Error{Kind: KindQuotaExceeded, Message: "slow down"})
	assert.Equal(t, KindQuotaExceeded, KindOf(err))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))

	assert.True(t, KindTransientUpstream.Retryable())
	assert.True(t, KindQuotaExceeded.Retryable())
	assert.False(t, KindRequestRejected.Retryable())
	assert.False(t, KindValidation.Retryable())

	v := ValidationError(ErrEmptyPrompt)
	assert.Equal(t, "ValidationError: prompt cannot be empty", v.Error())
	assert.ErrorIs(t, v, ErrEmptyPrompt)
}

func TestStatusError(t *testing.T) {
	e := statusError(429, "Quota exceeded", "", "")
	assert.Equal(t, KindQuotaExceeded, e.Kind)
	assert.Equal(t, "upstream quota exceeded (429): Quota exceeded", e.Message)

	e = statusError(400, "Resource has been exhausted", "RESOURCE_EXHAUSTED", "")
	assert.Equal(t, KindQuotaExceeded, e.Kind)

	e = statusError(400, "bad", "INVALID_ARGUMENT", "API_KEY_INVALID")
	assert.Equal(t, KindRequestRejected, e.Kind)
	assert.Equal(t, "upstream rejected the request (400 INVALID_ARGUMENT API_KEY_INVALID): bad", e.Message)

	e = statusError(502, "", "", "")
	assert.Equal(t, KindTransientUpstream, e.Kind)
	assert.Equal(t, "upstream unavailable (502)", e.Message)
}
