package imagen

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSDKGenerator(t *testing.T, baseURL string) *SDKGenerator {
	t.Helper()
	g, err := NewSDKGenerator(Config{BaseURL: baseURL, ModelName: "imagen-3.0-generate-002", Timeout: 5 * time.Second})
	require.NoError(t, err)
	return g
}

func TestNewSDKGenerator(t *testing.T) {
	_, err := NewSDKGenerator(Config{BaseURL: "http://x"})
	assert.EqualError(t, err, "imagen model name is required")
}

func TestSDKGenerator_RoundTrip(t *testing.T) {
	source := testPNG(t, 200)
	upstream := newFakeUpstream(t, func(w http.ResponseWriter, r *http.Request, body predictRequest) {
		assert.Equal(t, "/v1beta/models/imagen-3.0-generate-002:predict", r.URL.Path)
		assert.Equal(t, testAPIKey, r.Header.Get("x-goog-api-key"))
		if assert.Len(t, body.Instances, 1) {
			assert.Equal(t, "a running dog", body.Instances[0].Prompt)
		}
		assert.Equal(t, 1, body.Parameters.SampleCount)
		assert.Equal(t, "3:4", body.Parameters.AspectRatio)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, predictionsBody(source))
	})

	req, err := NewGenerationRequest("a running dog", AspectPortrait, 1, "")
	require.NoError(t, err)

	images, err := newTestSDKGenerator(t, upstream.URL).Generate(context.Background(), req, testCreds)
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, source, images[0].Data)
	assert.Equal(t, "image/png", images[0].MIMEType)
}

func TestSDKGenerator_ErrorMapping(t *testing.T) {
	testCases := []struct {
		name   string
		status int
		body   string
		kind   Kind
	}{
		{
			name:   "forbidden",
			status: http.StatusForbidden,
			body:   `{"error":{"code":403,"message":"The caller does not have permission","status":"PERMISSION_DENIED"}}`,
			kind:   KindRequestRejected,
		},
		{
			name:   "quota",
			status: http.StatusTooManyRequests,
			body:   `{"error":{"code":429,"message":"Quota exceeded","status":"RESOURCE_EXHAUSTED"}}`,
			kind:   KindQuotaExceeded,
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   `{"error":{"code":500,"message":"Internal error encountered.","status":"INTERNAL"}}`,
			kind:   KindTransientUpstream,
		},
		{
			name:   "no predictions",
			status: http.StatusOK,
			body:   `{}`,
			kind:   KindUpstreamProtocol,
		},
		{
			name:   "filtered",
			status: http.StatusOK,
			body:   `{"predictions":[{"raiFilteredReason":"Sensitive words detected"}]}`,
			kind:   KindContentBlocked,
		},
		{
			name:   "predictions not a list",
			status: http.StatusOK,
			body:   `{"predictions":"x"}`,
			kind:   KindUpstreamProtocol,
		},
		{
			name:   "not json",
			status: http.StatusOK,
			body:   `<html>gateway</html>`,
			kind:   KindUpstreamProtocol,
		},
		{
			name:   "invalid base64",
			status: http.StatusOK,
			body:   `{"predictions":[{"mimeType":"image/png","bytesBase64Encoded":"!!!"}]}`,
			kind:   KindUpstreamProtocol,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			upstream := newFakeUpstream(t, func(w http.ResponseWriter, r *http.Request, _ predictRequest) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				fmt.Fprint(w, tc.body)
			})

			_, err := newTestSDKGenerator(t, upstream.URL).Generate(context.Background(), mustRequest(t, "a running dog"), testCreds)
			e := requireKind(t, err, tc.kind)
			assert.NotContains(t, e.Error(), testAPIKey)
			assert.Equal(t, int32(1), upstream.calls.Load())
		})
	}
}

func TestSDKGenerator_UnreachableIsTransient(t *testing.T) {
	upstream := newFakeUpstream(t, func(w http.ResponseWriter, r *http.Request, _ predictRequest) {})
	baseURL := upstream.URL
	upstream.Close()

	_, err := newTestSDKGenerator(t, baseURL).Generate(context.Background(), mustRequest(t, "a running dog"), testCreds)
	e := requireKind(t, err, KindTransientUpstream)
	assert.NotContains(t, e.Error(), testAPIKey)
}

func TestSDKGenerator_ValidationMakesNoCall(t *testing.T) {
	upstream := newFakeUpstream(t, func(w http.ResponseWriter, r *http.Request, _ predictRequest) {
		t.Error("upstream must not be called")
	})

	_, err := newTestSDKGenerator(t, upstream.URL).Generate(context.Background(), GenerationRequest{Prompt: ""}, testCreds)
	requireKind(t, err, KindValidation)
	assert.Equal(t, int32(0), upstream.calls.Load())
}
