package imagen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"imagen-mcp/common"
	"imagen-mcp/internal/utils"
)

const (
	// DefaultTimeout bounds one upstream call including the body read.
	DefaultTimeout = 60 * time.Second

	apiVersion = "v1beta"

	// Four 2K images in base64 stay well below this.
	maxResponseBytes = 64 << 20
)

// Client calls the Imagen predict endpoint over plain HTTP:
//
//	POST {BaseURL}/v1beta/models/{model}:predict
//	x-goog-api-key: <key>
type Client struct {
	httpClient *http.Client
	baseURL    string
	model      string
	timeout    time.Duration
}

// Config configures a Client.
type Config struct {
	BaseURL   string
	ModelName string
	Timeout   time.Duration
	// HTTPClient is optional; a client with Timeout is created when nil.
	HTTPClient *http.Client
}

// NewClient validates cfg and returns a Client safe for concurrent use.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("imagen base URL is required")
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("imagen model name is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      strings.TrimPrefix(cfg.ModelName, "models/"),
		timeout:    timeout,
	}, nil
}

// NewClientFromConfig builds the REST client from process configuration.
func NewClientFromConfig(cfg *common.Config) (*Client, error) {
	return NewClient(Config{
		BaseURL:   cfg.GenAIBaseURL,
		ModelName: cfg.GenAIModelName,
		Timeout:   time.Duration(cfg.GenAITimeoutSeconds) * time.Second,
	})
}

type predictRequest struct {
	Instances  []predictInstance `json:"instances"`
	Parameters predictParameters `json:"parameters"`
}

type predictInstance struct {
	Prompt string `json:"prompt"`
}

type predictParameters struct {
	SampleCount      int           `json:"sampleCount"`
	AspectRatio      string        `json:"aspectRatio,omitempty"`
	IncludeRAIReason bool          `json:"includeRaiReason"`
	OutputOptions    outputOptions `json:"outputOptions"`
}

type outputOptions struct {
	MIMEType string `json:"mimeType"`
}

// predictResponse is the success body. Predictions is required; inside each
// prediction either BytesBase64Encoded or RAIFilteredReason is set.
type predictResponse struct {
	Predictions []prediction `json:"predictions"`
}

type prediction struct {
	MIMEType           string `json:"mimeType,omitempty"`
	BytesBase64Encoded string `json:"bytesBase64Encoded,omitempty"`
	RAIFilteredReason  string `json:"raiFilteredReason,omitempty"`
}

func (c *Client) endpoint() string {
	return fmt.Sprintf("%s/%s/models/%s:predict", c.baseURL, apiVersion, c.model)
}

// Generate performs exactly one predict call. Every failure is an *Error.
func (c *Client) Generate(ctx context.Context, req GenerationRequest, creds Credentials) ([]Image, error) {
	if err := req.Validate(); err != nil {
		return nil, ValidationError(err)
	}
	if creds.APIKey == "" {
		return nil, newError(KindInternal, nil, "no API key configured")
	}

	common.WithFields(map[string]interface{}{
		"model":        c.model,
		"prompt":       utils.TruncateForLog(req.Prompt, 80),
		"aspect_ratio": req.AspectRatio,
		"samples":      req.SampleCount,
	}).Debug("Starting image generation")

	payload, err := json.Marshal(predictRequest{
		Instances: []predictInstance{{Prompt: req.Prompt}},
		Parameters: predictParameters{
			SampleCount:      req.SampleCount,
			AspectRatio:      string(req.AspectRatio),
			IncludeRAIReason: true,
			OutputOptions:    outputOptions{MIMEType: req.OutputMIMEType},
		},
	})
	if err != nil {
		return nil, newError(KindInternal, err, "failed to encode request: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, newError(KindInternal, err, "failed to create http request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", creds.APIKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, c.transportError(ctx, err)
	}

	if ctx.Err() != nil {
		return nil, c.transportError(ctx, ctx.Err())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e := parseStatusError(resp.StatusCode, body)
		common.WithFields(map[string]interface{}{
			"status_code": resp.StatusCode,
			"status":      e.Status,
			"reason":      e.Reason,
			"kind":        e.Kind,
			"body":        utils.TruncateForLog(string(body), 512),
		}).Warn("Imagen API returned non-success status")
		return nil, e
	}

	images, err := decodePredictions(body)
	if err != nil {
		common.WithError(err).WithField("body", utils.TruncateForLog(string(body), 256)).Warn("Imagen response could not be used")
		return nil, err
	}

	common.WithFields(map[string]interface{}{
		"model":    c.model,
		"images":   len(images),
		"duration": time.Since(start).String(),
	}).Info("Image generated successfully")

	return images, nil
}

// transportError classifies failures where no usable response arrived.
func (c *Client) transportError(ctx context.Context, err error) *Error {
	var (
		e      *Error
		netErr net.Error
	)
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		e = newError(KindTransientUpstream, err, "upstream call timed out after %s", c.timeout)
	case errors.Is(ctx.Err(), context.Canceled):
		e = newError(KindTransientUpstream, err, "request canceled before the upstream answered")
	default:
		e = newError(KindTransientUpstream, err, "upstream unreachable: %v", err)
	}
	common.WithError(err).WithField("kind", e.Kind).Warn("Imagen API call failed")
	return e
}

func parseStatusError(statusCode int, body []byte) *Error {
	var env upstreamError
	if err := json.Unmarshal(body, &env); err != nil || env.Error == nil {
		return statusError(statusCode, utils.TruncateForLog(strings.TrimSpace(string(body)), 200), "", "")
	}

	reason := ""
	for _, d := range env.Error.Details {
		if d.Reason != "" {
			reason = d.Reason
			break
		}
	}
	return statusError(statusCode, env.Error.Message, env.Error.Status, reason)
}

// decodePredictions extracts the images from a 2xx body. Predictions without
// bytes are skipped when at least one image is present.
func decodePredictions(body []byte) ([]Image, error) {
	var resp predictResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, newError(KindUpstreamProtocol, err, "upstream returned a malformed response")
	}
	if len(resp.Predictions) == 0 {
		return nil, newError(KindUpstreamProtocol, nil, "upstream response contains no predictions")
	}

	var (
		images   []Image
		filtered []string
	)
	for i, p := range resp.Predictions {
		if p.BytesBase64Encoded == "" {
			if p.RAIFilteredReason != "" {
				filtered = append(filtered, p.RAIFilteredReason)
			}
			continue
		}

		data, err := base64.StdEncoding.DecodeString(p.BytesBase64Encoded)
		if err != nil {
			return nil, newError(KindUpstreamProtocol, err, "prediction %d has an invalid base64 payload", i)
		}
		if len(data) == 0 {
			return nil, newError(KindUpstreamProtocol, nil, "prediction %d has an empty payload", i)
		}

		mimeType := strings.ToLower(strings.TrimSpace(p.MIMEType))
		if mimeType == "" {
			mimeType = http.DetectContentType(data)
		}
		if !strings.HasPrefix(mimeType, "image/") {
			return nil, newError(KindUpstreamProtocol, nil, "prediction %d is not an image (%s)", i, mimeType)
		}

		images = append(images, Image{Data: data, MIMEType: mimeType})
	}

	if len(images) > 0 {
		return images, nil
	}
	if len(filtered) > 0 {
		return nil, newError(KindContentBlocked, nil, "upstream filtered every image: %s", strings.Join(filtered, "; "))
	}
	return nil, newError(KindUpstreamProtocol, nil, "upstream response is missing image data")
}
