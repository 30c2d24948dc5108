package imagen

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"imagen-mcp/common"
	"imagen-mcp/internal/utils"

	"google.golang.org/genai"
)

// SDKGenerator produces images through the official genai SDK instead of
// raw HTTP. It sends the same predict request as Client.
type SDKGenerator struct {
	httpClient *http.Client
	baseURL    string
	model      string
	timeout    time.Duration
}

// NewSDKGenerator validates cfg. The genai client itself is created per call
// so that the credentials passed to Generate are the only ones used.
func NewSDKGenerator(cfg Config) (*SDKGenerator, error) {
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

	return &SDKGenerator{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.ModelName,
		timeout:    timeout,
	}, nil
}

// NewSDKGeneratorFromConfig builds the SDK generator from process configuration.
func NewSDKGeneratorFromConfig(cfg *common.Config) (*SDKGenerator, error) {
	return NewSDKGenerator(Config{
		BaseURL:   cfg.GenAIBaseURL,
		ModelName: cfg.GenAIModelName,
		Timeout:   time.Duration(cfg.GenAITimeoutSeconds) * time.Second,
	})
}

// Generate calls Models.GenerateImages once.
func (g *SDKGenerator) Generate(ctx context.Context, req GenerationRequest, creds Credentials) ([]Image, error) {
	if err := req.Validate(); err != nil {
		return nil, ValidationError(err)
	}
	if creds.APIKey == "" {
		return nil, newError(KindInternal, nil, "no API key configured")
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	clientConfig := &genai.ClientConfig{
		APIKey:     creds.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: g.httpClient,
	}
	if g.baseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: g.baseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, newError(KindInternal, err, "failed to create genai client: %v", err)
	}

	common.WithFields(map[string]interface{}{
		"model":        g.model,
		"prompt":       utils.TruncateForLog(req.Prompt, 80),
		"aspect_ratio": req.AspectRatio,
		"samples":      req.SampleCount,
	}).Debug("Starting image generation via genai SDK")

	resp, err := g.generateImages(ctx, client, req)
	if err != nil {
		e := g.classify(ctx, err)
		common.WithError(err).WithField("kind", e.Kind).Warn("genai GenerateImages failed")
		return nil, e
	}

	return imagesFromSDK(resp)
}

// generateImages calls the SDK and turns a panic in its response conversion
// into an error. The SDK asserts on the shape of the decoded JSON, so a
// well-formed body of the wrong shape panics instead of failing.
func (g *SDKGenerator) generateImages(ctx context.Context, client *genai.Client, req GenerationRequest) (resp *genai.GenerateImagesResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = newError(KindUpstreamProtocol, fmt.Errorf("genai: %v", r), "upstream returned a malformed response")
		}
	}()

	return client.Models.GenerateImages(ctx, g.model, req.Prompt, &genai.GenerateImagesConfig{
		NumberOfImages:   int32(req.SampleCount),
		AspectRatio:      string(req.AspectRatio),
		OutputMIMEType:   req.OutputMIMEType,
		IncludeRAIReason: true,
	})
}

// classify maps an SDK failure onto a Kind. API errors carry the HTTP
// status; context and network errors mean no usable answer arrived; anything
// else failed while decoding a response that did arrive.
func (g *SDKGenerator) classify(ctx context.Context, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		e := statusError(apiErr.Code, apiErr.Message, apiErr.Status, detailReason(apiErr.Details))
		e.Err = err
		return e
	}

	var netErr net.Error
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return newError(KindTransientUpstream, err, "upstream call timed out after %s", g.timeout)
	case errors.Is(ctx.Err(), context.Canceled):
		return newError(KindTransientUpstream, err, "request canceled before the upstream answered")
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return newError(KindTransientUpstream, err, "upstream call timed out after %s", g.timeout)
		}
		return newError(KindTransientUpstream, err, "upstream unreachable: %v", err)
	default:
		return newError(KindUpstreamProtocol, err, "upstream returned a malformed response")
	}
}

func detailReason(details []map[string]any) string {
	for _, d := range details {
		if reason, ok := d["reason"].(string); ok && reason != "" {
			return reason
		}
	}
	return ""
}

func imagesFromSDK(resp *genai.GenerateImagesResponse) ([]Image, error) {
	if resp == nil || len(resp.GeneratedImages) == 0 {
		return nil, newError(KindUpstreamProtocol, nil, "upstream response contains no predictions")
	}

	var (
		images   []Image
		filtered []string
	)
	for _, gi := range resp.GeneratedImages {
		if gi == nil {
			continue
		}
		if gi.Image == nil || len(gi.Image.ImageBytes) == 0 {
			if gi.RAIFilteredReason != "" {
				filtered = append(filtered, gi.RAIFilteredReason)
			}
			continue
		}

		mimeType := strings.ToLower(gi.Image.MIMEType)
		if mimeType == "" {
			mimeType = http.DetectContentType(gi.Image.ImageBytes)
		}
		if !strings.HasPrefix(mimeType, "image/") {
			return nil, newError(KindUpstreamProtocol, nil, "generated image is not an image (%s)", mimeType)
		}
		images = append(images, Image{Data: gi.Image.ImageBytes, MIMEType: mimeType})
	}

	if len(images) > 0 {
		return images, nil
	}
	if len(filtered) > 0 {
		return nil, newError(KindContentBlocked, nil, "upstream filtered every image: %s", strings.Join(filtered, "; "))
	}
	return nil, newError(KindUpstreamProtocol, nil, "upstream response is missing image data")
}
