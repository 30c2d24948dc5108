package imagen

import (
	"errors"
	"fmt"
	"strings"
)

// AspectRatio is one of the output shapes the upstream accepts.
type AspectRatio string

const (
	AspectSquare        AspectRatio = "1:1"
	AspectPortrait      AspectRatio = "3:4"
	AspectLandscape     AspectRatio = "4:3"
	AspectTallPortrait  AspectRatio = "9:16"
	AspectWideLandscape AspectRatio = "16:9"
)

const (
	DefaultAspectRatio    = AspectSquare
	DefaultSampleCount    = 1
	MaxSampleCount        = 4
	DefaultOutputMIMEType = "image/png"
)

// AspectRatios lists the accepted aspect ratios in schema order.
var AspectRatios = []AspectRatio{
	AspectSquare, AspectPortrait, AspectLandscape, AspectTallPortrait, AspectWideLandscape,
}

// OutputMIMETypes lists the encodings the upstream can return.
var OutputMIMETypes = []string{"image/png", "image/jpeg"}

var (
	ErrEmptyPrompt         = errors.New("prompt cannot be empty")
	ErrInvalidAspectRatio  = errors.New("unsupported aspect ratio")
	ErrInvalidSampleCount  = errors.New("sample count out of range")
	ErrInvalidOutputFormat = errors.New("unsupported output mime type")
)

// GenerationRequest is built once per tool call and passed by value.
type GenerationRequest struct {
	Prompt         string
	AspectRatio    AspectRatio
	SampleCount    int
	OutputMIMEType string
}

// NewGenerationRequest fills defaults for zero-valued options and validates
// the result.
func NewGenerationRequest(prompt string, aspect AspectRatio, samples int, mimeType string) (GenerationRequest, error) {
	req := GenerationRequest{
		Prompt:         strings.TrimSpace(prompt),
		AspectRatio:    aspect,
		SampleCount:    samples,
		OutputMIMEType: strings.ToLower(mimeType),
	}
	if req.AspectRatio == "" {
		req.AspectRatio = DefaultAspectRatio
	}
	if req.SampleCount == 0 {
		req.SampleCount = DefaultSampleCount
	}
	if req.OutputMIMEType == "" {
		req.OutputMIMEType = DefaultOutputMIMEType
	}
	if err := req.Validate(); err != nil {
		return GenerationRequest{}, err
	}
	return req, nil
}

// Validate checks every field against its allowed set.
func (r GenerationRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return ErrEmptyPrompt
	}
	if !validAspectRatio(r.AspectRatio) {
		return fmt.Errorf("%w: %q", ErrInvalidAspectRatio, r.AspectRatio)
	}
	if r.SampleCount < 1 || r.SampleCount > MaxSampleCount {
		return fmt.Errorf("%w: %d (allowed 1-%d)", ErrInvalidSampleCount, r.SampleCount, MaxSampleCount)
	}
	if !validOutputMIMEType(r.OutputMIMEType) {
		return fmt.Errorf("%w: %q", ErrInvalidOutputFormat, r.OutputMIMEType)
	}
	return nil
}

func validAspectRatio(a AspectRatio) bool {
	for _, v := range AspectRatios {
		if v == a {
			return true
		}
	}
	return false
}

func validOutputMIMEType(m string) bool {
	for _, v := range OutputMIMETypes {
		if v == m {
			return true
		}
	}
	return false
}

// Credentials authorize calls to the upstream. The value is immutable after
// startup and safe to share between goroutines.
type Credentials struct {
	APIKey string
}

// String keeps the key out of logs and %v output.
func (c Credentials) String() string {
	if c.APIKey == "" {
		return "Credentials{<empty>}"
	}
	return "Credentials{****}"
}

// GoString covers %#v.
func (c Credentials) GoString() string {
	return c.String()
}

// Image is one decoded image returned by the upstream.
type Image struct {
	Data     []byte
	MIMEType string
}
