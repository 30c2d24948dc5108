package tools

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"strings"

	"imagen-mcp/common"
	"imagen-mcp/internal/genai/imagen"
	"imagen-mcp/internal/store"
	"imagen-mcp/internal/utils"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	GenerateImageToolName = "generate_image"
	ListImagesToolName    = "list_generated_images"
)

// ImageTool turns MCP tool calls into generation requests. It holds no
// per-call state and is safe for concurrent use.
type ImageTool struct {
	generator imagen.Generator
	creds     imagen.Credentials
	store     store.Store // nil when persistence is disabled
}

// NewImageTool creates the tool. st may be nil, in which case images are
// only returned inline and the listing tool is not registered.
func NewImageTool(gen imagen.Generator, creds imagen.Credentials, st store.Store) *ImageTool {
	return &ImageTool{generator: gen, creds: creds, store: st}
}

// RegisterImagenTools registers generate_image, and list_generated_images
// when st is not nil.
func RegisterImagenTools(s *server.MCPServer, gen imagen.Generator, creds imagen.Credentials, st store.Store) error {
	if gen == nil {
		return fmt.Errorf("image generator is required")
	}
	if creds.APIKey == "" {
		return fmt.Errorf("API key is required")
	}

	tool := NewImageTool(gen, creds, st)
	s.AddTool(tool.Describe(), tool.Handle)
	if st != nil {
		s.AddTool(tool.DescribeList(), tool.HandleList)
	}

	common.WithFields(map[string]interface{}{
		"generator": fmt.Sprintf("%T", gen),
		"store":     st != nil,
	}).Info("Image tools registered")
	return nil
}

// Describe returns the generate_image definition.
func (t *ImageTool) Describe() mcp.Tool {
	aspectRatios := make([]string, 0, len(imagen.AspectRatios))
	for _, a := range imagen.AspectRatios {
		aspectRatios = append(aspectRatios, string(a))
	}

	description := "Generate images from an English text prompt with Google Imagen. " +
		"Returns the images inline as base64 image content."
	if t.store != nil {
		description += " Each image is also saved and its URL is returned, usable in markdown as ![description](URL)."
	}

	return mcp.NewTool(GenerateImageToolName,
		mcp.WithDescription(description),
		mcp.WithTitleAnnotation("Generate image"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
		mcp.WithString("prompt",
			mcp.Required(),
			mcp.MinLength(1),
			mcp.Description("The prompt text for image generation. The prompt MUST be in English."),
		),
		mcp.WithString("aspect_ratio",
			mcp.Enum(aspectRatios...),
			mcp.DefaultString(string(imagen.DefaultAspectRatio)),
			mcp.Description("Aspect ratio of the generated images"),
		),
		mcp.WithNumber("sample_count",
			mcp.Min(1),
			mcp.Max(imagen.MaxSampleCount),
			mcp.DefaultNumber(imagen.DefaultSampleCount),
			mcp.Description("Number of images to generate"),
		),
		mcp.WithString("output_mime_type",
			mcp.Enum(imagen.OutputMIMETypes...),
			mcp.DefaultString(imagen.DefaultOutputMIMEType),
			mcp.Description("Encoding of the generated images"),
		),
	)
}

// Handle adapts Invoke to server.ToolHandlerFunc. The Go error is always nil;
// failures travel inside the result.
func (t *ImageTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return t.Invoke(ctx, req), nil
}

type generateImageArgs struct {
	Prompt         *string  `json:"prompt"`
	AspectRatio    string   `json:"aspect_ratio"`
	SampleCount    *float64 `json:"sample_count"`
	OutputMIMEType string   `json:"output_mime_type"`
}

// Invoke runs one generate_image call and always returns a result.
func (t *ImageTool) Invoke(ctx context.Context, req mcp.CallToolRequest) (result *mcp.CallToolResult) {
	defer func() {
		if r := recover(); r != nil {
			common.WithField("tool", GenerateImageToolName).Errorf("panic while handling tool call: %v\n%s", r, debug.Stack())
			result = errorResult(&imagen.Error{Kind: imagen.KindInternal, Message: "unexpected failure while generating the image"})
		}
	}()

	genReq, err := parseGenerateRequest(req)
	if err != nil {
		common.WithError(err).WithField("tool", GenerateImageToolName).Info("Rejected invalid tool arguments")
		return errorResult(imagen.ValidationError(err))
	}

	images, err := t.generator.Generate(ctx, genReq, t.creds)
	if err != nil {
		common.WithFields(map[string]interface{}{
			"tool": GenerateImageToolName,
			"kind": imagen.KindOf(err),
		}).Warnf("Image generation failed: %v", err)
		return errorResult(err)
	}
	if len(images) == 0 {
		return errorResult(&imagen.Error{Kind: imagen.KindUpstreamProtocol, Message: "upstream returned no images"})
	}

	return t.successResult(ctx, genReq, images)
}

func parseGenerateRequest(req mcp.CallToolRequest) (imagen.GenerationRequest, error) {
	var args generateImageArgs
	if err := req.BindArguments(&args); err != nil {
		return imagen.GenerationRequest{}, fmt.Errorf("invalid arguments: %w", err)
	}
	if args.Prompt == nil {
		return imagen.GenerationRequest{}, errors.New("prompt is required")
	}

	samples := 0
	if args.SampleCount != nil {
		v := *args.SampleCount
		if v != math.Trunc(v) || v < 1 || v > imagen.MaxSampleCount {
			return imagen.GenerationRequest{}, fmt.Errorf("%w: %v (allowed 1-%d)", imagen.ErrInvalidSampleCount, v, imagen.MaxSampleCount)
		}
		samples = int(v)
	}

	return imagen.NewGenerationRequest(*args.Prompt, imagen.AspectRatio(args.AspectRatio), samples, args.OutputMIMEType)
}

func (t *ImageTool) successResult(ctx context.Context, req imagen.GenerationRequest, images []imagen.Image) *mcp.CallToolResult {
	content := make([]mcp.Content, 0, 1+2*len(images))
	content = append(content, mcp.NewTextContent(fmt.Sprintf(
		"Generated %d image(s) for prompt %q (aspect ratio %s).",
		len(images), utils.TruncateForLog(req.Prompt, 200), req.AspectRatio,
	)))
	for _, img := range images {
		content = append(content, mcp.NewImageContent(base64.StdEncoding.EncodeToString(img.Data), img.MIMEType))
	}

	if t.store != nil {
		for i, img := range images {
			location, err := t.store.Save(ctx, img.Data, img.MIMEType)
			if err != nil {
				common.WithError(err).WithField("image", i+1).Warn("Generated image could not be saved")
				content = append(content, mcp.NewTextContent(fmt.Sprintf("image %d not saved: %v", i+1, err)))
				continue
			}
			content = append(content, mcp.NewTextContent(fmt.Sprintf("image %d saved: %s", i+1, location)))
		}
	}

	return &mcp.CallToolResult{Content: content}
}

type errorPayload struct {
	Kind      imagen.Kind `json:"kind"`
	Message   string      `json:"message"`
	Retryable bool        `json:"retryable"`
}

// errorResult renders err as an MCP error result. Errors that are not
// *imagen.Error are reported as InternalError.
func errorResult(err error) *mcp.CallToolResult {
	var e *imagen.Error
	if !errors.As(err, &e) {
		e = &imagen.Error{Kind: imagen.KindInternal, Message: err.Error(), Err: err}
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(e.Error())},
		StructuredContent: map[string]errorPayload{
			"error": {Kind: e.Kind, Message: e.Message, Retryable: e.Kind.Retryable()},
		},
		IsError: true,
	}
}

// DescribeList returns the list_generated_images definition.
func (t *ImageTool) DescribeList() mcp.Tool {
	return mcp.NewTool(ListImagesToolName,
		mcp.WithDescription("List previously generated images that were saved, newest first. Returns their URLs or file paths."),
		mcp.WithTitleAnnotation("List generated images"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
		mcp.WithNumber("limit",
			mcp.Min(1),
			mcp.Max(store.MaxListLimit),
			mcp.DefaultNumber(store.DefaultListLimit),
			mcp.Description("Maximum number of images to return"),
		),
	)
}

// HandleList is the mcp-go handler for list_generated_images.
func (t *ImageTool) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return t.InvokeList(ctx, req), nil
}

// InvokeList runs one list_generated_images call.
func (t *ImageTool) InvokeList(ctx context.Context, req mcp.CallToolRequest) (result *mcp.CallToolResult) {
	defer func() {
		if r := recover(); r != nil {
			common.WithField("tool", ListImagesToolName).Errorf("panic while handling tool call: %v\n%s", r, debug.Stack())
			result = errorResult(&imagen.Error{Kind: imagen.KindInternal, Message: "unexpected failure while listing images"})
		}
	}()

	if t.store == nil {
		return errorResult(&imagen.Error{Kind: imagen.KindInternal, Message: "no image store configured"})
	}

	limit := req.GetInt("limit", store.DefaultListLimit)
	if limit < 1 || limit > store.MaxListLimit {
		return errorResult(imagen.ValidationError(fmt.Errorf("limit must be between 1 and %d, got %d", store.MaxListLimit, limit)))
	}

	entries, err := t.store.List(ctx, limit)
	if err != nil {
		common.WithError(err).Error("Failed to list saved images")
		return errorResult(&imagen.Error{Kind: imagen.KindInternal, Message: err.Error(), Err: err})
	}

	if len(entries) == 0 {
		return mcp.NewToolResultText("No generated images have been saved yet.")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d saved image(s), newest first:", len(entries))
	for _, e := range entries {
		fmt.Fprintf(&b, "\n- %s %s", e.ModTime.UTC().Format("2006-01-02T15:04:05Z"), e.Location)
	}

	return &mcp.CallToolResult{
		Content:           []mcp.Content{mcp.NewTextContent(b.String())},
		StructuredContent: map[string][]store.Entry{"images": entries},
	}
}
