package imagen

import "context"

// Generator turns one GenerationRequest into images. Implementations make at
// most one upstream call per Generate and return an *Error on failure.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest, creds Credentials) ([]Image, error)
}
