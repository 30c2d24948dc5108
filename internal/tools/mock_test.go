package tools

import (
	"context"
	"sync/atomic"

	"imagen-mcp/internal/genai/imagen"
	"imagen-mcp/internal/store"
)

// mockGenerator is a mock implementation of imagen.Generator.
type mockGenerator struct {
	GenerateFunc func(ctx context.Context, req imagen.GenerationRequest, creds imagen.Credentials) ([]imagen.Image, error)
	calls        atomic.Int32
}

func (m *mockGenerator) Generate(ctx context.Context, req imagen.GenerationRequest, creds imagen.Credentials) ([]imagen.Image, error) {
	m.calls.Add(1)
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req, creds)
	}
	return []imagen.Image{{Data: []byte("png"), MIMEType: "image/png"}}, nil
}

// mockStore is a mock implementation of store.Store.
type mockStore struct {
	SaveFunc  func(ctx context.Context, data []byte, mimeType string) (string, error)
	ListFunc  func(ctx context.Context, limit int) ([]store.Entry, error)
	saveCalls atomic.Int32
}

func (m *mockStore) Save(ctx context.Context, data []byte, mimeType string) (string, error) {
	m.saveCalls.Add(1)
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, data, mimeType)
	}
	return "file:///tmp/images/a.png", nil
}

func (m *mockStore) List(ctx context.Context, limit int) ([]store.Entry, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit)
	}
	return nil, nil
}
