// Package llms implements the LLM provider layer: one adapter per wire
// dialect, all translating to and from the unified protocol types. The
// adapters hand-roll their HTTP payloads; no provider SDKs are involved,
// which keeps the translation rules inspectable and testable against
// recorded fixtures.
package llms

import (
	"context"
	"errors"

	"github.com/reagentlabs/reagent/pkg/protocol"
)

var (
	// ErrDuplicateProvider reports an instance id that is already taken.
	ErrDuplicateProvider = errors.New("provider already exists")

	// ErrUnknownProvider reports an unrecognized provider type.
	ErrUnknownProvider = errors.New("unsupported provider type")

	// ErrProviderNotFound reports a lookup for an unregistered instance.
	ErrProviderNotFound = errors.New("provider not found")
)

// Provider is a single LLM backend speaking one wire dialect.
//
// Complete and StreamComplete are only valid while the provider's HTTP
// scope is open; after Close they fail with httpclient.ErrClientClosed.
type Provider interface {
	// Name returns the provider type name (openai, anthropic, gemini, grok).
	Name() string

	SupportedModels() []string
	SupportsToolCalling() bool
	SupportsStructuredOutput() bool

	// Complete performs one non-streaming completion.
	Complete(ctx context.Context, req *protocol.Request) (*protocol.Response, error)

	// StreamComplete performs a streaming completion. The returned channel
	// is closed when the stream ends; a chunk with Err set is terminal.
	StreamComplete(ctx context.Context, req *protocol.Request) (<-chan protocol.StreamChunk, error)

	// Close releases the provider's HTTP scope.
	Close() error
}

// Info describes a provider instance or type for listings.
type Info struct {
	ID                       string   `json:"id,omitempty"`
	Type                     string   `json:"provider_type"`
	IsDefault                bool     `json:"is_default,omitempty"`
	SupportsTools            bool     `json:"supports_tools"`
	SupportsStructuredOutput bool     `json:"supports_structured_output"`
	Models                   []string `json:"supported_models,omitempty"`
}

const streamChannelBuffer = 100
