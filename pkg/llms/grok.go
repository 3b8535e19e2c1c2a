package llms

import (
	"fmt"
	"strings"
	"time"

	"github.com/reagentlabs/reagent/pkg/httpclient"
)

// ============================================================================
// GROK PROVIDER — chat-completions dialect against api.x.ai
// ============================================================================

const GrokDefaultBaseURL = "https://api.x.ai/v1"

var grokModels = []string{
	"grok-beta",
	"grok-1",
	"grok-2",
}

// GrokProvider speaks the same chat-completions dialect as OpenAI, rooted
// at the X.AI endpoint. Structured output always uses json_schema; the
// backend has no legacy json_object-only model family.
type GrokProvider struct {
	*OpenAIProvider
}

type GrokOption func(*openAIOptions)

func WithGrokBaseURL(url string) GrokOption {
	return func(o *openAIOptions) { o.baseURL = url }
}

func WithGrokTimeout(d time.Duration) GrokOption {
	return func(o *openAIOptions) { o.timeout = d }
}

// NewGrokProvider creates a Grok provider with an open HTTP scope.
func NewGrokProvider(apiKey string, opts ...GrokOption) (*GrokProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("grok: api key is required")
	}

	options := &openAIOptions{
		baseURL: GrokDefaultBaseURL,
		timeout: httpclient.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(options)
	}

	inner := &OpenAIProvider{
		name:             "grok",
		models:           grokModels,
		jsonSchemaAlways: true,
		http: httpclient.New(strings.TrimSuffix(options.baseURL, "/"),
			httpclient.WithTimeout(options.timeout),
			httpclient.WithHeader("Authorization", "Bearer "+apiKey),
		),
	}

	return &GrokProvider{OpenAIProvider: inner}, nil
}
