package story

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/medbrief/newsroom/internal/record"
)

const (
	// DefaultBaseURL is the OpenAI API base URL.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is the story generation model.
	DefaultModel = "gpt-4.1-2025-04-14"

	// DefaultTimeout is the story request timeout. Generation is slow.
	DefaultTimeout = 2 * time.Minute

	// DefaultCacheSize bounds the in-memory story cache.
	DefaultCacheSize = 256
)

// Errors surfaced to the curator when generation cannot proceed.
var (
	ErrMissingAPIKey = errors.New("OPENAI_API_KEY is not set")
	ErrEmptyResponse = errors.New("LLM returned an empty response")
	ErrInvalidJSON   = errors.New("LLM returned invalid JSON")
)

// Generator produces stories through an OpenAI-compatible chat completions
// endpoint. Generated stories are cached by PMID, model, and prompt digest,
// so an unchanged record costs nothing to revisit.
type Generator struct {
	httpClient *http.Client
	cache      *lru.Cache[string, Story]
	apiKey     string
	model      string
	baseURL    string
	template   string
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithModel sets the generation model.
func WithModel(model string) GeneratorOption {
	return func(g *Generator) {
		g.model = model
	}
}

// WithGeneratorBaseURL sets a custom API base URL (for testing or a
// compatible proxy).
func WithGeneratorBaseURL(url string) GeneratorOption {
	return func(g *Generator) {
		g.baseURL = url
	}
}

// WithGeneratorHTTPClient sets a custom HTTP client.
func WithGeneratorHTTPClient(hc *http.Client) GeneratorOption {
	return func(g *Generator) {
		g.httpClient = hc
	}
}

// WithTemplate replaces the built-in prompt template.
func WithTemplate(template string) GeneratorOption {
	return func(g *Generator) {
		g.template = template
	}
}

// NewGenerator creates a story generator. The API key may be empty, in
// which case Generate fails with ErrMissingAPIKey; this keeps the rest of
// the admin surface usable without OpenAI credentials.
func NewGenerator(apiKey string, opts ...GeneratorOption) (*Generator, error) {
	g := &Generator{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		apiKey:     apiKey,
		model:      DefaultModel,
		baseURL:    DefaultBaseURL,
		template:   defaultTemplate,
	}
	for _, opt := range opts {
		opt(g)
	}

	if err := ValidateTemplate(g.template); err != nil {
		return nil, err
	}

	cache, err := lru.New[string, Story](DefaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating story cache: %w", err)
	}
	g.cache = cache
	return g, nil
}

// Prompt renders the full prompt for a record.
func (g *Generator) Prompt(rec record.Record) string {
	return strings.ReplaceAll(g.template, "{kernel}", buildKernel(rec))
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type       string          `json:"type"`
	JSONSchema *jsonSchemaSpec `json:"json_schema,omitempty"`
}

type jsonSchemaSpec struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
	Strict bool            `json:"strict"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate produces a story for the record from an already-rendered prompt.
// Regenerate skips the cache lookup but still refreshes the cache with the
// new story.
func (g *Generator) Generate(ctx context.Context, rec record.Record, prompt string, regenerate bool) (Story, error) {
	if g.apiKey == "" {
		return Story{}, ErrMissingAPIKey
	}

	key := cacheKey(rec.PMID, g.model, prompt)
	if !regenerate {
		if cached, ok := g.cache.Get(key); ok {
			return cached, nil
		}
	}

	reqBody := chatRequest{
		Model:    g.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
		ResponseFormat: &responseFormat{
			Type: "json_schema",
			JSONSchema: &jsonSchemaSpec{
				Name:   "news_story",
				Schema: storySchema,
				Strict: true,
			},
		},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return Story{}, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Story{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return Story{}, fmt.Errorf("LLM request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Story{}, fmt.Errorf("LLM request failed: status %d: %s", resp.StatusCode, formatErrorBody(resp.Body))
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Story{}, fmt.Errorf("decoding response: %w", err)
	}

	var text string
	for _, choice := range result.Choices {
		if choice.Message.Content != "" {
			text = choice.Message.Content
			break
		}
	}
	if text == "" {
		return Story{}, ErrEmptyResponse
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return Story{}, ErrInvalidJSON
	}

	fallback := rec.Title
	if fallback == "" {
		fallback = "Untitled study"
	}
	story := normalizeStory(data, fallback)
	g.cache.Add(key, story)
	return story, nil
}

func cacheKey(pmid, model, prompt string) string {
	digest := sha256.Sum256([]byte(prompt))
	return pmid + ":" + model + ":" + hex.EncodeToString(digest[:])[:10]
}

// formatErrorBody reads and formats the response body for error messages.
func formatErrorBody(body io.Reader) string {
	respBody, err := io.ReadAll(body)
	if err != nil {
		return fmt.Sprintf("(failed to read response body: %v)", err)
	}
	return string(respBody)
}
