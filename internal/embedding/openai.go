package embedding

import (
	"context"
	"math/rand"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/vaultmind/memcore/pkg/types"
)

// RetryConfig controls the exponential backoff applied on retryable
// embedding failures before EmbeddingError is finally surfaced.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func defaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second}
}

// OpenAIClient implements Client against the OpenAI embeddings API, or an
// Azure OpenAI deployment when configured with an endpoint, via the same
// wire-compatible SDK. Calls are guarded by a circuit breaker and retried
// with exponential backoff on transient failures.
type OpenAIClient struct {
	client    *openai.Client
	model     string
	dimension int
	breaker   *circuitBreaker
	retry     RetryConfig
	limiter   *rate.Limiter
}

// OpenAIClientOption customizes OpenAIClient construction.
type OpenAIClientOption func(*OpenAIClient)

func WithRetryConfig(r RetryConfig) OpenAIClientOption {
	return func(c *OpenAIClient) { c.retry = r }
}

// WithRateLimit bounds outbound calls to the provider to reqPerSec
// sustained with the given burst, protecting against quota exhaustion when
// many remember/recall calls embed concurrently.
func WithRateLimit(reqPerSec float64, burst int) OpenAIClientOption {
	return func(c *OpenAIClient) {
		c.limiter = rate.NewLimiter(rate.Limit(reqPerSec), burst)
	}
}

// NewOpenAIClient builds a client for the plain OpenAI API.
func NewOpenAIClient(apiKey, model string, dimension int, opts ...OpenAIClientOption) *OpenAIClient {
	return newOpenAIClient(openai.NewClient(apiKey), model, dimension, opts...)
}

// NewAzureClient builds a client against an Azure OpenAI deployment
// reachable at endpoint, using the deployment name as model.
func NewAzureClient(apiKey, endpoint, model string, dimension int, opts ...OpenAIClientOption) *OpenAIClient {
	cfg := openai.DefaultAzureConfig(apiKey, endpoint)
	return newOpenAIClient(openai.NewClientWithConfig(cfg), model, dimension, opts...)
}

func newOpenAIClient(raw *openai.Client, model string, dimension int, opts ...OpenAIClientOption) *OpenAIClient {
	c := &OpenAIClient{
		client:    raw,
		model:     model,
		dimension: dimension,
		breaker:   newCircuitBreaker(defaultCircuitBreakerConfig()),
		retry:     defaultRetryConfig(),
		limiter:   rate.NewLimiter(rate.Limit(50), 10),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *OpenAIClient) Dimension() int { return c.dimension }

func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	attempts := 0
	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(c.retry, attempt)
			select {
			case <-ctx.Done():
				return nil, types.NewTimeoutError("embed_batch")
			case <-time.After(delay):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, types.NewTimeoutError("embed_batch: rate limiter wait")
		}

		result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
			return c.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
				Input: texts,
				Model: openai.EmbeddingModel(c.model),
			})
		})
		if err == nil {
			resp := result.(openai.EmbeddingResponse)
			vectors, dimErr := c.toVectors(resp)
			if dimErr != nil {
				return nil, dimErr
			}
			return vectors, nil
		}

		lastErr = err
		attempts++
		if !isRetryable(err) {
			break
		}
	}
	// An open breaker is not retried inside this loop, but the caller may
	// retry once it closes, so it still surfaces as retryable.
	retryable := isRetryable(lastErr) || lastErr == ErrCircuitOpen
	return nil, types.NewEmbeddingError(retryable, lastErr, "embed_batch: provider call failed after %d attempts", attempts)
}

func (c *OpenAIClient) toVectors(resp openai.EmbeddingResponse) ([][]float32, *types.Error) {
	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		if len(d.Embedding) != c.dimension {
			return nil, types.NewEmbeddingError(false, nil,
				"embedding dimension mismatch: provider returned %d, configured %d", len(d.Embedding), c.dimension)
		}
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	return err != ErrCircuitOpen
}

func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	delay := cfg.BaseDelay * time.Duration(1<<uint(attempt-1))
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay) / 2)) //nolint:gosec
	return delay + jitter
}
