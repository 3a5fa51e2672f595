// Package gemini generates embedding vectors via the Gemini API, with
// bounded retry on transient provider failures.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrMissingAPIKey means the provider credential is absent from
// configuration. It is a process configuration fault, not a per-request
// embedding failure.
var ErrMissingAPIKey = errors.New("GEMINI_API_KEY is not set")

// EmbeddingError is the terminal failure of an embed call: retries
// exhausted, a non-retryable provider error, or an unusable result.
type EmbeddingError struct {
	Attempts int
	Reason   string
	Cause    error
}

func (e *EmbeddingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("embedding failed after %d attempt(s): %s: %v", e.Attempts, e.Reason, e.Cause)
	}
	return fmt.Sprintf("embedding failed after %d attempt(s): %s", e.Attempts, e.Reason)
}

func (e *EmbeddingError) Unwrap() error { return e.Cause }

type GeneratorConfig struct {
	APIKey     string
	Model      string
	Dimensions int
	MaxChars   int
	MaxRetries int
	BaseDelay  time.Duration

	// ClientOpts are appended to the provider client options, used by
	// tests to point the client at a fake endpoint.
	ClientOpts []option.ClientOption
}

// embedAPI is the one call the generator makes against the provider.
type embedAPI interface {
	embed(ctx context.Context, model, text string) ([]float32, error)
}

type genaiAPI struct {
	client *genai.Client
}

func (a *genaiAPI) embed(ctx context.Context, model, text string) ([]float32, error) {
	res, err := a.client.EmbeddingModel(model).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, err
	}
	if res.Embedding == nil {
		return nil, fmt.Errorf("provider returned no embedding")
	}
	return res.Embedding.Values, nil
}

// Generator is the process-wide embedding client. The provider connection
// is constructed lazily on first use and reused across requests.
type Generator struct {
	cfg GeneratorConfig

	mu  sync.RWMutex
	api embedAPI

	newAPI func(ctx context.Context) (embedAPI, error)
	sleep  func(d time.Duration)
}

func NewGenerator(cfg GeneratorConfig) *Generator {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 32000
	}
	g := &Generator{cfg: cfg, sleep: time.Sleep}
	g.newAPI = func(ctx context.Context) (embedAPI, error) {
		opts := append([]option.ClientOption{option.WithAPIKey(cfg.APIKey)}, cfg.ClientOpts...)
		client, err := genai.NewClient(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("creating embedding provider client: %w", err)
		}
		return &genaiAPI{client: client}, nil
	}
	return g
}

// ModelVersion reports the active model identifier. Pure query.
func (g *Generator) ModelVersion() string { return g.cfg.Model }

// Dimensions reports the expected vector length for the active model.
func (g *Generator) Dimensions() int { return g.cfg.Dimensions }

// Embed returns the vector for text. Input beyond the character budget is
// truncated before the provider call; truncation is logged, never an error.
// A non-*EmbeddingError return means the provider client itself could not
// be set up (configuration fault).
func (g *Generator) Embed(ctx context.Context, text string) ([]float32, error) {
	// The budget is characters, not bytes: slicing bytes could cut a rune
	// in half and hand the provider invalid UTF-8.
	if runes := []rune(text); len(runes) > g.cfg.MaxChars {
		slog.WarnContext(ctx, "embedding input truncated",
			"original_length", len(runes), "truncated_length", g.cfg.MaxChars, "model", g.cfg.Model)
		text = string(runes[:g.cfg.MaxChars])
	}

	api, err := g.getAPI(ctx)
	if err != nil {
		return nil, err
	}

	delay := g.cfg.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= g.cfg.MaxRetries; attempt++ {
		slog.DebugContext(ctx, "generating embedding", "attempt", attempt, "model", g.cfg.Model, "text_length", len(text))

		vec, err := api.embed(ctx, g.cfg.Model, text)
		if err == nil {
			if len(vec) != g.cfg.Dimensions {
				return nil, &EmbeddingError{
					Attempts: attempt,
					Reason:   fmt.Sprintf("unexpected embedding dimensions: %d (expected %d)", len(vec), g.cfg.Dimensions),
				}
			}
			slog.InfoContext(ctx, "embedding generated", "model", g.cfg.Model, "dimensions", len(vec), "attempt", attempt)
			return vec, nil
		}

		switch classify(err) {
		case classRateLimit, classConnectivity, classServerFault:
			lastErr = err
			if attempt < g.cfg.MaxRetries {
				slog.WarnContext(ctx, "embedding attempt failed, retrying",
					"attempt", attempt, "retry_delay", delay, "error", err)
				g.sleep(delay)
				delay *= 2
			}
		case classClientFault:
			return nil, &EmbeddingError{Attempts: attempt, Reason: "provider rejected request", Cause: err}
		default:
			return nil, &EmbeddingError{Attempts: attempt, Reason: "unexpected provider failure", Cause: err}
		}
	}

	return nil, &EmbeddingError{Attempts: g.cfg.MaxRetries, Reason: "retries exhausted", Cause: lastErr}
}

func (g *Generator) getAPI(ctx context.Context) (embedAPI, error) {
	g.mu.RLock()
	if g.api != nil {
		defer g.mu.RUnlock()
		return g.api, nil
	}
	g.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()

	// Double check
	if g.api != nil {
		return g.api, nil
	}

	if g.cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	api, err := g.newAPI(ctx)
	if err != nil {
		return nil, err
	}
	g.api = api
	return api, nil
}

type failureClass int

const (
	classRateLimit failureClass = iota
	classConnectivity
	classClientFault
	classServerFault
	classOther
)

// classify buckets a provider error for the retry policy. The client may
// run over REST (googleapi errors) or gRPC (status codes) depending on
// transport, so both shapes are handled.
func classify(err error) failureClass {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == 429:
			return classRateLimit
		case gerr.Code >= 400 && gerr.Code < 500:
			return classClientFault
		default:
			// 5xx and anything unclassified from the provider is worth
			// another attempt.
			return classServerFault
		}
	}

	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.ResourceExhausted:
			return classRateLimit
		case codes.InvalidArgument, codes.FailedPrecondition, codes.PermissionDenied,
			codes.Unauthenticated, codes.NotFound, codes.OutOfRange:
			return classClientFault
		case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted:
			return classConnectivity
		default:
			return classServerFault
		}
	}

	var uerr *url.Error
	if errors.As(err, &uerr) {
		return classConnectivity
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return classConnectivity
	}

	return classOther
}
