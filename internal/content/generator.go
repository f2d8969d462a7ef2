// Package content turns a research context into a validated two speaker
// script by walking an ordered chain of language models.
package content

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"research-podcaster/internal/config"
	"research-podcaster/internal/content/llm"
	"research-podcaster/internal/models"
	"research-podcaster/internal/retry"
	"research-podcaster/internal/script"
)

// ErrGenerationFailed means every chain entry was tried without an
// acceptable result.
var ErrGenerationFailed = errors.New("content generation failed")

// Attempt outcomes as they appear in logs and on the job result.
const (
	OutcomeOK          = "ok"
	OutcomeTransient   = "transient_error"
	OutcomeError       = "error"
	OutcomeMalformed   = "malformed"
	OutcomeInvalid     = "invalid"
	OutcomeUnavailable = "unavailable"
)

// Content is validated model output. References only ever point at sources
// of the research context it was generated from.
type Content struct {
	Title       string
	Description string
	Script      string
	References  []models.Reference
	Attempts    []models.GenerationAttempt
}

// GenerationError carries the attempt log of an exhausted chain.
type GenerationError struct {
	Attempts []models.GenerationAttempt
	Err      error
}

func (e *GenerationError) Error() string { return e.Err.Error() }
func (e *GenerationError) Unwrap() error { return e.Err }

// Generator walks the fallback chain. Chain order and membership come from
// configuration.
type Generator struct {
	chain     []config.ChainEntry
	providers map[string]llm.Completer
	aliases   map[string][]string
	policy    retry.Policy
	timeout   time.Duration
}

// NewGenerator builds a generator. Chain entries naming a provider missing
// from providers are recorded as unavailable and skipped.
func NewGenerator(chain []config.ChainEntry, providers map[string]llm.Completer, aliases map[string][]string, policy retry.Policy, timeout time.Duration) *Generator {
	return &Generator{
		chain:     chain,
		providers: providers,
		aliases:   aliases,
		policy:    policy,
		timeout:   timeout,
	}
}

// Generate returns the first chain result that passes validation. Transient
// provider errors are retried within an entry; anything else moves on to the
// next entry. There is no fallback content.
func (g *Generator) Generate(ctx context.Context, topic string, rc models.ResearchContext, style StyleParams) (*Content, error) {
	resolver, err := script.NewResolver(style.Voices, g.aliases)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	user := buildUserPrompt(topic, rc, style)

	var (
		attempts []models.GenerationAttempt
		lastErr  error
	)
	record := func(entry config.ChainEntry, outcome string, latency time.Duration, err error) {
		attempts = append(attempts, models.GenerationAttempt{
			Provider:  entry.Provider,
			Model:     entry.Model,
			Outcome:   outcome,
			LatencyMS: latency.Milliseconds(),
		})
		event := log.Info()
		if err != nil {
			event = log.Warn().Err(err)
		}
		event.Str("provider", entry.Provider).Str("model", entry.Model).Str("outcome", outcome).
			Int64("latency_ms", latency.Milliseconds()).Int("attempt", len(attempts)).Msg("Content generation attempt")
	}

	for _, entry := range g.chain {
		completer, ok := g.providers[entry.Provider]
		if !ok {
			lastErr = fmt.Errorf("provider %q is not configured", entry.Provider)
			record(entry, OutcomeUnavailable, 0, lastErr)
			continue
		}

		var (
			raw     string
			latency time.Duration
		)
		_, err := retry.Do(ctx, g.policy, func(ctx context.Context) error {
			callCtx, cancel := g.callContext(ctx)
			defer cancel()
			start := time.Now()
			out, err := completer.Complete(callCtx, entry.Model, systemPrompt, user)
			latency = time.Since(start)
			if err != nil {
				outcome := OutcomeError
				if retry.Transient(err) {
					outcome = OutcomeTransient
				}
				record(entry, outcome, latency, err)
				return err
			}
			raw = out
			return nil
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			lastErr = err
			continue
		}

		content, err := parse(raw, rc, resolver)
		if err != nil {
			outcome := OutcomeInvalid
			if errors.Is(err, errMalformed) {
				outcome = OutcomeMalformed
			}
			record(entry, outcome, latency, err)
			lastErr = err
			continue
		}
		record(entry, OutcomeOK, latency, nil)
		content.Attempts = attempts
		return content, nil
	}

	if lastErr == nil {
		lastErr = errors.New("empty fallback chain")
	}
	return nil, &GenerationError{
		Attempts: attempts,
		Err:      fmt.Errorf("%w after %d attempts: %v", ErrGenerationFailed, len(attempts), lastErr),
	}
}

func (g *Generator) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}
