// Package completion orchestrates chat completions: it assembles the
// message list, drives the upstream stream through the ingestor, and
// resumes truncated generations.
package completion

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/surfersbangs/surfers/internal/log"
	"github.com/surfersbangs/surfers/internal/stream"
	"github.com/surfersbangs/surfers/internal/upstream"
)

// FinishReason classifies how a completion ended.
type FinishReason string

const (
	// FinishStop is a natural end of generation.
	FinishStop FinishReason = "stop"

	// FinishLength means the generation hit the token limit and may be
	// resumed.
	FinishLength FinishReason = "length"

	// FinishClientClosed means the caller went away mid-stream.
	FinishClientClosed FinishReason = "client_closed"

	// FinishError is a transport or upstream failure.
	FinishError FinishReason = "error"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// continueInstruction nudges the model to resume after a length cutoff
// without repeating emitted text.
const continueInstruction = "Continue exactly where you left off. Do not repeat anything you already wrote."

// readChunkSize is the upstream body read granularity. Small enough to keep
// delta latency low, large enough to not thrash.
const readChunkSize = 4096

// Upstream is the completion provider surface the driver needs.
type Upstream interface {
	StreamCompletion(ctx context.Context, req upstream.StreamRequest) (io.ReadCloser, error)
	Complete(ctx context.Context, req upstream.StreamRequest) (string, error)
}

// Request is one completion job.
type Request struct {
	// Prompt is the user's text. Always used for intercept matching.
	Prompt string

	// Parts, when set, replace Prompt as the user message body (vision).
	Parts []upstream.ContentPart

	// History is the prior conversation, oldest first, without the system
	// prompt.
	History []upstream.Message
}

// Config tunes a Driver.
type Config struct {
	Logger           log.Logger
	SystemPrompt     string
	Temperature      *float64
	MaxTokens        int
	MaxContinuations int
	Intercept        *Intercept
}

// Driver runs completions against one upstream.
type Driver struct {
	up               Upstream
	logger           log.Logger
	systemPrompt     string
	temperature      *float64
	maxTokens        int
	maxContinuations int
	intercept        *Intercept
}

// NewDriver creates a Driver. A zero MaxContinuations means no resumption.
func NewDriver(up Upstream, cfg Config) *Driver {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Driver{
		up:               up,
		logger:           logger,
		systemPrompt:     cfg.SystemPrompt,
		temperature:      cfg.Temperature,
		maxTokens:        cfg.MaxTokens,
		maxContinuations: cfg.MaxContinuations,
		intercept:        cfg.Intercept,
	}
}

// Run performs a single streamed completion, forwarding each delta to sink
// in order. Exactly one upstream request is made. The returned reason is
// FinishClientClosed when ctx is cancelled mid-stream; the partial output
// already sent to sink stands.
func (d *Driver) Run(ctx context.Context, req Request, sink func(delta string)) (FinishReason, error) {
	if reply, ok := d.intercept.Match(req.Prompt); ok {
		sink(reply)
		return FinishStop, nil
	}
	return d.runOnce(ctx, d.buildMessages(req), sink)
}

// RunWithContinuation is Run plus automatic resumption: when a completion
// finishes with FinishLength it is retried with synthetic bridging messages,
// up to the configured iteration budget. Deltas from all iterations flow to
// sink as one uninterrupted sequence.
func (d *Driver) RunWithContinuation(ctx context.Context, req Request, sink func(delta string)) (FinishReason, error) {
	if reply, ok := d.intercept.Match(req.Prompt); ok {
		sink(reply)
		return FinishStop, nil
	}

	maxIter := d.maxContinuations
	if maxIter < 1 {
		maxIter = 1
	}

	messages := d.buildMessages(req)
	for i := 1; ; i++ {
		fin, err := d.runOnce(ctx, messages, sink)
		if err != nil || fin != FinishLength || i >= maxIter {
			if fin == FinishLength && i >= maxIter {
				d.logger.Warn("continuation budget exhausted", "iterations", i)
			}
			return fin, err
		}
		d.logger.Debug("resuming truncated completion", "iteration", i+1)
		messages = append(messages,
			upstream.Message{Role: RoleAssistant, Content: "(continuing...)"},
			upstream.Message{Role: RoleUser, Content: continueInstruction},
		)
	}
}

// Complete performs a non-streaming completion and returns the full reply.
func (d *Driver) Complete(ctx context.Context, req Request) (string, error) {
	if reply, ok := d.intercept.Match(req.Prompt); ok {
		return reply, nil
	}
	return d.up.Complete(ctx, d.streamRequest(d.buildMessages(req)))
}

func (d *Driver) buildMessages(req Request) []upstream.Message {
	history := trimHistory(req.History)

	msgs := make([]upstream.Message, 0, len(history)+2)
	if d.systemPrompt != "" {
		msgs = append(msgs, upstream.Message{Role: RoleSystem, Content: d.systemPrompt})
	}
	msgs = append(msgs, history...)

	user := upstream.Message{Role: RoleUser, Content: req.Prompt}
	if len(req.Parts) > 0 {
		user.Content = req.Parts
	}
	return append(msgs, user)
}

func (d *Driver) streamRequest(messages []upstream.Message) upstream.StreamRequest {
	return upstream.StreamRequest{
		Messages:    messages,
		Temperature: d.temperature,
		MaxTokens:   d.maxTokens,
	}
}

// runOnce drives one upstream stream to completion through the ingestor.
func (d *Driver) runOnce(ctx context.Context, messages []upstream.Message, sink func(delta string)) (FinishReason, error) {
	body, err := d.up.StreamCompletion(ctx, d.streamRequest(messages))
	if err != nil {
		if ctx.Err() != nil {
			return FinishClientClosed, ctx.Err()
		}
		return FinishError, err
	}
	defer func() { _ = body.Close() }()

	ing := stream.NewIngestor(sink)
	buf := make([]byte, readChunkSize)
	for {
		if ctx.Err() != nil {
			return FinishClientClosed, ctx.Err()
		}
		n, rerr := body.Read(buf)
		if n > 0 {
			ing.Write(buf[:n])
		}
		if errors.Is(rerr, io.EOF) || ing.Done() {
			break
		}
		if rerr != nil {
			if ctx.Err() != nil {
				return FinishClientClosed, ctx.Err()
			}
			return FinishError, fmt.Errorf("completion: read stream: %w", rerr)
		}
	}
	ing.Flush()

	d.logger.Debug("completion stream ended",
		"mode", ing.Mode().String(),
		"finish_reason", ing.FinishReason(),
	)

	if ing.FinishReason() == string(FinishLength) {
		return FinishLength, nil
	}
	return FinishStop, nil
}
