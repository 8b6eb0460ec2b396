// Package stream consumes the framed result stream of an external generation
// run and accumulates the generating agent's message content.
package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/fablery/fable-api/internal/platform/logger"
)

// Frame layout constants.
const (
	// dataPrefix marks an event line; the rest of the line is a JSON payload.
	dataPrefix = "data: "
	// doneSentinel is the payload the service emits as its final frame.
	doneSentinel = "[DONE]"
	// maxLineBytes bounds a single frame; generation messages are short but
	// a full page of text plus JSON escaping can exceed bufio's default.
	maxLineBytes = 1 << 20
)

// agentRole is the role value marking the generating agent's own output.
// Tool results and user echoes carry other roles and are filtered out.
const agentRole = "assistant"

// Message is one decoded event payload from the stream.
type Message struct {
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Result holds everything a completed reconciliation produced: the
// accumulated agent text and the raw message list for audit.
type Result struct {
	Content  string
	Messages []Message
}

// Reconciler consumes newline-delimited frames from a result stream.
type Reconciler struct {
	logger *slog.Logger
}

// NewReconciler creates a reconciler.
// If logger is nil, a default logger will be used.
func NewReconciler(logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Reconciler{
		logger: logger.With(slog.String("component", "stream_reconciler")),
	}
}

// Consume reads the stream to its end and returns the accumulated content.
//
// Each frame is one line: blank lines and ":"-prefixed comments are skipped;
// "data: " lines carry a JSON payload. A payload contributes to the
// accumulator iff its type is "message", its role is the generating agent's
// and its content is non-empty. Malformed JSON on a line is skipped, never
// fatal. bufio buffers partial lines internally, so frames split across read
// chunks are only parsed once complete. End of stream is a normal
// termination, as is the [DONE] sentinel; context cancellation aborts with
// the context's error and the caller discards the partial accumulator.
func (r *Reconciler) Consume(ctx context.Context, stream io.Reader) (*Result, error) {
	log := logger.FromContextOrDefault(ctx, r.logger)

	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var content strings.Builder
	var messages []Message

	for scanner.Scan() {
		// A blocked Read cannot observe cancellation itself; the caller's
		// request body is context-bound, so checking between frames is
		// enough to stop promptly.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}

		if !strings.HasPrefix(line, dataPrefix) {
			log.Debug("skipping unrecognized frame", slog.String("frame", truncate(line, 80)))
			continue
		}

		payload := strings.TrimPrefix(line, dataPrefix)
		if payload == doneSentinel {
			break
		}

		var msg Message
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			log.Warn("skipping malformed frame payload",
				slog.String("error", err.Error()))
			continue
		}

		messages = append(messages, msg)

		if msg.Type == "message" && msg.Role == agentRole && msg.Content != "" {
			content.WriteString(msg.Content)
		}
	}

	if err := scanner.Err(); err != nil {
		// Cancellation often surfaces through the reader; prefer the
		// context error so callers can distinguish timeout from transport.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("result stream read failed: %w", err)
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	log.Debug("stream reconciled",
		slog.Int("message_count", len(messages)),
		slog.Int("content_length", content.Len()))

	return &Result{Content: content.String(), Messages: messages}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
