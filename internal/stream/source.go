package stream

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Turn is one prior conversation turn handed to a Source.
type Turn struct {
	Role    string
	Content string
}

// Request is one chat turn to answer.
type Request struct {
	SessionID uuid.UUID
	Message   string
	History   []Turn
}

// Source supplies assistant reply deltas for a chat turn.
//
// The iterator yields text deltas until the reply is complete or an error
// occurs; after a non-nil error no further values follow. Implementations
// must honor ctx and stop yielding promptly once it is canceled.
type Source interface {
	Stream(ctx context.Context, req Request) iter.Seq2[string, error]
}

// simChunkSize is the delta size the simulation source streams in. Small
// enough that artifact tags regularly split across deltas, which is the
// interesting case for the held-tag logic downstream.
const simChunkSize = 17

// SimSource streams canned artifact-bearing replies so the whole pipeline
// runs end to end without an upstream model. The reply is picked by
// keywords in the user message; see Stream.
type SimSource struct {
	// Delay paces the deltas to make streams feel live. Zero streams
	// flat out, which is what tests want.
	Delay time.Duration
}

// Stream yields the canned reply for req.Message in fixed-size deltas.
func (s *SimSource) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	reply := simReply(req.Message)
	return func(yield func(string, error) bool) {
		for pos := 0; pos < len(reply); pos += simChunkSize {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			end := min(pos+simChunkSize, len(reply))
			if !yield(reply[pos:end], nil) {
				return
			}
			if s.Delay > 0 {
				select {
				case <-ctx.Done():
					yield("", ctx.Err())
					return
				case <-time.After(s.Delay):
				}
			}
		}
	}
}

// simReply picks a canned reply by keyword. The replies cover the event
// vocabulary: plain prose, a single artifact, and a multi-artifact answer.
func simReply(message string) string {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "code"):
		return simCodeReply
	case strings.Contains(lower, "diagram"):
		return simDiagramReply
	case strings.Contains(lower, "page") || strings.Contains(lower, "html"):
		return simHTMLReply
	case strings.Contains(lower, "plain"):
		return simPlainReply
	default:
		return fmt.Sprintf(simEchoReply, strings.TrimSpace(message))
	}
}

const simPlainReply = "Happy to help. This reply has no artifacts in it, " +
	"just a couple of sentences of ordinary prose so the transcript has " +
	"something to show."

const simEchoReply = "You asked: %q.\n\nHere is a small page to get you " +
	"started.\n\n<artifact type=\"text/html\" title=\"Starter page\">" +
	"<!doctype html>\n<html>\n<body>\n  <h1>Hello from easel</h1>\n" +
	"</body>\n</html></artifact>\n\nOpen it on the canvas and tell me " +
	"what to change."

const simCodeReply = "Sure, here is a worked example.\n\n<artifact " +
	"type=\"application/vnd.ant.code\" title=\"Fibonacci\" language=\"go\">" +
	"func fib(n int) int {\n    if n < 2 {\n        return n\n    }\n" +
	"    return fib(n-1) + fib(n-2)\n}</artifact>\n\nThe naive version is " +
	"exponential; memoize it if n grows.\n\n<artifact " +
	"type=\"application/vnd.ant.code\" title=\"Fibonacci, memoized\" " +
	"language=\"go\">func fib(n int, memo map[int]int) int {\n    if n < 2 " +
	"{\n        return n\n    }\n    if v, ok := memo[n]; ok {\n        " +
	"return v\n    }\n    memo[n] = fib(n-1, memo) + fib(n-2, memo)\n    " +
	"return memo[n]\n}</artifact>\n\nBoth compile as written."

const simDiagramReply = "Here is the flow as a diagram.\n\n<artifact " +
	"type=\"application/vnd.ant.mermaid\" title=\"Request flow\">graph TD\n" +
	"    A[Client] --> B[API]\n    B --> C[(Postgres)]\n    B --> D[Canvas]" +
	"</artifact>\n\nThe canvas node only lights up when a reply carries " +
	"an artifact."

const simHTMLReply = "Here is a self-contained page.\n\n<artifact " +
	"type=\"text/html\" title=\"Demo page\"><!doctype html>\n<html>\n" +
	"<head><title>Demo</title></head>\n<body>\n  <p>Rendered off the " +
	"canvas.</p>\n</body>\n</html></artifact>\n\nIt has no external " +
	"dependencies."
