// Package llmtest provides a scripted in-memory llm.Client for tests.
package llmtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonathan/unit-planner/internal/llm"
)

// Reply is one scripted response: Text, or Err when non-nil
type Reply struct {
	Text string
	Err  error
}

// Call records one request made to the client
type Call struct {
	Prompt  string
	Options llm.Options
}

// Client replays replies in order. When Respond is set it is used once the
// script is exhausted; otherwise extra calls fail.
type Client struct {
	mu      sync.Mutex
	script  []Reply
	calls   []Call
	Respond func(prompt string, opts llm.Options) (string, error)
	closed  bool
}

// New returns a client that replays replies in order
func New(replies ...Reply) *Client {
	return &Client{script: replies}
}

// Texts is shorthand for a script of successful replies
func Texts(texts ...string) []Reply {
	out := make([]Reply, len(texts))
	for i, t := range texts {
		out[i] = Reply{Text: t}
	}
	return out
}

// Push appends replies to the script
func (c *Client) Push(replies ...Reply) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.script = append(c.script, replies...)
}

// Complete implements llm.Client
func (c *Client) Complete(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	c.mu.Lock()
	c.calls = append(c.calls, Call{Prompt: prompt, Options: opts})
	n := len(c.calls)
	var reply *Reply
	if len(c.script) > 0 {
		r := c.script[0]
		c.script = c.script[1:]
		reply = &r
	}
	respond := c.Respond
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if reply != nil {
		return reply.Text, reply.Err
	}
	if respond != nil {
		return respond(prompt, opts)
	}
	return "", &llm.GenerationError{Message: fmt.Sprintf("unscripted call %d", n)}
}

// Calls returns a copy of the recorded calls
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// Prompts returns the prompts of the recorded calls
func (c *Client) Prompts() []string {
	calls := c.Calls()
	out := make([]string, len(calls))
	for i, call := range calls {
		out[i] = call.Prompt
	}
	return out
}

// Close implements llm.Client
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Closed reports whether Close was called
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
