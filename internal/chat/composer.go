package chat

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/starford/nodeflow/internal/apperr"
)

// Ask is the block that completes a question.
const Ask = "?"

// FailedAnswer is recorded when the model could not be reached.
const FailedAnswer = "Failed to get a response from the model."

// DefaultBlocks are offered when no block is selected.
var DefaultBlocks = []string{"what", "who", "when", "where", "why", "how"}

// Message is one answered question.
type Message struct {
	Question []string `json:"question"`
	Answer   string   `json:"answer"`
}

// Composer builds questions block by block. It is not safe for concurrent use.
type Composer struct {
	client *Client
	logger *slog.Logger

	selected        []string
	suggestions     []string
	messages        []Message
	showSuggestions bool
}

// NewComposer returns a Composer offering DefaultBlocks.
func NewComposer(client *Client, logger *slog.Logger) *Composer {
	return &Composer{
		client:          client,
		logger:          logger,
		suggestions:     slices.Clone(DefaultBlocks),
		showSuggestions: true,
	}
}

// Select picks a block. Ask sends the question built so far; any other block
// is appended and fresh suggestions are fetched. Backend failures are
// absorbed into the state unless they require a new login.
func (c *Composer) Select(ctx context.Context, block string) error {
	if block == Ask {
		return c.send(ctx)
	}

	next := append(slices.Clone(c.selected), block)
	suggestions, err := c.client.Suggestions(ctx, next)
	if err != nil {
		if apperr.IsRedirect(err) {
			return err
		}
		c.logger.Warn("chat: fetching suggestions failed", slog.String("error", err.Error()))
		suggestions = []string{}
	}
	c.selected = next
	c.suggestions = suggestions
	return nil
}

func (c *Composer) send(ctx context.Context) error {
	question := append(slices.Clone(c.selected), Ask)
	answer, err := c.client.Generate(ctx, strings.Join(question, " "))
	if err != nil {
		if apperr.IsRedirect(err) {
			return err
		}
		c.logger.Warn("chat: generate failed", slog.String("error", err.Error()))
		answer = FailedAnswer
	}
	c.messages = append(c.messages, Message{Question: question, Answer: answer})
	c.selected = nil
	c.suggestions = slices.Clone(DefaultBlocks)
	c.showSuggestions = false
	return nil
}

// AskAgain clears the current question and shows the default blocks again.
func (c *Composer) AskAgain() {
	c.selected = nil
	c.suggestions = slices.Clone(DefaultBlocks)
	c.showSuggestions = true
}

// Selected returns the blocks picked so far.
func (c *Composer) Selected() []string { return slices.Clone(c.selected) }

// Suggestions returns the blocks currently offered.
func (c *Composer) Suggestions() []string { return slices.Clone(c.suggestions) }

// Messages returns the answered questions, oldest first.
func (c *Composer) Messages() []Message { return slices.Clone(c.messages) }

// ShowingSuggestions is false after a question was sent until AskAgain.
func (c *Composer) ShowingSuggestions() bool { return c.showSuggestions }

// CanAsk reports whether at least one block is selected.
func (c *Composer) CanAsk() bool { return len(c.selected) > 0 }
