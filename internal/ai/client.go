// Package ai drafts pothole report descriptions from street-view imagery with an OpenAI vision model.
package ai

import (
	"context"
	"log/slog"
	"strings"

	"github.com/potholemap/potholemap/internal/errors"
	"github.com/sashabaranov/go-openai"
)

var ErrEmptyCompletion = errors.NewSentinel("empty completion")

const (
	MaxTokens = 120
	// maxDescriptionRunes keeps drafts within what fits the report form comfortably.
	maxDescriptionRunes = 500
)

const describePrompt = "You help residents file 311 pothole reports. Describe the road damage visible in the " +
	"image in one or two plain sentences suitable for the report's description field: where in the roadway it is, " +
	"its approximate size and whether it looks hazardous. Do not mention the image, the camera or yourself."

type Options struct {
	// BaseURL overrides the OpenAI API endpoint.
	BaseURL string
	Model   string
}

type Client struct {
	client *openai.Client
	model  string
}

// NewClient creates a client authenticating with apiKey.
func NewClient(apiKey string, opts Options) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	model := opts.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Client{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// DescribePothole drafts a report description for the pothole shown at imageURL.
func (c *Client) DescribePothole(ctx context.Context, imageURL string) (string, error) {
	completion, err := c.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{ //nolint:exhaustruct // this is better for readability
			Model:     c.model,
			MaxTokens: MaxTokens,
			Messages: []openai.ChatCompletionMessage{
				{ //nolint:exhaustruct // this is better for readability
					Role:    openai.ChatMessageRoleSystem,
					Content: describePrompt,
				},
				{ //nolint:exhaustruct // this is better for readability
					Role: openai.ChatMessageRoleUser,
					MultiContent: []openai.ChatMessagePart{
						{ //nolint:exhaustruct // this is better for readability
							Type: openai.ChatMessagePartTypeText,
							Text: "Describe the pothole for the report.",
						},
						{ //nolint:exhaustruct // this is better for readability
							Type: openai.ChatMessagePartTypeImageURL,
							ImageURL: &openai.ChatMessageImageURL{
								URL:    imageURL,
								Detail: openai.ImageURLDetailLow,
							},
						},
					},
				},
			},
		},
	)
	if err != nil {
		return "", errors.Wrap(err, "create chat completion", slog.String("image_url", imageURL))
	}
	if len(completion.Choices) == 0 {
		return "", errors.Wrap(ErrEmptyCompletion, "describe pothole")
	}
	description := strings.TrimSpace(completion.Choices[0].Message.Content)
	if description == "" {
		return "", errors.Wrap(ErrEmptyCompletion, "describe pothole")
	}
	if runes := []rune(description); len(runes) > maxDescriptionRunes {
		description = string(runes[:maxDescriptionRunes])
	}
	return description, nil
}
