package functions

import (
	"context"
	"fmt"
	"strings"

	"github.com/Daskott/sentinel/shared"
	"github.com/sashabaranov/go-openai"
)

const DEFAULT_MODEL = "gpt-4o-mini"

const (
	sosSystemPrompt = "You write emergency messages that are sent to a person's trusted contacts. " +
		"Rewrite the user's message so it is urgent, clear and calm. Keep it under 60 words, " +
		"keep every fact from the original and do not invent locations, names or injuries. " +
		"Reply with the message only."

	routeSystemPrompt = "You help people travel safely on foot. Given a start and an end location, " +
		"describe a route that favours busy, well lit streets and public places, and add two or three " +
		"short safety tips. Keep it under 120 words."
)

// Generator produces the text behind the ai backed functions
type Generator interface {
	SosMessage(ctx context.Context, baseMessage string) (string, error)
	SafeRoute(ctx context.Context, start, end string) (string, error)
}

// NewGenerator returns an openai backed generator, or the template generator
// when no api key is configured
func NewGenerator(config shared.OpenAIConfig) Generator {
	if strings.TrimSpace(config.APIKey) == "" {
		logg.Warn("openai.apiKey not set, falling back to template generated text")
		return TemplateGenerator{}
	}
	return NewOpenAIGenerator(config)
}

type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

func NewOpenAIGenerator(config shared.OpenAIConfig) *OpenAIGenerator {
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	model := config.Model
	if model == "" {
		model = DEFAULT_MODEL
	}

	logg.Infof("Initializing OpenAI generator with model %v", model)
	return &OpenAIGenerator{client: openai.NewClientWithConfig(clientConfig), model: model}
}

func (g *OpenAIGenerator) SosMessage(ctx context.Context, baseMessage string) (string, error) {
	if strings.TrimSpace(baseMessage) == "" {
		baseMessage = "I need help."
	}
	return g.complete(ctx, sosSystemPrompt, baseMessage)
}

func (g *OpenAIGenerator) SafeRoute(ctx context.Context, start, end string) (string, error) {
	return g.complete(ctx, routeSystemPrompt, fmt.Sprintf("Start: %s\nEnd: %s", start, end))
}

func (g *OpenAIGenerator) complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("openai: %v", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices returned")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// TemplateGenerator is deterministic, it is used in dev & tests
type TemplateGenerator struct{}

func (TemplateGenerator) SosMessage(ctx context.Context, baseMessage string) (string, error) {
	baseMessage = strings.TrimSpace(baseMessage)
	if baseMessage == "" {
		baseMessage = "I need help."
	}

	return fmt.Sprintf("URGENT: %s I may be in danger and need immediate assistance. "+
		"Please call me or contact emergency services right away.", baseMessage), nil
}

func (TemplateGenerator) SafeRoute(ctx context.Context, start, end string) (string, error) {
	return fmt.Sprintf("From %s to %s: stay on main streets that are busy and well lit, "+
		"avoid shortcuts through parks, alleys or empty parking lots, and share your live location "+
		"with a trusted contact before you leave.", start, end), nil
}
