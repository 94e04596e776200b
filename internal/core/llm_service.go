package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

const (
	defaultTitleModelName = "gemini-1.5-flash-latest"

	titleSystemInstruction = "You are a helpful assistant that generates concise titles for conversations with a data analysis assistant. " +
		"The user asks questions about a database in natural language. " +
		"The title should be 3-5 words maximum. Just return the title itself, nothing else."
)

// LLMService generates conversation titles with Gemini.
type LLMService struct {
	client *genai.Client
}

func NewLLMService(ctx context.Context, apiKey string) (*LLMService, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is empty")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create GenAI client")
	}

	return &LLMService{
		client: client,
	}, nil
}

func (s *LLMService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing GenAI client")
		} else {
			log.Debug().Msg("GenAI client closed")
		}
	}
}

func (s *LLMService) GenerateTitle(ctx context.Context, basis string) (string, error) {
	model := s.client.GenerativeModel(defaultTitleModelName)

	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(titleSystemInstruction)},
	}

	temp := float32(0.3)
	maxTokens := int32(20)

	model.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: &maxTokens,
		Temperature:     &temp,
	}

	prompt := fmt.Sprintf("Generate a very concise title (3-5 words maximum) for a conversation that starts with the question: \"%s\".", basis)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", errors.Wrap(err, "gemini title generation request failed")
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("LLM did not generate a title (empty response)")
	}

	var titleText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			titleText.WriteString(string(txt))
		}
	}

	if titleText.Len() == 0 {
		return "", errors.New("LLM generated an empty title string")
	}

	return strings.Trim(titleText.String(), "\"'\n\r\t ."), nil
}
