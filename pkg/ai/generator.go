package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// QuizQuestionCount is the number of questions every generated quiz must have.
	QuizQuestionCount = 5
	// QuizOptionCount is the number of options every question must have.
	QuizOptionCount = 4
)

const (
	summarySystemPrompt = "You are a study assistant. Summarize the provided study material into clear, concise notes that cover the key concepts, definitions, and takeaways."
	quizSystemPrompt    = "You are a quiz generator. Create 5 multiple choice questions based on the study material provided. Each question should have 4 options (A, B, C, D) with exactly one correct answer."
	chatSystemPrompt    = "You are a helpful study assistant. Answer the student's questions using only the study notes provided below. If the notes do not contain the answer, say so.\n\nStudy notes:\n\n"
)

var quizToolSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"questions": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"question": {"type": "string"},
					"options": {"type": "array", "items": {"type": "string"}, "minItems": 4, "maxItems": 4},
					"correct_answer": {"type": "string"}
				},
				"required": ["question", "options", "correct_answer"]
			},
			"minItems": 5,
			"maxItems": 5
		}
	},
	"required": ["questions"]
}`)

// QuizItem is one validated multiple-choice question from the backend.
type QuizItem struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
}

// Turn is one prior conversation message passed back for grounding.
type Turn struct {
	Role    string
	Content string
}

// Generator produces study artifacts from document text via the AI backend.
// It validates structured responses and classifies failures; persistence is
// always the caller's responsibility.
type Generator struct {
	client *Client
	model  string
}

// NewGenerator builds an artifact generator bound to one model.
func NewGenerator(client *Client, model string) *Generator {
	return &Generator{client: client, model: strings.TrimSpace(model)}
}

// Summary generates a free-text summary of the source text.
// No length cap is enforced here; presentation may truncate, generation never does.
func (g *Generator) Summary(ctx context.Context, sourceText string) (string, error) {
	resp, err := g.client.ChatCompletion(ctx, ChatRequest{
		Model: g.model,
		Messages: []Message{
			{Role: "system", Content: summarySystemPrompt},
			{Role: "user", Content: "Summarize these study notes:\n\n" + sourceText},
		},
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: empty summary", ErrBackendUnavailable)
	}
	return text, nil
}

// Quiz generates exactly QuizQuestionCount multiple-choice questions through a
// forced tool call and validates the shape before returning. A response with
// the wrong question or option count is rejected, never truncated or padded.
func (g *Generator) Quiz(ctx context.Context, sourceText string) ([]QuizItem, error) {
	choice := &ToolChoice{Type: "function"}
	choice.Function.Name = "create_quiz"
	resp, err := g.client.ChatCompletion(ctx, ChatRequest{
		Model: g.model,
		Messages: []Message{
			{Role: "system", Content: quizSystemPrompt},
			{Role: "user", Content: "Create 5 multiple choice questions from these notes:\n\n" + sourceText},
		},
		Tools: []Tool{{
			Type: "function",
			Function: ToolFunction{
				Name:        "create_quiz",
				Description: "Generate a quiz with multiple choice questions",
				Parameters:  quizToolSchema,
			},
		}},
		ToolChoice: choice,
	})
	if err != nil {
		return nil, err
	}
	calls := resp.Choices[0].Message.ToolCalls
	if len(calls) == 0 {
		return nil, fmt.Errorf("%w: no tool call in response", ErrInvalidArtifactShape)
	}
	var payload struct {
		Questions []QuizItem `json:"questions"`
	}
	if err := json.Unmarshal([]byte(calls[0].Function.Arguments), &payload); err != nil {
		return nil, fmt.Errorf("%w: decode tool arguments: %v", ErrInvalidArtifactShape, err)
	}
	if err := validateQuiz(payload.Questions); err != nil {
		return nil, err
	}
	return payload.Questions, nil
}

// Reply generates one assistant reply grounded in the full source text plus
// the prior transcript and the new user message.
func (g *Generator) Reply(ctx context.Context, sourceText string, history []Turn, userMessage string) (string, error) {
	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, Message{Role: "system", Content: chatSystemPrompt + sourceText})
	for _, turn := range history {
		messages = append(messages, Message{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, Message{Role: "user", Content: userMessage})

	resp, err := g.client.ChatCompletion(ctx, ChatRequest{Model: g.model, Messages: messages})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: empty reply", ErrBackendUnavailable)
	}
	return text, nil
}

func validateQuiz(items []QuizItem) error {
	if len(items) != QuizQuestionCount {
		return fmt.Errorf("%w: got %d questions, want %d", ErrInvalidArtifactShape, len(items), QuizQuestionCount)
	}
	for i, item := range items {
		if strings.TrimSpace(item.Question) == "" {
			return fmt.Errorf("%w: question %d is empty", ErrInvalidArtifactShape, i+1)
		}
		if len(item.Options) != QuizOptionCount {
			return fmt.Errorf("%w: question %d has %d options, want %d", ErrInvalidArtifactShape, i+1, len(item.Options), QuizOptionCount)
		}
		seen := make(map[string]bool, QuizOptionCount)
		found := false
		for _, option := range item.Options {
			if seen[option] {
				return fmt.Errorf("%w: question %d has duplicate option %q", ErrInvalidArtifactShape, i+1, option)
			}
			seen[option] = true
			if option == item.CorrectAnswer {
				found = true
			}
		}
		if !found {
			return fmt.Errorf("%w: question %d correct answer not among options", ErrInvalidArtifactShape, i+1)
		}
	}
	return nil
}
