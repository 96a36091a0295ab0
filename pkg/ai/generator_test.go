package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func textCompletion(content string) string {
	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func toolCompletion(arguments string) string {
	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{
				"tool_calls": []map[string]any{
					{"function": map[string]any{"name": "create_quiz", "arguments": arguments}},
				},
			}},
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func validQuizArguments(count int) string {
	items := make([]QuizItem, 0, count)
	for i := 0; i < count; i++ {
		items = append(items, QuizItem{
			Question:      fmt.Sprintf("Question %d?", i+1),
			Options:       []string{"A", "B", "C", "D"},
			CorrectAnswer: "A",
		})
	}
	data, _ := json.Marshal(map[string]any{"questions": items})
	return string(data)
}

func newTestGenerator(t *testing.T, handler http.HandlerFunc) *Generator {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGenerator(NewClient(srv.URL+"/v1", "test-key"), "test-model")
}

func TestSummary(t *testing.T) {
	var gotReq ChatRequest
	gen := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		fmt.Fprint(w, textCompletion("  A short summary.  "))
	})

	summary, err := gen.Summary(context.Background(), "The sky is blue.")
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if summary != "A short summary." {
		t.Fatalf("Summary() = %q", summary)
	}
	if gotReq.Model != "test-model" {
		t.Errorf("model = %q", gotReq.Model)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
		t.Fatalf("messages = %+v", gotReq.Messages)
	}
	if !strings.Contains(gotReq.Messages[1].Content, "The sky is blue.") {
		t.Errorf("user prompt missing source text: %q", gotReq.Messages[1].Content)
	}
}

func TestQuiz(t *testing.T) {
	var gotReq ChatRequest
	gen := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		fmt.Fprint(w, toolCompletion(validQuizArguments(QuizQuestionCount)))
	})

	items, err := gen.Quiz(context.Background(), "source text")
	if err != nil {
		t.Fatalf("Quiz() error = %v", err)
	}
	if len(items) != QuizQuestionCount {
		t.Fatalf("got %d questions, want %d", len(items), QuizQuestionCount)
	}
	for _, item := range items {
		if len(item.Options) != QuizOptionCount {
			t.Fatalf("question %q has %d options", item.Question, len(item.Options))
		}
	}
	if len(gotReq.Tools) != 1 || gotReq.Tools[0].Function.Name != "create_quiz" {
		t.Errorf("tools = %+v", gotReq.Tools)
	}
	if gotReq.ToolChoice == nil || gotReq.ToolChoice.Function.Name != "create_quiz" {
		t.Errorf("tool choice = %+v", gotReq.ToolChoice)
	}
}

func TestQuizShapeViolations(t *testing.T) {
	badCorrect := validQuizArguments(QuizQuestionCount)
	badCorrect = strings.Replace(badCorrect, `"correct_answer":"A"`, `"correct_answer":"Z"`, 1)

	tests := []struct {
		name string
		body string
	}{
		{"too few questions", toolCompletion(validQuizArguments(3))},
		{"too many questions", toolCompletion(validQuizArguments(7))},
		{"correct answer not an option", toolCompletion(badCorrect)},
		{"no tool call", textCompletion("not structured")},
		{"malformed arguments", toolCompletion("{not json")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := newTestGenerator(t, func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, tt.body)
			})
			_, err := gen.Quiz(context.Background(), "source")
			if !errors.Is(err, ErrInvalidArtifactShape) {
				t.Fatalf("Quiz() error = %v, want ErrInvalidArtifactShape", err)
			}
		})
	}
}

func TestQuizDuplicateOptions(t *testing.T) {
	args := strings.Replace(validQuizArguments(QuizQuestionCount), `["A","B","C","D"]`, `["A","A","C","D"]`, 1)
	gen := newTestGenerator(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, toolCompletion(args))
	})
	_, err := gen.Quiz(context.Background(), "source")
	if !errors.Is(err, ErrInvalidArtifactShape) {
		t.Fatalf("Quiz() error = %v, want ErrInvalidArtifactShape", err)
	}
}

func TestFailureTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"rate limited", http.StatusTooManyRequests, ErrRateLimited},
		{"quota exceeded", http.StatusPaymentRequired, ErrQuotaExceeded},
		{"server error", http.StatusInternalServerError, ErrBackendUnavailable},
		{"bad gateway", http.StatusBadGateway, ErrBackendUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := newTestGenerator(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"error":{"message":"nope"}}`)
			})
			if _, err := gen.Summary(context.Background(), "text"); !errors.Is(err, tt.want) {
				t.Fatalf("Summary() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMalformedResponseBody(t *testing.T) {
	gen := newTestGenerator(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "{truncated")
	})
	if _, err := gen.Summary(context.Background(), "text"); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("Summary() error = %v, want ErrBackendUnavailable", err)
	}
}

func TestEmptyChoices(t *testing.T) {
	gen := newTestGenerator(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	})
	if _, err := gen.Summary(context.Background(), "text"); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("Summary() error = %v, want ErrBackendUnavailable", err)
	}
}

func TestReplyIncludesGroundingAndHistory(t *testing.T) {
	var gotReq ChatRequest
	gen := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		fmt.Fprint(w, textCompletion("It is blue."))
	})

	history := []Turn{
		{Role: "user", Content: "First question"},
		{Role: "assistant", Content: "First answer"},
	}
	reply, err := gen.Reply(context.Background(), "The sky is blue.", history, "What color is the sky?")
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if reply != "It is blue." {
		t.Fatalf("Reply() = %q", reply)
	}
	if len(gotReq.Messages) != 4 {
		t.Fatalf("got %d messages, want 4", len(gotReq.Messages))
	}
	if !strings.Contains(gotReq.Messages[0].Content, "The sky is blue.") {
		t.Errorf("system message missing note text")
	}
	if gotReq.Messages[1].Content != "First question" || gotReq.Messages[2].Content != "First answer" {
		t.Errorf("history not forwarded in order: %+v", gotReq.Messages)
	}
	if gotReq.Messages[3].Content != "What color is the sky?" {
		t.Errorf("last message = %q", gotReq.Messages[3].Content)
	}
}
