package app

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"notewise/pkg/ai"
	"notewise/pkg/domain"
	"notewise/pkg/extract"
	"notewise/pkg/store"
)

type fakeGenerator struct {
	summaryText string
	summaryErr  error
	quizItems   []ai.QuizItem
	quizErr     error
	replyText   string
	replyErr    error
	lastHistory []ai.Turn
}

func (f *fakeGenerator) Summary(ctx context.Context, sourceText string) (string, error) {
	if f.summaryErr != nil {
		return "", f.summaryErr
	}
	return f.summaryText, nil
}

func (f *fakeGenerator) Quiz(ctx context.Context, sourceText string) ([]ai.QuizItem, error) {
	if f.quizErr != nil {
		return nil, f.quizErr
	}
	return f.quizItems, nil
}

func (f *fakeGenerator) Reply(ctx context.Context, sourceText string, history []ai.Turn, userMessage string) (string, error) {
	f.lastHistory = history
	if f.replyErr != nil {
		return "", f.replyErr
	}
	return f.replyText, nil
}

func fiveQuizItems() []ai.QuizItem {
	items := make([]ai.QuizItem, 5)
	for i := range items {
		items[i] = ai.QuizItem{
			Question:      fmt.Sprintf("Question %d?", i+1),
			Options:       []string{"A", "B", "C", "D"},
			CorrectAnswer: "A",
		}
	}
	return items
}

func newTestApp(t *testing.T, gen ArtifactGenerator) (*App, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	a, err := New(Config{Store: mem, Generator: gen})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a, mem
}

func uploadTestNote(t *testing.T, a *App, ownerID string) domain.Note {
	t.Helper()
	note, err := a.UploadNote(context.Background(), ownerID, "sky.txt", []byte("The sky is blue."))
	if err != nil {
		t.Fatalf("UploadNote() error = %v", err)
	}
	return note
}

func TestUploadNote(t *testing.T) {
	a, _ := newTestApp(t, &fakeGenerator{})
	note := uploadTestNote(t, a, "user-1")

	if note.Title != "sky" {
		t.Errorf("Title = %q, want %q", note.Title, "sky")
	}
	if note.Text != "The sky is blue." {
		t.Errorf("Text = %q", note.Text)
	}
	if note.SourceFormat != domain.FormatText {
		t.Errorf("SourceFormat = %q", note.SourceFormat)
	}
	if note.ByteSize != int64(len("The sky is blue.")) {
		t.Errorf("ByteSize = %d", note.ByteSize)
	}

	notes, err := a.ListNotes(context.Background(), "user-1")
	if err != nil || len(notes) != 1 {
		t.Fatalf("ListNotes() = %v, %v, want 1 note", notes, err)
	}
}

func TestUploadNoteRejectsUnknownExtension(t *testing.T) {
	a, _ := newTestApp(t, &fakeGenerator{})
	_, err := a.UploadNote(context.Background(), "user-1", "slides.pptx", []byte("x"))
	if !errors.Is(err, extract.ErrUnsupportedFormat) {
		t.Fatalf("error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestUploadNoteRejectsOversized(t *testing.T) {
	mem := store.NewMemoryStore()
	a, err := New(Config{Store: mem, Generator: &fakeGenerator{}, MaxUploadBytes: 8})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = a.UploadNote(context.Background(), "user-1", "big.txt", []byte("way past the cap"))
	if !errors.Is(err, ErrUploadTooLarge) {
		t.Fatalf("error = %v, want ErrUploadTooLarge", err)
	}
}

func TestGetNoteOwnership(t *testing.T) {
	a, _ := newTestApp(t, &fakeGenerator{})
	note := uploadTestNote(t, a, "user-1")

	if _, err := a.GetNote(context.Background(), "user-2", note.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("error = %v, want ErrForbidden", err)
	}
	if _, err := a.GetNote(context.Background(), "user-1", "missing"); !errors.Is(err, ErrNoteNotFound) {
		t.Fatalf("error = %v, want ErrNoteNotFound", err)
	}
}

func TestDeleteNoteCascades(t *testing.T) {
	gen := &fakeGenerator{summaryText: "summary", quizItems: fiveQuizItems()}
	a, _ := newTestApp(t, gen)
	note := uploadTestNote(t, a, "user-1")

	if _, err := a.GenerateSummary(context.Background(), "user-1", note.ID); err != nil {
		t.Fatalf("GenerateSummary() error = %v", err)
	}
	quiz, _, err := a.GenerateQuiz(context.Background(), "user-1", note.ID)
	if err != nil {
		t.Fatalf("GenerateQuiz() error = %v", err)
	}

	if err := a.DeleteNote(context.Background(), "user-1", note.ID); err != nil {
		t.Fatalf("DeleteNote() error = %v", err)
	}
	if _, err := a.GetNote(context.Background(), "user-1", note.ID); !errors.Is(err, ErrNoteNotFound) {
		t.Fatalf("note survived delete: %v", err)
	}
	if _, _, err := a.SubmitQuiz(context.Background(), "user-1", quiz.ID, nil); !errors.Is(err, ErrQuizNotFound) {
		t.Fatalf("quiz survived delete: %v", err)
	}
}

func TestGenerateSummaryRegenerates(t *testing.T) {
	gen := &fakeGenerator{summaryText: "first"}
	a, _ := newTestApp(t, gen)
	note := uploadTestNote(t, a, "user-1")

	if _, err := a.GenerateSummary(context.Background(), "user-1", note.ID); err != nil {
		t.Fatalf("GenerateSummary() error = %v", err)
	}
	gen.summaryText = "second"
	if _, err := a.GenerateSummary(context.Background(), "user-1", note.ID); err != nil {
		t.Fatalf("GenerateSummary() error = %v", err)
	}

	latest, ok, err := a.LatestSummary(context.Background(), "user-1", note.ID)
	if err != nil || !ok {
		t.Fatalf("LatestSummary() = %v, %v", ok, err)
	}
	if latest.Text != "second" {
		t.Errorf("latest summary = %q, want %q", latest.Text, "second")
	}
}

func TestGenerateQuizFailureLeavesNoRows(t *testing.T) {
	gen := &fakeGenerator{quizErr: ai.ErrRateLimited}
	a, _ := newTestApp(t, gen)
	note := uploadTestNote(t, a, "user-1")

	if _, _, err := a.GenerateQuiz(context.Background(), "user-1", note.ID); !errors.Is(err, ai.ErrRateLimited) {
		t.Fatalf("error = %v, want ErrRateLimited", err)
	}
	if _, _, ok, err := a.LatestQuiz(context.Background(), "user-1", note.ID); err != nil || ok {
		t.Fatalf("LatestQuiz() = %v, %v, want no quiz", ok, err)
	}
}

func TestSubmitQuizScores(t *testing.T) {
	items := fiveQuizItems()
	items[2].CorrectAnswer = "C"
	gen := &fakeGenerator{quizItems: items}
	a, _ := newTestApp(t, gen)
	note := uploadTestNote(t, a, "user-1")

	quiz, questions, err := a.GenerateQuiz(context.Background(), "user-1", note.ID)
	if err != nil {
		t.Fatalf("GenerateQuiz() error = %v", err)
	}
	answers := make(map[string]string, len(questions))
	for _, q := range questions {
		answers[q.ID] = "A"
	}

	graded, gradedQuestions, err := a.SubmitQuiz(context.Background(), "user-1", quiz.ID, answers)
	if err != nil {
		t.Fatalf("SubmitQuiz() error = %v", err)
	}
	if graded.Score == nil || *graded.Score != 4 {
		t.Fatalf("score = %v, want 4", graded.Score)
	}
	for i, q := range gradedQuestions {
		if q.UserAnswer == nil || *q.UserAnswer != "A" {
			t.Errorf("question %d UserAnswer = %v", i, q.UserAnswer)
		}
		wantCorrect := q.CorrectAnswer == "A"
		if q.IsCorrect == nil || *q.IsCorrect != wantCorrect {
			t.Errorf("question %d IsCorrect = %v, want %v", i, q.IsCorrect, wantCorrect)
		}
	}
}

func TestSubmitQuizRejectsSecondSubmit(t *testing.T) {
	gen := &fakeGenerator{quizItems: fiveQuizItems()}
	a, _ := newTestApp(t, gen)
	note := uploadTestNote(t, a, "user-1")

	quiz, questions, err := a.GenerateQuiz(context.Background(), "user-1", note.ID)
	if err != nil {
		t.Fatalf("GenerateQuiz() error = %v", err)
	}
	answers := make(map[string]string, len(questions))
	for _, q := range questions {
		answers[q.ID] = "B"
	}
	if _, _, err := a.SubmitQuiz(context.Background(), "user-1", quiz.ID, answers); err != nil {
		t.Fatalf("first submit error = %v", err)
	}
	if _, _, err := a.SubmitQuiz(context.Background(), "user-1", quiz.ID, answers); !errors.Is(err, ErrAlreadyGraded) {
		t.Fatalf("second submit error = %v, want ErrAlreadyGraded", err)
	}
}

func TestSubmitQuizRejectsIncomplete(t *testing.T) {
	gen := &fakeGenerator{quizItems: fiveQuizItems()}
	a, _ := newTestApp(t, gen)
	note := uploadTestNote(t, a, "user-1")

	quiz, questions, err := a.GenerateQuiz(context.Background(), "user-1", note.ID)
	if err != nil {
		t.Fatalf("GenerateQuiz() error = %v", err)
	}
	answers := map[string]string{questions[0].ID: "A"}
	if _, _, err := a.SubmitQuiz(context.Background(), "user-1", quiz.ID, answers); !errors.Is(err, ErrIncompleteQuiz) {
		t.Fatalf("error = %v, want ErrIncompleteQuiz", err)
	}

	// A rejected submit must leave the quiz gradable.
	full := make(map[string]string, len(questions))
	for _, q := range questions {
		full[q.ID] = "A"
	}
	if _, _, err := a.SubmitQuiz(context.Background(), "user-1", quiz.ID, full); err != nil {
		t.Fatalf("submit after incomplete attempt error = %v", err)
	}
}

func TestSendMessageAppendsBothTurns(t *testing.T) {
	gen := &fakeGenerator{replyText: "It is blue."}
	a, _ := newTestApp(t, gen)
	note := uploadTestNote(t, a, "user-1")

	reply, err := a.SendMessage(context.Background(), "user-1", note.ID, "What color is the sky?")
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if reply.Role != domain.RoleAssistant || reply.Content != "It is blue." {
		t.Fatalf("reply = %+v", reply)
	}

	history, err := a.History(context.Background(), "user-1", note.ID)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Role != domain.RoleUser || history[1].Role != domain.RoleAssistant {
		t.Fatalf("history roles = %s, %s", history[0].Role, history[1].Role)
	}

	// The second turn must see the first exchange as grounding history.
	if _, err := a.SendMessage(context.Background(), "user-1", note.ID, "Why?"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if len(gen.lastHistory) != 2 {
		t.Fatalf("generator history length = %d, want 2", len(gen.lastHistory))
	}
}

func TestSendMessageRejectsEmpty(t *testing.T) {
	a, _ := newTestApp(t, &fakeGenerator{})
	note := uploadTestNote(t, a, "user-1")
	if _, err := a.SendMessage(context.Background(), "user-1", note.ID, "   \n\t"); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("error = %v, want ErrEmptyMessage", err)
	}
}

func TestSendMessageKeepsUserTurnOnBackendFailure(t *testing.T) {
	gen := &fakeGenerator{replyErr: ai.ErrBackendUnavailable}
	a, _ := newTestApp(t, gen)
	note := uploadTestNote(t, a, "user-1")

	if _, err := a.SendMessage(context.Background(), "user-1", note.ID, "Hello?"); !errors.Is(err, ai.ErrBackendUnavailable) {
		t.Fatalf("error = %v, want ErrBackendUnavailable", err)
	}
	history, err := a.History(context.Background(), "user-1", note.ID)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 || history[0].Role != domain.RoleUser {
		t.Fatalf("history = %+v, want the user turn alone", history)
	}
}

func TestStats(t *testing.T) {
	gen := &fakeGenerator{summaryText: "s", quizItems: fiveQuizItems()}
	a, _ := newTestApp(t, gen)
	note := uploadTestNote(t, a, "user-1")
	uploadTestNote(t, a, "user-2")

	if _, err := a.GenerateSummary(context.Background(), "user-1", note.ID); err != nil {
		t.Fatalf("GenerateSummary() error = %v", err)
	}
	if _, _, err := a.GenerateQuiz(context.Background(), "user-1", note.ID); err != nil {
		t.Fatalf("GenerateQuiz() error = %v", err)
	}

	stats, err := a.Stats(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	want := domain.Stats{Notes: 1, Summaries: 1, Quizzes: 1}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}
}
