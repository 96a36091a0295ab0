package app

import (
	"context"
	"fmt"
	"time"

	"notewise/internal/util"
	"notewise/pkg/domain"
	"notewise/pkg/store"
)

// GenerateQuiz produces a fresh quiz for the note and persists the quiz with
// its questions atomically. A generation or validation failure leaves no rows
// behind.
func (a *App) GenerateQuiz(ctx context.Context, ownerID, noteID string) (domain.Quiz, []domain.QuizQuestion, error) {
	note, err := a.getOwnedNote(ownerID, noteID)
	if err != nil {
		return domain.Quiz{}, nil, err
	}
	items, err := a.generator.Quiz(ctx, note.Text)
	if err != nil {
		return domain.Quiz{}, nil, err
	}

	now := time.Now().UTC()
	quiz := domain.Quiz{
		ID:             util.NewID(),
		OwnerID:        ownerID,
		NoteID:         note.ID,
		Title:          "Quiz - " + now.Format("Jan 2, 2006"),
		TotalQuestions: len(items),
		CreatedAt:      now,
	}
	questions := make([]domain.QuizQuestion, 0, len(items))
	for _, item := range items {
		questions = append(questions, domain.QuizQuestion{
			ID:            util.NewID(),
			QuizID:        quiz.ID,
			Question:      item.Question,
			Options:       item.Options,
			CorrectAnswer: item.CorrectAnswer,
		})
	}
	if err := a.store.CreateQuizWithQuestions(quiz, questions); err != nil {
		return domain.Quiz{}, nil, fmt.Errorf("save quiz: %w", err)
	}
	return quiz, questions, nil
}

// LatestQuiz returns the most recent quiz for a note with its questions.
func (a *App) LatestQuiz(ctx context.Context, ownerID, noteID string) (domain.Quiz, []domain.QuizQuestion, bool, error) {
	note, err := a.getOwnedNote(ownerID, noteID)
	if err != nil {
		return domain.Quiz{}, nil, false, err
	}
	quiz, ok, err := a.store.LatestQuizByNote(note.ID)
	if err != nil {
		return domain.Quiz{}, nil, false, fmt.Errorf("load quiz: %w", err)
	}
	if !ok {
		return domain.Quiz{}, nil, false, nil
	}
	questions, err := a.store.ListQuestionsByQuiz(quiz.ID)
	if err != nil {
		return domain.Quiz{}, nil, false, fmt.Errorf("load questions: %w", err)
	}
	return quiz, questions, true, nil
}

// SubmitQuiz grades a complete set of answers exactly once. Answers must cover
// every question of the quiz; grading compares answer strings to the stored
// correct option verbatim. The score and per-question outcomes are written in
// one transaction, and a second submit is rejected.
func (a *App) SubmitQuiz(ctx context.Context, ownerID, quizID string, answers map[string]string) (domain.Quiz, []domain.QuizQuestion, error) {
	quiz, ok, err := a.store.GetQuiz(quizID)
	if err != nil {
		return domain.Quiz{}, nil, fmt.Errorf("load quiz: %w", err)
	}
	if !ok {
		return domain.Quiz{}, nil, ErrQuizNotFound
	}
	if quiz.OwnerID != ownerID {
		return domain.Quiz{}, nil, ErrForbidden
	}
	if quiz.Score != nil {
		return domain.Quiz{}, nil, ErrAlreadyGraded
	}
	questions, err := a.store.ListQuestionsByQuiz(quiz.ID)
	if err != nil {
		return domain.Quiz{}, nil, fmt.Errorf("load questions: %w", err)
	}

	score := 0
	graded := make([]store.GradedAnswer, 0, len(questions))
	for _, q := range questions {
		answer, ok := answers[q.ID]
		if !ok {
			return domain.Quiz{}, nil, ErrIncompleteQuiz
		}
		correct := answer == q.CorrectAnswer
		if correct {
			score++
		}
		graded = append(graded, store.GradedAnswer{
			QuestionID: q.ID,
			UserAnswer: answer,
			IsCorrect:  correct,
		})
	}
	if err := a.store.GradeQuiz(quiz.ID, score, graded); err != nil {
		return domain.Quiz{}, nil, fmt.Errorf("grade quiz: %w", err)
	}

	quiz.Score = &score
	for i := range questions {
		answer := graded[i].UserAnswer
		correct := graded[i].IsCorrect
		questions[i].UserAnswer = &answer
		questions[i].IsCorrect = &correct
	}
	return quiz, questions, nil
}
