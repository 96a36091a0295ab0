package store

import "notewise/pkg/domain"

// GradedAnswer carries the grading outcome for one question, written together
// with the quiz score in a single transaction.
type GradedAnswer struct {
	QuestionID string
	UserAnswer string
	IsCorrect  bool
}

// Store defines persistence operations for notes and their derived artifacts.
// All reads scoped by owner or parent note order rows by creation time.
type Store interface {
	// notes
	CreateNote(note domain.Note) error
	GetNote(id string) (domain.Note, bool, error)
	ListNotesByOwner(ownerID string) ([]domain.Note, error)
	DeleteNote(id string) error

	// summaries
	CreateSummary(summary domain.Summary) error
	LatestSummaryByNote(noteID string) (domain.Summary, bool, error)

	// quizzes
	CreateQuizWithQuestions(quiz domain.Quiz, questions []domain.QuizQuestion) error
	GetQuiz(id string) (domain.Quiz, bool, error)
	LatestQuizByNote(noteID string) (domain.Quiz, bool, error)
	ListQuestionsByQuiz(quizID string) ([]domain.QuizQuestion, error)
	GradeQuiz(quizID string, score int, answers []GradedAnswer) error

	// chat messages
	AppendChatMessage(msg domain.ChatMessage) error
	ListChatMessagesByNote(noteID string) ([]domain.ChatMessage, error)

	// dashboard counters
	CountByOwner(ownerID string) (domain.Stats, error)
}

// SessionStore resolves bearer tokens to user IDs.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}
