package domain

import "time"

type SourceFormat string

const (
	FormatText SourceFormat = "text"
	FormatPDF  SourceFormat = "pdf"
)

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Note is an uploaded study document with its extracted text.
// Text is immutable after creation; deleting a note cascades its artifacts.
type Note struct {
	ID           string       `json:"id"`
	OwnerID      string       `json:"ownerId"`
	Title        string       `json:"title"`
	Text         string       `json:"text"`
	SourceFormat SourceFormat `json:"sourceFormat"`
	ByteSize     int64        `json:"byteSize"`
	StorageKey   string       `json:"-"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// Summary is an AI-generated summary of one note. Regeneration appends a new
// row; the latest by CreatedAt is the current one.
type Summary struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	NoteID    string    `json:"noteId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Quiz is one generated quiz instance. Score stays nil until the quiz is
// submitted, then is set exactly once.
type Quiz struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"ownerId"`
	NoteID         string    `json:"noteId"`
	Title          string    `json:"title"`
	TotalQuestions int       `json:"totalQuestions"`
	Score          *int      `json:"score,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// QuizQuestion is a multiple-choice question with four options.
// UserAnswer and IsCorrect are set together during grading.
type QuizQuestion struct {
	ID            string   `json:"id"`
	QuizID        string   `json:"quizId"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
	UserAnswer    *string  `json:"userAnswer,omitempty"`
	IsCorrect     *bool    `json:"isCorrect,omitempty"`
}

// ChatMessage is one turn of a note-grounded conversation. Messages are
// append-only; CreatedAt ordering defines conversation order.
type ChatMessage struct {
	ID        string      `json:"id"`
	OwnerID   string      `json:"ownerId"`
	NoteID    string      `json:"noteId"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Stats aggregates per-owner dashboard counters.
type Stats struct {
	Notes     int64 `json:"notes"`
	Summaries int64 `json:"summaries"`
	Quizzes   int64 `json:"quizzes"`
}
