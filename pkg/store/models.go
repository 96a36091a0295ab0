package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type NoteModel struct {
	ID           string `gorm:"primaryKey"`
	OwnerID      string `gorm:"not null;index"`
	Title        string `gorm:"not null"`
	Text         string `gorm:"type:text;not null"`
	SourceFormat string `gorm:"not null"`
	ByteSize     int64  `gorm:"not null"`
	StorageKey   string
	CreatedAt    time.Time `gorm:"not null;index"`
}

type SummaryModel struct {
	ID        string    `gorm:"primaryKey"`
	OwnerID   string    `gorm:"not null;index"`
	NoteID    string    `gorm:"not null;index"`
	Text      string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;index"`
}

type QuizModel struct {
	ID             string `gorm:"primaryKey"`
	OwnerID        string `gorm:"not null;index"`
	NoteID         string `gorm:"not null;index"`
	Title          string `gorm:"not null"`
	TotalQuestions int    `gorm:"not null"`
	Score          *int
	CreatedAt      time.Time `gorm:"not null;index"`
}

type QuizQuestionModel struct {
	ID            string         `gorm:"primaryKey"`
	QuizID        string         `gorm:"not null;index"`
	Position      int            `gorm:"not null"`
	Question      string         `gorm:"type:text;not null"`
	Options       datatypes.JSON `gorm:"type:jsonb;not null"`
	CorrectAnswer string         `gorm:"not null"`
	UserAnswer    *string
	IsCorrect     *bool
	CreatedAt     time.Time `gorm:"not null"`
}

type ChatMessageModel struct {
	ID        string    `gorm:"primaryKey"`
	OwnerID   string    `gorm:"not null;index"`
	NoteID    string    `gorm:"not null;index"`
	Role      string    `gorm:"not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;index"`
}
