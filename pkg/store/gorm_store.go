package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"notewise/pkg/domain"
)

const migrateLockID int64 = 61945172

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations under an advisory lock.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(
			&NoteModel{},
			&SummaryModel{},
			&QuizModel{},
			&QuizQuestionModel{},
			&ChatMessageModel{},
		); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return ensureCascades(tx)
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// ensureCascades adds ON DELETE CASCADE foreign keys so deleting a note
// removes its summaries, quizzes, questions and chat messages in the database.
func ensureCascades(tx *gorm.DB) error {
	type fk struct {
		table, name, column, refTable string
	}
	fks := []fk{
		{"summary_models", "summary_models_note_id_fkey", "note_id", "note_models"},
		{"quiz_models", "quiz_models_note_id_fkey", "note_id", "note_models"},
		{"quiz_question_models", "quiz_question_models_quiz_id_fkey", "quiz_id", "quiz_models"},
		{"chat_message_models", "chat_message_models_note_id_fkey", "note_id", "note_models"},
	}
	for _, f := range fks {
		stmt := fmt.Sprintf(`
			DO $$
			BEGIN
				DELETE FROM %[1]s c
				WHERE NOT EXISTS (SELECT 1 FROM %[4]s p WHERE p.id = c.%[3]s);
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = '%[1]s'
					AND constraint_name = '%[2]s'
				) THEN
					ALTER TABLE %[1]s
					ADD CONSTRAINT %[2]s
					FOREIGN KEY (%[3]s) REFERENCES %[4]s(id) ON DELETE CASCADE;
				END IF;
			END $$;
		`, f.table, f.name, f.column, f.refTable)
		if err := tx.Exec(stmt).Error; err != nil {
			return fmt.Errorf("ensure %s cascade: %w", f.table, err)
		}
	}
	return nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// CreateNote inserts an uploaded note.
func (s *GormStore) CreateNote(note domain.Note) error {
	return s.db.Create(noteToModel(note)).Error
}

// GetNote retrieves a note by ID.
func (s *GormStore) GetNote(id string) (domain.Note, bool, error) {
	var model NoteModel
	err := s.db.First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Note{}, false, nil
	}
	if err != nil {
		return domain.Note{}, false, err
	}
	return noteFromModel(model), true, nil
}

// ListNotesByOwner returns the owner's notes, newest first.
func (s *GormStore) ListNotesByOwner(ownerID string) ([]domain.Note, error) {
	var models []NoteModel
	if err := s.db.Where("owner_id = ?", ownerID).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	notes := make([]domain.Note, 0, len(models))
	for _, model := range models {
		notes = append(notes, noteFromModel(model))
	}
	return notes, nil
}

// DeleteNote removes a note; foreign keys cascade its artifacts.
func (s *GormStore) DeleteNote(id string) error {
	return s.db.Delete(&NoteModel{}, "id = ?", id).Error
}

// CreateSummary appends a new summary row.
func (s *GormStore) CreateSummary(summary domain.Summary) error {
	return s.db.Create(&SummaryModel{
		ID:        summary.ID,
		OwnerID:   summary.OwnerID,
		NoteID:    summary.NoteID,
		Text:      summary.Text,
		CreatedAt: summary.CreatedAt,
	}).Error
}

// LatestSummaryByNote returns the newest summary for a note.
func (s *GormStore) LatestSummaryByNote(noteID string) (domain.Summary, bool, error) {
	var model SummaryModel
	err := s.db.Where("note_id = ?", noteID).Order("created_at DESC").Limit(1).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Summary{}, false, nil
	}
	if err != nil {
		return domain.Summary{}, false, err
	}
	return domain.Summary{
		ID:        model.ID,
		OwnerID:   model.OwnerID,
		NoteID:    model.NoteID,
		Text:      model.Text,
		CreatedAt: model.CreatedAt,
	}, true, nil
}

// CreateQuizWithQuestions inserts a quiz and all its questions as one
// transaction; a partial failure creates nothing.
func (s *GormStore) CreateQuizWithQuestions(quiz domain.Quiz, questions []domain.QuizQuestion) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(quizToModel(quiz)).Error; err != nil {
			return fmt.Errorf("create quiz: %w", err)
		}
		for i, question := range questions {
			model, err := questionToModel(question, i)
			if err != nil {
				return err
			}
			if err := tx.Create(model).Error; err != nil {
				return fmt.Errorf("create question: %w", err)
			}
		}
		return nil
	})
}

// GetQuiz retrieves a quiz by ID.
func (s *GormStore) GetQuiz(id string) (domain.Quiz, bool, error) {
	var model QuizModel
	err := s.db.First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Quiz{}, false, nil
	}
	if err != nil {
		return domain.Quiz{}, false, err
	}
	return quizFromModel(model), true, nil
}

// LatestQuizByNote returns the newest quiz for a note.
func (s *GormStore) LatestQuizByNote(noteID string) (domain.Quiz, bool, error) {
	var model QuizModel
	err := s.db.Where("note_id = ?", noteID).Order("created_at DESC").Limit(1).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Quiz{}, false, nil
	}
	if err != nil {
		return domain.Quiz{}, false, err
	}
	return quizFromModel(model), true, nil
}

// ListQuestionsByQuiz returns a quiz's questions in creation order.
func (s *GormStore) ListQuestionsByQuiz(quizID string) ([]domain.QuizQuestion, error) {
	var models []QuizQuestionModel
	if err := s.db.Where("quiz_id = ?", quizID).Order("position ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	questions := make([]domain.QuizQuestion, 0, len(models))
	for _, model := range models {
		question, err := questionFromModel(model)
		if err != nil {
			return nil, err
		}
		questions = append(questions, question)
	}
	return questions, nil
}

// GradeQuiz writes every question's answer and the quiz score in one
// transaction so graded questions and the score never observably diverge.
func (s *GormStore) GradeQuiz(quizID string, score int, answers []GradedAnswer) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, answer := range answers {
			res := tx.Model(&QuizQuestionModel{}).
				Where("id = ? AND quiz_id = ?", answer.QuestionID, quizID).
				Updates(map[string]any{
					"user_answer": answer.UserAnswer,
					"is_correct":  answer.IsCorrect,
				})
			if res.Error != nil {
				return fmt.Errorf("grade question: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("grade question: %s not found", answer.QuestionID)
			}
		}
		if err := tx.Model(&QuizModel{}).Where("id = ?", quizID).Update("score", score).Error; err != nil {
			return fmt.Errorf("set quiz score: %w", err)
		}
		return nil
	})
}

// AppendChatMessage records one conversation turn.
func (s *GormStore) AppendChatMessage(msg domain.ChatMessage) error {
	return s.db.Create(&ChatMessageModel{
		ID:        msg.ID,
		OwnerID:   msg.OwnerID,
		NoteID:    msg.NoteID,
		Role:      string(msg.Role),
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}).Error
}

// ListChatMessagesByNote returns a note's messages oldest first.
func (s *GormStore) ListChatMessagesByNote(noteID string) ([]domain.ChatMessage, error) {
	var models []ChatMessageModel
	if err := s.db.Where("note_id = ?", noteID).Order("created_at ASC, id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	messages := make([]domain.ChatMessage, 0, len(models))
	for _, model := range models {
		messages = append(messages, domain.ChatMessage{
			ID:        model.ID,
			OwnerID:   model.OwnerID,
			NoteID:    model.NoteID,
			Role:      domain.MessageRole(model.Role),
			Content:   model.Content,
			CreatedAt: model.CreatedAt,
		})
	}
	return messages, nil
}

// CountByOwner returns per-owner dashboard counters.
func (s *GormStore) CountByOwner(ownerID string) (domain.Stats, error) {
	var stats domain.Stats
	if err := s.db.Model(&NoteModel{}).Where("owner_id = ?", ownerID).Count(&stats.Notes).Error; err != nil {
		return domain.Stats{}, err
	}
	if err := s.db.Model(&SummaryModel{}).Where("owner_id = ?", ownerID).Count(&stats.Summaries).Error; err != nil {
		return domain.Stats{}, err
	}
	if err := s.db.Model(&QuizModel{}).Where("owner_id = ?", ownerID).Count(&stats.Quizzes).Error; err != nil {
		return domain.Stats{}, err
	}
	return stats, nil
}

func noteToModel(n domain.Note) *NoteModel {
	return &NoteModel{
		ID:           n.ID,
		OwnerID:      n.OwnerID,
		Title:        n.Title,
		Text:         n.Text,
		SourceFormat: string(n.SourceFormat),
		ByteSize:     n.ByteSize,
		StorageKey:   n.StorageKey,
		CreatedAt:    n.CreatedAt,
	}
}

func noteFromModel(m NoteModel) domain.Note {
	return domain.Note{
		ID:           m.ID,
		OwnerID:      m.OwnerID,
		Title:        m.Title,
		Text:         m.Text,
		SourceFormat: domain.SourceFormat(m.SourceFormat),
		ByteSize:     m.ByteSize,
		StorageKey:   m.StorageKey,
		CreatedAt:    m.CreatedAt,
	}
}

func quizToModel(q domain.Quiz) *QuizModel {
	return &QuizModel{
		ID:             q.ID,
		OwnerID:        q.OwnerID,
		NoteID:         q.NoteID,
		Title:          q.Title,
		TotalQuestions: q.TotalQuestions,
		Score:          q.Score,
		CreatedAt:      q.CreatedAt,
	}
}

func quizFromModel(m QuizModel) domain.Quiz {
	return domain.Quiz{
		ID:             m.ID,
		OwnerID:        m.OwnerID,
		NoteID:         m.NoteID,
		Title:          m.Title,
		TotalQuestions: m.TotalQuestions,
		Score:          m.Score,
		CreatedAt:      m.CreatedAt,
	}
}

func questionToModel(q domain.QuizQuestion, position int) (*QuizQuestionModel, error) {
	options, err := json.Marshal(q.Options)
	if err != nil {
		return nil, fmt.Errorf("encode options: %w", err)
	}
	return &QuizQuestionModel{
		ID:            q.ID,
		QuizID:        q.QuizID,
		Position:      position,
		Question:      q.Question,
		Options:       options,
		CorrectAnswer: q.CorrectAnswer,
		UserAnswer:    q.UserAnswer,
		IsCorrect:     q.IsCorrect,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

func questionFromModel(m QuizQuestionModel) (domain.QuizQuestion, error) {
	var options []string
	if err := json.Unmarshal(m.Options, &options); err != nil {
		return domain.QuizQuestion{}, fmt.Errorf("decode options: %w", err)
	}
	return domain.QuizQuestion{
		ID:            m.ID,
		QuizID:        m.QuizID,
		Question:      m.Question,
		Options:       options,
		CorrectAnswer: m.CorrectAnswer,
		UserAnswer:    m.UserAnswer,
		IsCorrect:     m.IsCorrect,
	}, nil
}
