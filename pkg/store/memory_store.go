package store

import (
	"fmt"
	"sort"
	"sync"

	"notewise/pkg/domain"
)

// MemoryStore keeps everything in-process. It backs app and server tests and
// mirrors GormStore semantics, including cascade on note deletion.
type MemoryStore struct {
	mu        sync.RWMutex
	notes     map[string]domain.Note
	noteOrder []string
	summaries map[string][]domain.Summary      // noteID -> summaries, append order
	quizzes   map[string]domain.Quiz           // quizID -> quiz
	quizOrder map[string][]string              // noteID -> quiz IDs, append order
	questions map[string][]domain.QuizQuestion // quizID -> questions, generation order
	messages  map[string][]domain.ChatMessage  // noteID -> messages, append order
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		notes:     make(map[string]domain.Note),
		summaries: make(map[string][]domain.Summary),
		quizzes:   make(map[string]domain.Quiz),
		quizOrder: make(map[string][]string),
		questions: make(map[string][]domain.QuizQuestion),
		messages:  make(map[string][]domain.ChatMessage),
	}
}

func (m *MemoryStore) CreateNote(note domain.Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.notes[note.ID]; exists {
		return fmt.Errorf("note %s already exists", note.ID)
	}
	m.notes[note.ID] = note
	m.noteOrder = append(m.noteOrder, note.ID)
	return nil
}

func (m *MemoryStore) GetNote(id string) (domain.Note, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	note, ok := m.notes[id]
	return note, ok, nil
}

func (m *MemoryStore) ListNotesByOwner(ownerID string) ([]domain.Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	notes := make([]domain.Note, 0)
	for _, id := range m.noteOrder {
		if note, ok := m.notes[id]; ok && note.OwnerID == ownerID {
			notes = append(notes, note)
		}
	}
	sort.SliceStable(notes, func(i, j int) bool {
		return notes[i].CreatedAt.After(notes[j].CreatedAt)
	})
	return notes, nil
}

// DeleteNote removes a note and cascades its artifacts.
func (m *MemoryStore) DeleteNote(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.notes, id)
	delete(m.summaries, id)
	delete(m.messages, id)
	for _, quizID := range m.quizOrder[id] {
		delete(m.quizzes, quizID)
		delete(m.questions, quizID)
	}
	delete(m.quizOrder, id)
	filtered := m.noteOrder[:0]
	for _, item := range m.noteOrder {
		if item != id {
			filtered = append(filtered, item)
		}
	}
	m.noteOrder = filtered
	return nil
}

func (m *MemoryStore) CreateSummary(summary domain.Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries[summary.NoteID] = append(m.summaries[summary.NoteID], summary)
	return nil
}

func (m *MemoryStore) LatestSummaryByNote(noteID string) (domain.Summary, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := m.summaries[noteID]
	if len(items) == 0 {
		return domain.Summary{}, false, nil
	}
	latest := items[0]
	for _, item := range items[1:] {
		if !item.CreatedAt.Before(latest.CreatedAt) {
			latest = item
		}
	}
	return latest, true, nil
}

func (m *MemoryStore) CreateQuizWithQuestions(quiz domain.Quiz, questions []domain.QuizQuestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.quizzes[quiz.ID]; exists {
		return fmt.Errorf("quiz %s already exists", quiz.ID)
	}
	m.quizzes[quiz.ID] = quiz
	m.quizOrder[quiz.NoteID] = append(m.quizOrder[quiz.NoteID], quiz.ID)
	m.questions[quiz.ID] = append([]domain.QuizQuestion(nil), questions...)
	return nil
}

func (m *MemoryStore) GetQuiz(id string) (domain.Quiz, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	quiz, ok := m.quizzes[id]
	return quiz, ok, nil
}

func (m *MemoryStore) LatestQuizByNote(noteID string) (domain.Quiz, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.quizOrder[noteID]
	if len(ids) == 0 {
		return domain.Quiz{}, false, nil
	}
	latest := m.quizzes[ids[0]]
	for _, id := range ids[1:] {
		if quiz := m.quizzes[id]; !quiz.CreatedAt.Before(latest.CreatedAt) {
			latest = quiz
		}
	}
	return latest, true, nil
}

func (m *MemoryStore) ListQuestionsByQuiz(quizID string) ([]domain.QuizQuestion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.QuizQuestion(nil), m.questions[quizID]...), nil
}

func (m *MemoryStore) GradeQuiz(quizID string, score int, answers []GradedAnswer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	quiz, ok := m.quizzes[quizID]
	if !ok {
		return fmt.Errorf("quiz %s not found", quizID)
	}
	byID := make(map[string]GradedAnswer, len(answers))
	for _, answer := range answers {
		byID[answer.QuestionID] = answer
	}
	questions := m.questions[quizID]
	for i := range questions {
		if _, ok := byID[questions[i].ID]; !ok {
			return fmt.Errorf("question %s not graded", questions[i].ID)
		}
	}
	for i := range questions {
		answer := byID[questions[i].ID]
		userAnswer := answer.UserAnswer
		isCorrect := answer.IsCorrect
		questions[i].UserAnswer = &userAnswer
		questions[i].IsCorrect = &isCorrect
	}
	quiz.Score = &score
	m.quizzes[quizID] = quiz
	return nil
}

func (m *MemoryStore) AppendChatMessage(msg domain.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.NoteID] = append(m.messages[msg.NoteID], msg)
	return nil
}

func (m *MemoryStore) ListChatMessagesByNote(noteID string) ([]domain.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	messages := append([]domain.ChatMessage(nil), m.messages[noteID]...)
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	return messages, nil
}

func (m *MemoryStore) CountByOwner(ownerID string) (domain.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var stats domain.Stats
	for _, note := range m.notes {
		if note.OwnerID != ownerID {
			continue
		}
		stats.Notes++
		stats.Summaries += int64(len(m.summaries[note.ID]))
		stats.Quizzes += int64(len(m.quizOrder[note.ID]))
	}
	return stats, nil
}
