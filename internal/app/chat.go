package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"notewise/internal/util"
	"notewise/pkg/ai"
	"notewise/pkg/domain"
)

// SendMessage appends the user's message, asks the AI backend for a grounded
// reply over the note text plus the prior transcript, and appends the
// assistant turn. The user message is persisted before the backend call, so a
// failed generation still leaves it in the transcript.
func (a *App) SendMessage(ctx context.Context, ownerID, noteID, content string) (domain.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.ChatMessage{}, ErrEmptyMessage
	}
	note, err := a.getOwnedNote(ownerID, noteID)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	history, err := a.store.ListChatMessagesByNote(note.ID)
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("load transcript: %w", err)
	}

	userMsg := domain.ChatMessage{
		ID:        util.NewID(),
		OwnerID:   ownerID,
		NoteID:    note.ID,
		Role:      domain.RoleUser,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.AppendChatMessage(userMsg); err != nil {
		return domain.ChatMessage{}, fmt.Errorf("save message: %w", err)
	}

	turns := make([]ai.Turn, 0, len(history))
	for _, msg := range history {
		turns = append(turns, ai.Turn{Role: string(msg.Role), Content: msg.Content})
	}
	replyText, err := a.generator.Reply(ctx, note.Text, turns, content)
	if err != nil {
		return domain.ChatMessage{}, err
	}

	reply := domain.ChatMessage{
		ID:        util.NewID(),
		OwnerID:   ownerID,
		NoteID:    note.ID,
		Role:      domain.RoleAssistant,
		Content:   replyText,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.AppendChatMessage(reply); err != nil {
		return domain.ChatMessage{}, fmt.Errorf("save reply: %w", err)
	}
	return reply, nil
}

// History returns the note's transcript in conversation order.
func (a *App) History(ctx context.Context, ownerID, noteID string) ([]domain.ChatMessage, error) {
	note, err := a.getOwnedNote(ownerID, noteID)
	if err != nil {
		return nil, err
	}
	return a.store.ListChatMessagesByNote(note.ID)
}
