package app

import "errors"

var (
	// ErrNoteNotFound indicates the requested note does not exist.
	ErrNoteNotFound = errors.New("note not found")
	// ErrQuizNotFound indicates the requested quiz does not exist.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrForbidden indicates the note or quiz belongs to another user.
	ErrForbidden = errors.New("forbidden")
	// ErrUploadTooLarge indicates the upload exceeds the configured size cap.
	ErrUploadTooLarge = errors.New("upload too large")
	// ErrIncompleteQuiz indicates a submission missing answers for some questions.
	ErrIncompleteQuiz = errors.New("quiz submission incomplete")
	// ErrAlreadyGraded indicates a second submit on an already graded quiz.
	ErrAlreadyGraded = errors.New("quiz already graded")
	// ErrEmptyMessage indicates a chat message that is empty after trimming.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrOriginalUnavailable indicates no stored original exists for a note.
	ErrOriginalUnavailable = errors.New("original document unavailable")
)
