package domain

import "errors"

// Error kinds. Every error returned by the session engine wraps exactly one of these.
var (
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
	ErrInvalidReference = errors.New("invalid reference")
	ErrInvalidState     = errors.New("invalid state")
	ErrUnauthenticated  = errors.New("unauthenticated")
)

// ErrSessionBusy is returned by stores that could not acquire a session lock in time.
// It carries no kind; callers may retry.
var ErrSessionBusy = errors.New("quiz session is locked by another writer")

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = newError(ErrNotFound, "quiz not found")
	// ErrQuestionNotFound indicates a question id does not exist in the catalog.
	ErrQuestionNotFound = newError(ErrNotFound, "question not found")
	// ErrAnswerNotFound indicates an answer id does not exist in the catalog.
	ErrAnswerNotFound = newError(ErrNotFound, "answer not found")
	// ErrSessionNotFound is returned when a quiz session does not exist.
	ErrSessionNotFound = newError(ErrNotFound, "quiz session not found")

	ErrNotSessionOwner = newError(ErrForbidden, "session belongs to another user")
	ErrNoIdentity      = newError(ErrUnauthenticated, "no authenticated user")

	// ErrQuestionNotInQuiz is returned when a question is not part of the session's quiz.
	ErrQuestionNotInQuiz = newError(ErrInvalidReference, "question does not belong to the session quiz")
	// ErrAnswerNotInQuestion is returned when the selected answer belongs to another question.
	ErrAnswerNotInQuestion = newError(ErrInvalidReference, "answer does not belong to the question")

	ErrSessionCompleted   = newError(ErrInvalidState, "quiz session already completed")
	ErrAlreadyAnswered    = newError(ErrInvalidState, "question already answered in this session")
	ErrQuizHasNoQuestions = newError(ErrInvalidState, "quiz has no questions")
)

type kindError struct {
	kind error
	msg  string
}

func newError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

// KindOf returns the kind sentinel wrapped by err, or nil for unclassified errors.
func KindOf(err error) error {
	for _, kind := range []error{ErrNotFound, ErrForbidden, ErrInvalidReference, ErrInvalidState, ErrUnauthenticated} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
