package reading

import "errors"

var (
	ErrSessionNotFound  = errors.New("reading session not found")
	ErrNotAwaitingInput = errors.New("reading is not awaiting input")
	ErrAlreadyStarted   = errors.New("reading already started")
	ErrInvalidDrawMode  = errors.New("operation not allowed in this draw mode")
	ErrDrawComplete     = errors.New("already pulled requested number of cards")
	ErrReplyUnparseable = errors.New("model reply could not be parsed")
)

// User-facing messages.
const (
	msgIncomplete       = "Answer all questions and draw all cards before submitting"
	msgDuplicateCard    = "Cannot choose the same card more than once"
	msgReplyUnparseable = "Error generating your reading, please retry"
	msgGatewayExhausted = "The reader could not be reached, please retry"
	msgFlagged          = "Your message was flagged by moderation. Please rephrase it and try again"
)

// ValidationError describes a rejected submission.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ResultKind tags the outcome of a submission.
type ResultKind string

const (
	ResultCommitted        ResultKind = "committed"
	ResultValidationFailed ResultKind = "validation_failed"
	ResultFlagged          ResultKind = "flagged"
	ResultReplyUnparseable ResultKind = "reply_unparseable"
	ResultGatewayExhausted ResultKind = "gateway_exhausted"
)

// Result is the outcome of Submit. Every kind carries a view to render.
type Result struct {
	Kind    ResultKind `json:"kind"`
	Message string     `json:"message,omitempty"`
	View    View       `json:"view"`
}
