package bidding

import "errors"

// Validation errors, checked locally before anything is sent.
var (
	ErrInvalidConfiguration = errors.New("invalid auction configuration")
	ErrNotStarted           = errors.New("auction has not started yet")
	ErrAlreadyEnded         = errors.New("auction already ended")
	ErrInvalidAmount        = errors.New("invalid bid amount")
)

// ErrSubmissionFailed wraps every failure of the remote call.
var ErrSubmissionFailed = errors.New("bid failed")

// RejectedError is a bid the server refused. Message is the server's text, verbatim.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	return e.Message
}

// Unwrap lets callers match any server rejection with errors.Is(err, ErrSubmissionFailed).
func (e *RejectedError) Unwrap() error {
	return ErrSubmissionFailed
}

// UserMessage is the notification text shown for err. Only one message is ever
// shown per attempt, so the checks mirror the validation order.
func UserMessage(err error) string {
	var rejected *RejectedError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &rejected):
		return rejected.Message
	case errors.Is(err, ErrInvalidConfiguration):
		return "Invalid auction configuration"
	case errors.Is(err, ErrNotStarted):
		return "Auction has not started yet"
	case errors.Is(err, ErrAlreadyEnded):
		return "Auction already ended"
	case errors.Is(err, ErrInvalidAmount):
		return "Enter a valid bid amount"
	default:
		return "Bid Failed"
	}
}
