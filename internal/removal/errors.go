package removal

import "errors"

type Kind int

const (
	KindInvalidImage Kind = iota + 1
	KindProcessingFailed
	KindUnexpectedOutput
)

func (k Kind) String() string {
	switch k {
	case KindInvalidImage:
		return "invalid_image"
	case KindProcessingFailed:
		return "processing_failed"
	case KindUnexpectedOutput:
		return "unexpected_output"
	default:
		return "unknown"
	}
}

// Error is the only error Remover.Remove returns.
type Error struct {
	Kind    Kind
	Message string
	// Err is kept only for invalid images; processing failures keep the
	// cause's text in Detail instead.
	Err    error
	Detail string
}

func (e *Error) Error() string {
	cause := e.Detail
	if e.Err != nil {
		cause = e.Err.Error()
	}
	if cause == "" {
		return e.Message
	}
	return e.Message + ": " + cause
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the removal error kind of err, or 0 when err is not one.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return 0
}

func invalidImage(err error) *Error {
	return &Error{Kind: KindInvalidImage, Message: "invalid image data", Err: err}
}

func processingFailed(err error) *Error {
	return &Error{Kind: KindProcessingFailed, Message: "failed to remove background", Detail: err.Error()}
}

func unexpectedOutput(detail string) *Error {
	return &Error{Kind: KindUnexpectedOutput, Message: "unexpected output format from inference engine", Detail: detail}
}
