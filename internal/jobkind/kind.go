// Package jobkind defines the error-kind taxonomy shared by every pipeline
// stage and the scheduler's retry policy.
package jobkind

// Kind classifies a pipeline failure. The scheduler uses Retriable to decide
// between re-queueing and terminal failure; it never type-switches on the
// underlying error.
type Kind string

const (
	// Admission
	FeatureDisabled Kind = "FeatureDisabled"
	QueueFull       Kind = "QueueFull"
	BudgetExceeded  Kind = "BudgetExceeded"
	InvalidRequest  Kind = "InvalidRequest"

	// Source acquisition
	SourceUnavailable4xx Kind = "SourceUnavailable4xx"
	SourceTransient5xx   Kind = "SourceTransient5xx"
	SourceTimeout        Kind = "SourceTimeout"

	// Media processing
	MediaProcessingTransient Kind = "MediaProcessingTransient"
	MediaProcessingFatal     Kind = "MediaProcessingFatal"

	// Captions
	CaptionAuthFailure   Kind = "CaptionAuthFailure"
	CaptionTimeout       Kind = "CaptionTimeout"
	CaptionProviderError Kind = "CaptionProviderError"

	// Muxing/validation
	MuxFailed     Kind = "MuxFailed"
	OutputInvalid Kind = "OutputInvalid"

	// Notification (never fails the job)
	PushFailed       Kind = "PushFailed"
	ChatNotifyFailed Kind = "ChatNotifyFailed"

	// Timeout is the overall per-job wall-clock budget kind.
	Timeout Kind = "Timeout"

	// Unknown is the fallback kind for an unclassified error.
	Unknown Kind = "Unknown"
)

// Retriable reports whether the scheduler should re-queue a job that failed
// with this kind, subject to the job's retries/maxRetries counter.
func (k Kind) Retriable() bool {
	switch k {
	case SourceTransient5xx, SourceTimeout,
		MediaProcessingTransient,
		CaptionTimeout, CaptionProviderError:
		return true
	default:
		return false
	}
}

// CaptionKind reports whether this is a caption-pipeline failure, which per
// §4.3/§7 is always demoted to a warning after retries are exhausted rather
// than failing the job outright.
func (k Kind) CaptionKind() bool {
	switch k {
	case CaptionAuthFailure, CaptionTimeout, CaptionProviderError:
		return true
	default:
		return false
	}
}

// Error wraps an underlying error with a classified Kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the Kind from err if it (or something it wraps) is a
// *Error; otherwise returns Unknown.
func KindOf(err error) Kind {
	var ke *Error
	if asError(err, &ke) {
		return ke.Kind
	}
	return Unknown
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
