package media

import "errors"

// Error kinds. Every failure inside the pipeline wraps exactly one of these so
// callers can branch with errors.Is.
var (
	ErrNetwork             = errors.New("network error")
	ErrParse               = errors.New("unexpected page structure")
	ErrUnsupportedHost     = errors.New("unsupported host")
	ErrPatternNotFound     = errors.New("media pattern not found")
	ErrNoServers           = errors.New("no servers available")
	ErrNoStreamingSources  = errors.New("no streaming sources")
	ErrExtractionExhausted = errors.New("extraction attempts exhausted")
	ErrNoQualityOptions    = errors.New("no quality options")
	ErrUnknownSource       = errors.New("unknown source")
)

// Kinds lists the error kinds in the order they are matched by KindOf.
var Kinds = []error{
	ErrUnsupportedHost,
	ErrExtractionExhausted,
	ErrPatternNotFound,
	ErrNoServers,
	ErrNoStreamingSources,
	ErrNoQualityOptions,
	ErrUnknownSource,
	ErrParse,
	ErrNetwork,
}

// KindOf returns the error kind wrapped by err, or nil if it wraps none.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range Kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
