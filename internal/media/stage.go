package media

import "context"

// Stage is the lifecycle position of one server extraction.
type Stage string

const (
	StageFetching       Stage = "fetching"
	StageExtracting     Stage = "extracting"
	StageFollowingEmbed Stage = "following-embed"
	StageSucceeded      Stage = "succeeded"
	StageFailed         Stage = "failed"
)

// Terminal reports whether no further transition is possible.
func (s Stage) Terminal() bool {
	return s == StageSucceeded || s == StageFailed
}

type stageKey struct{}

// WithStageReporter returns a context whose ReportStage calls reach fn.
func WithStageReporter(ctx context.Context, fn func(Stage)) context.Context {
	return context.WithValue(ctx, stageKey{}, fn)
}

// ReportStage notifies the reporter attached to ctx, if any.
func ReportStage(ctx context.Context, s Stage) {
	if fn, ok := ctx.Value(stageKey{}).(func(Stage)); ok && fn != nil {
		fn(s)
	}
}
