package jobs

import (
	"context"

	"github.com/wavaa/thumbforge/internal/progress"
)

// ProgressSink mirrors pipeline progress events into the job store so the
// poll API sees live percentages.
type ProgressSink struct {
	store *Store
}

// NewProgressSink builds the sink.
func NewProgressSink(store *Store) *ProgressSink {
	return &ProgressSink{store: store}
}

// Consume applies each event's percent to its job. Unknown jobs are skipped;
// the pipeline may emit for jobs already evicted in tests.
func (s *ProgressSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		if evt.Stage == progress.StageError {
			continue
		}
		_ = s.store.SetProgress(evt.JobID.String(), evt.Percent)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *ProgressSink) Close(context.Context) error {
	return nil
}
