package jobs

import (
	"context"
	"fmt"
	"log"
)

// ResumableRequestFinder lists requests parked in hitl with no pending review items.
type ResumableRequestFinder interface {
	ListResumable(ctx context.Context, limit int) ([]string, error)
}

// ContinueDispatcher schedules the post-review phases for a request.
type ContinueDispatcher interface {
	DispatchContinue(requestID string)
}

// ResumeWorker re-triggers continue for requests whose last review landed
// but whose continue never ran, for example after a restart.
type ResumeWorker struct {
	finder     ResumableRequestFinder
	dispatcher ContinueDispatcher
	batchSize  int
}

func NewResumeWorker(finder ResumableRequestFinder, dispatcher ContinueDispatcher) *ResumeWorker {
	return &ResumeWorker{
		finder:     finder,
		dispatcher: dispatcher,
		batchSize:  50,
	}
}

// Poll implements Poller.
func (w *ResumeWorker) Poll(ctx context.Context) error {
	ids, err := w.finder.ListResumable(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("failed to list resumable requests: %w", err)
	}

	for _, id := range ids {
		log.Printf("resume: dispatching continue for request %s", id)
		w.dispatcher.DispatchContinue(id)
	}
	return nil
}
