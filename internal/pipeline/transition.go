package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"

	"go.opentelemetry.io/otel/attribute"

	"candidate-pipeline/internal/models"
	"candidate-pipeline/internal/telemetry"
)

// Notifier receives user-facing notices produced by failed asynchronous work.
type Notifier interface {
	Notice(n models.PendingAction)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(models.PendingAction)

// Notice calls f.
func (f NotifierFunc) Notice(n models.PendingAction) { f(n) }

// Controller runs stage transitions and bulk operations against the record store.
type Controller struct {
	backend Backend
	records *RecordStore
	stages  *StageRegistry
	notify  Notifier
}

// NewController wires a controller. notify may be nil.
func NewController(backend Backend, records *RecordStore, stages *StageRegistry, notify Notifier) *Controller {
	if notify == nil {
		notify = NotifierFunc(func(models.PendingAction) {})
	}
	return &Controller{backend: backend, records: records, stages: stages, notify: notify}
}

// Move transitions one application. The cache shows the destination at once; a failed
// confirmation restores the previous stage and flags and is not surfaced as a notice.
// Moving into the current stage is dropped without a request.
func (c *Controller) Move(ctx context.Context, id int64, dest string) (models.Application, error) {
	ctx, span := telemetry.StartSpan(ctx, "pipeline.move",
		attribute.Int64("application.id", id),
		attribute.String("stage.to", dest),
	)
	defer span.End()

	cur, ok := c.records.Get(id)
	if !ok {
		return models.Application{}, fmt.Errorf("move %d: %w", id, ErrUnknownApplication)
	}
	if cur.Stage == dest {
		return cur, nil
	}
	if !c.stages.Has(dest) {
		return cur, fmt.Errorf("move %d to %q: %w", id, dest, ErrStageNotFound)
	}

	confirmed := cur
	_, err := WithOptimisticUpdate[int64, models.Application](ctx, c.records, id,
		func(a *models.Application) { models.EnterStage(a, dest) },
		restoreTransition,
		func(ctx context.Context, next models.Application) error {
			dto, err := c.backend.UpdateStage(ctx, models.UpdateStageRequest{
				ApplicationID:   id,
				Stage:           dest,
				ExpectedVersion: cur.Version,
			})
			if err != nil {
				return err
			}
			confirmed, err = c.records.Reconcile(id, dto)
			if errors.Is(err, ErrStaleVersion) {
				log.Printf("pipeline: ignoring stale confirmation id=%d: %v", id, err)
				confirmed = next
				return nil
			}
			return err
		},
	)
	if err != nil {
		span.RecordError(err)
		telemetry.StageMoves.WithLabelValues("rolled_back").Inc()
		telemetry.Rollbacks.Inc()
		log.Printf("pipeline: move rolled back id=%d from=%s to=%s: %v", id, cur.Stage, dest, err)
		return cur, fmt.Errorf("move %d to %q: %w", id, dest, err)
	}
	telemetry.StageMoves.WithLabelValues("confirmed").Inc()
	return confirmed, nil
}

// restoreTransition puts back the fields a stage transition writes.
func restoreTransition(cur *models.Application, snapshot models.Application) {
	cur.Stage = snapshot.Stage
	cur.Flagged = snapshot.Flagged
	cur.IsNewLead = snapshot.IsNewLead
}

// Bulk runs one batched request for every id and, only once the server accepts it,
// applies the action to each cached target. A failure leaves the cache untouched and
// raises a notice. The server is assumed to apply the batch atomically.
func (c *Controller) Bulk(ctx context.Context, ids []int64, action BulkAction) (int, error) {
	if action == nil {
		return 0, ErrUnsupportedAction
	}
	ctx, span := telemetry.StartSpan(ctx, "pipeline.bulk",
		attribute.String("action", action.verb()),
		attribute.Int("targets", len(ids)),
	)
	defer span.End()

	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return 0, ErrNoTargets
	}
	if mv, ok := action.(MoveAction); ok && !c.stages.Has(mv.Stage) {
		return 0, fmt.Errorf("bulk move to %q: %w", mv.Stage, ErrStageNotFound)
	}

	err := c.backend.BulkAction(ctx, models.BulkRequest{
		ApplicationIDs: ids,
		Action:         action.verb(),
		Payload:        action.payload(),
	})
	if err != nil {
		span.RecordError(err)
		telemetry.BulkActions.WithLabelValues(action.verb(), "failed").Inc()
		log.Printf("pipeline: bulk %s failed targets=%d: %v", action.verb(), len(ids), err)
		c.notify.Notice(models.PendingAction{
			Kind:      models.PendingNotice,
			TargetIDs: ids,
			Title:     "Bulk action failed",
			Message:   userMessage(err, "The bulk action could not be completed. Please try again."),
		})
		return 0, fmt.Errorf("bulk %s: %w", action.verb(), err)
	}

	n := c.records.ApplyAll(ids, action.apply)
	telemetry.BulkActions.WithLabelValues(action.verb(), "applied").Inc()
	return n, nil
}

// userMessager is implemented by errors that carry a message meant for the user.
type userMessager interface {
	UserMessage() string
}

func userMessage(err error, fallback string) string {
	var um userMessager
	if errors.As(err, &um) {
		if msg := um.UserMessage(); msg != "" {
			return msg
		}
	}
	return fallback
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
