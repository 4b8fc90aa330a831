// Package eventbus couples run persistence with run event publishing.
package eventbus

import (
	"context"

	"github.com/ahrav/taskfarm/internal/domain/farm"
	"github.com/ahrav/taskfarm/pkg/common/logger"
)

var _ farm.RunRepository = (*PublishingRepository)(nil)

// PublishingRepository announces every saved run through a publisher. Reads go
// straight to the wrapped repository.
type PublishingRepository struct {
	farm.RunRepository
	publisher farm.RunEventPublisher
	logger    *logger.Logger
}

// NewPublishingRepository wraps repo so each successful Save is followed by a
// RunCompleted event.
func NewPublishingRepository(
	repo farm.RunRepository,
	publisher farm.RunEventPublisher,
	logger *logger.Logger,
) *PublishingRepository {
	return &PublishingRepository{
		RunRepository: repo,
		publisher:     publisher,
		logger:        logger.With("component", "publishing_repository"),
	}
}

// Save stores report, then publishes it. A stored run stays stored when the
// publish fails; the failure is logged and not returned.
func (r *PublishingRepository) Save(ctx context.Context, report *farm.RunReport) error {
	if err := r.RunRepository.Save(ctx, report); err != nil {
		return err
	}
	if err := r.publisher.PublishRunCompleted(ctx, report); err != nil {
		r.logger.Error(ctx, "publishing run completed event",
			"run_id", report.RunID.String(),
			"error", err,
		)
	}
	return nil
}
