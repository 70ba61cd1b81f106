package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/logger"
)

const defaultRetryBatch = 25

type reimbursementLister interface {
	ListByStatus(ctx context.Context, status enums.ReimbursementStatus, limit int) ([]models.Reimbursement, error)
}

type reimbursementPerformer interface {
	Perform(ctx context.Context, id uuid.UUID) (*models.Reimbursement, error)
}

type ReimbursementRetryJobParams struct {
	Logger    *logger.Logger
	Lister    reimbursementLister
	Performer reimbursementPerformer
	BatchSize int
}

// NewReimbursementRetryJob builds the job that performs errored
// reimbursements again, oldest first.
func NewReimbursementRetryJob(params ReimbursementRetryJobParams) (Job, error) {
	if params.Lister == nil {
		return nil, fmt.Errorf("reimbursement lister required")
	}
	if params.Performer == nil {
		return nil, fmt.Errorf("reimbursement performer required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultRetryBatch
	}
	return &reimbursementRetryJob{
		logg:      params.Logger,
		lister:    params.Lister,
		performer: params.Performer,
		batch:     batch,
	}, nil
}

type reimbursementRetryJob struct {
	logg      *logger.Logger
	lister    reimbursementLister
	performer reimbursementPerformer
	batch     int
}

func (j *reimbursementRetryJob) Name() string { return "reimbursement-retry" }

// Run retries each errored reimbursement once. A reimbursement that is still
// short or whose order is locked stays errored for the next cycle and does
// not fail the job.
func (j *reimbursementRetryJob) Run(ctx context.Context) error {
	errored, err := j.lister.ListByStatus(ctx, enums.ReimbursementErrored, j.batch)
	if err != nil {
		return fmt.Errorf("list errored reimbursements: %w", err)
	}

	var (
		settled, pending int
		errs             error
	)
	for _, r := range errored {
		if ctx.Err() != nil {
			return multierr.Append(errs, ctx.Err())
		}
		rCtx := j.logg.WithFields(ctx, map[string]any{
			"reimbursement_number": r.Number,
			"order_id":             r.OrderID.String(),
		})
		_, err := j.performer.Perform(rCtx, r.ID)
		switch {
		case err == nil:
			settled++
		case pkgerrors.HasCode(err, pkgerrors.CodeIncompleteReimbursement), pkgerrors.HasCode(err, pkgerrors.CodeLocked):
			pending++
			j.logg.Warn(j.logg.WithField(rCtx, "error", err.Error()), "reimbursement still errored")
		default:
			errs = multierr.Append(errs, fmt.Errorf("reimbursement %s: %w", r.Number, err))
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"candidates": len(errored),
		"settled":    settled,
		"pending":    pending,
		"failed":     len(multierr.Errors(errs)),
	}), "reimbursement retry complete")
	return errs
}
