package workflow

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/shopdash_backend/backend"
	"github.com/mmdatafocus/shopdash_backend/models"
)

// RollbackCoordinator reverts one audit entry through the backend procedure.
// It only reports the outcome; invalidating caches is left to the caller (see RollbackInvalidation).
type RollbackCoordinator struct {
	backend backend.Backend
}

func NewRollbackCoordinator(b backend.Backend) *RollbackCoordinator {
	return &RollbackCoordinator{backend: b}
}

// Rollback is attempted once. Backend messages are returned verbatim.
func (r *RollbackCoordinator) Rollback(ctx context.Context, auditID int64) (*models.CorrectionResult, error) {
	if models.ModeFromContext(ctx).IsDemo() {
		return models.FailedResult(demoWriteMessage), nil
	}
	if auditID <= 0 {
		return models.FailedResult(fmt.Sprintf("invalid audit entry id %d", auditID)), nil
	}
	raw, err := r.backend.CallProcedure(ctx, models.ProcedureRollbackAudit, auditID)
	if err != nil {
		if msg, ok := backend.Rejection(err); ok {
			return models.FailedResult(msg), nil
		}
		logFailure(ctx, "Rollback", models.ProcedureRollbackAudit, auditID, err)
		return nil, err
	}
	result, err := models.ParseProcedureResult(raw)
	if err != nil {
		logFailure(ctx, "Rollback", models.ProcedureRollbackAudit, string(raw), err)
		return nil, fmt.Errorf("%s: %w", models.ProcedureRollbackAudit, err)
	}
	return result, nil
}
