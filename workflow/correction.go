package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmdatafocus/shopdash_backend/backend"
	"github.com/mmdatafocus/shopdash_backend/cache"
	"github.com/mmdatafocus/shopdash_backend/config"
	"github.com/mmdatafocus/shopdash_backend/models"
	"github.com/mmdatafocus/shopdash_backend/query"
	"github.com/mmdatafocus/shopdash_backend/utils"
	"github.com/sirupsen/logrus"
)

const demoWriteMessage = "changes are disabled in demo mode"

// Corrector submits corrections to the backend procedures and invalidates the cache
// once a correction has succeeded.
type Corrector struct {
	backend backend.Backend
	builder *query.Builder
	cache   *cache.Cache
	locker  LineLocker
}

func NewCorrector(b backend.Backend, c *cache.Cache, locker LineLocker) *Corrector {
	if locker == nil {
		locker = NewLineLocker(nil)
	}
	return &Corrector{backend: b, builder: query.NewBuilder(b), cache: c, locker: locker}
}

// CorrectTransaction edits the detail lines of one transaction.
// Rejections come back as a failed result; the error return is for backend failures.
func (c *Corrector) CorrectTransaction(ctx context.Context, req models.CorrectionRequest) (*models.CorrectionResult, error) {
	if models.ModeFromContext(ctx).IsDemo() {
		return models.FailedResult(demoWriteMessage), nil
	}
	if err := req.Validate(); err != nil {
		return models.FailedResult(err.Error()), nil
	}
	res, err := models.LookupResource(req.Resource)
	if err != nil {
		return models.FailedResult(fmt.Sprintf("%s: %s", err.Error(), req.Resource)), nil
	}
	if !res.IsTransaction() {
		return models.FailedResult(fmt.Sprintf("%s has no correctable detail lines", res.Name)), nil
	}
	txID := strings.TrimSpace(req.TransactionID)

	lines, err := c.builder.QueryDetails(ctx, res.Name, "", txID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return models.FailedResult(fmt.Sprintf("transaction %s has no detail lines", txID)), nil
	}
	existing := make(map[string]bool, len(lines))
	for _, line := range lines {
		existing[line.String("product_name")] = true
	}
	keys := make([]string, 0, len(req.Items))
	normalized := make([]models.CorrectionItem, 0, len(req.Items))
	for _, item := range req.Items {
		name := strings.TrimSpace(item.OriginalProductName)
		if !existing[name] {
			return models.FailedResult(fmt.Sprintf("detail line %q does not exist in transaction %s", name, txID)), nil
		}
		keys = append(keys, lineLockKey(res.Name, txID, name))
		// the procedure matches lines by the exact name that passed the check above
		item.OriginalProductName = name
		if item.NewProductName != nil {
			item.NewProductName = utils.NewString(strings.TrimSpace(*item.NewProductName))
		}
		normalized = append(normalized, item)
	}

	release, err := obtainAll(ctx, c.locker, keys)
	if err != nil {
		return nil, err
	}
	defer release()

	items, err := utils.MarshalToJSON(normalized)
	if err != nil {
		return nil, err
	}
	result, err := c.call(ctx, "CorrectTransaction", res.CorrectionProcedure, txID, items)
	if err != nil || !result.Success {
		return result, err
	}
	c.cache.Apply(ctx, TransactionInvalidation(res, txID, result))
	return result, nil
}

// call runs a write procedure. A rejection by the store is a failed result carrying its message.
func (c *Corrector) call(ctx context.Context, funcName string, procedure string, args ...any) (*models.CorrectionResult, error) {
	raw, err := c.backend.CallProcedure(ctx, procedure, args...)
	if err != nil {
		if msg, ok := backend.Rejection(err); ok {
			return models.FailedResult(msg), nil
		}
		logFailure(ctx, funcName, procedure, args, err)
		return nil, err
	}
	result, err := models.ParseProcedureResult(raw)
	if err != nil {
		logFailure(ctx, funcName, procedure, string(raw), err)
		return nil, fmt.Errorf("%s: %w", procedure, err)
	}
	return result, nil
}

func logFailure(ctx context.Context, funcName string, procedure string, data any, err error) {
	logger := config.GetLogger()
	if correlationID, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		logger.WithFields(logrus.Fields{
			"module":         "workflow",
			"funcName":       funcName,
			"procedure":      procedure,
			"correlation_id": correlationID,
		}).Error(err.Error())
		return
	}
	config.LogError(logger, "workflow", funcName, procedure, data, err)
}
