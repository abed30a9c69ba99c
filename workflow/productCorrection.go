package workflow

import (
	"context"
	"strings"

	"github.com/mmdatafocus/shopdash_backend/models"
	"github.com/mmdatafocus/shopdash_backend/utils"
)

// CorrectProduct edits the canonical fields of one product. Only a merge or rename
// reaches beyond the product's own caches.
func (c *Corrector) CorrectProduct(ctx context.Context, req models.ProductCorrectionRequest) (*models.CorrectionResult, error) {
	if models.ModeFromContext(ctx).IsDemo() {
		return models.FailedResult(demoWriteMessage), nil
	}
	if err := req.Validate(); err != nil {
		return models.FailedResult(err.Error()), nil
	}
	productID := strings.TrimSpace(req.ProductID)

	release, err := c.locker.Obtain(ctx, "correction:"+models.ResourceProducts+":"+productID)
	if err != nil {
		return nil, err
	}
	defer release()

	fields, err := utils.MarshalToJSON(req)
	if err != nil {
		return nil, err
	}
	result, err := c.call(ctx, "CorrectProduct", models.ProcedureCorrectProduct, productID, fields)
	if err != nil || !result.Success {
		return result, err
	}
	c.cache.Apply(ctx, ProductInvalidation(productID, result))
	return result, nil
}
