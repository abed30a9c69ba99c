package models

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// CorrectionItem edits one detail line, identified by the product name it currently carries.
// Nil fields are passed to the backend as absent; the backend decides their defaults.
type CorrectionItem struct {
	OriginalProductName string           `json:"originalProductName" validate:"required"`
	NewProductName      *string          `json:"newProductName,omitempty"`
	NewQuantity         *decimal.Decimal `json:"newQuantity,omitempty"`
	NewUnitPrice        *decimal.Decimal `json:"newUnitPrice,omitempty"`
}

type CorrectionRequest struct {
	Resource      string           `json:"resource" validate:"required"`
	TransactionID string           `json:"transactionId" validate:"required"`
	Items         []CorrectionItem `json:"items" validate:"required,min=1,dive"`
}

func (r CorrectionRequest) Validate() error {
	if err := validateStruct(r); err != nil {
		return err
	}
	seen := make(map[string]bool, len(r.Items))
	for _, item := range r.Items {
		name := strings.TrimSpace(item.OriginalProductName)
		if name == "" {
			return validationFailure("originalProductName must not be blank")
		}
		if seen[name] {
			return validationFailure("detail line " + name + " appears more than once")
		}
		seen[name] = true
		if item.NewProductName != nil && strings.TrimSpace(*item.NewProductName) == "" {
			return validationFailure("newProductName must not be blank for " + name)
		}
	}
	return nil
}

// ProductCorrectionRequest edits the canonical fields of one product.
type ProductCorrectionRequest struct {
	ProductID string           `json:"productId" validate:"required"`
	Name      *string          `json:"name,omitempty"`
	Category  *string          `json:"category,omitempty"`
	Barcode   *string          `json:"barcode,omitempty"`
	UnitPrice *decimal.Decimal `json:"unitPrice,omitempty"`
	UnitCost  *decimal.Decimal `json:"unitCost,omitempty"`
}

func (r ProductCorrectionRequest) Validate() error {
	if err := validateStruct(r); err != nil {
		return err
	}
	if r.Name == nil && r.Category == nil && r.Barcode == nil && r.UnitPrice == nil && r.UnitCost == nil {
		return validationFailure("nothing to correct")
	}
	if r.Name != nil && strings.TrimSpace(*r.Name) == "" {
		return validationFailure("name must not be blank")
	}
	return nil
}

// CorrectionResult is what a correction or rollback procedure reports.
// Merged/Renamed flag structural consequences that reach other entities.
type CorrectionResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
	Merged  bool   `json:"merged,omitempty"`
	Renamed bool   `json:"renamed,omitempty"`
}

// IsStructural reports whether the change can affect records of other resources.
func (r CorrectionResult) IsStructural() bool {
	return r.Merged || r.Renamed
}

func FailedResult(message string) *CorrectionResult {
	return &CorrectionResult{Success: false, Error: message}
}

var ErrEmptyProcedureResult = errors.New("procedure returned no result")

// ParseProcedureResult decodes the JSON document a write procedure returns.
// A document without "success" is a failure unless it carries no error either.
func ParseProcedureResult(raw json.RawMessage) (*CorrectionResult, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, ErrEmptyProcedureResult
	}
	var payload struct {
		Success *bool  `json:"success"`
		Error   string `json:"error"`
		Message string `json:"message"`
		Merged  bool   `json:"merged"`
		Renamed bool   `json:"renamed"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	result := &CorrectionResult{
		Error:   payload.Error,
		Message: payload.Message,
		Merged:  payload.Merged,
		Renamed: payload.Renamed,
	}
	if payload.Success != nil {
		result.Success = *payload.Success
	} else {
		result.Success = payload.Error == ""
	}
	if !result.Success && result.Error == "" {
		result.Error = "the operation was rejected without an error message"
	}
	return result, nil
}
