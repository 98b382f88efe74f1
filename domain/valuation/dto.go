package valuation

import "github.com/google/uuid"

// CreateRequest is the body of POST /api/v1/amortization/records.
// PurchaseDate is YYYY-MM-DD and defaults to today.
type CreateRequest struct {
	CIAssetID          uuid.UUID `json:"ci_asset_id" validate:"required"`
	InitialValue       float64   `json:"initial_value" validate:"gt=0"`
	SalvageValue       *float64  `json:"salvage_value,omitempty" validate:"omitempty,gte=0"`
	UsefulLifeYears    int       `json:"useful_life_years" validate:"min=1,max=100"`
	DepreciationMethod string    `json:"depreciation_method" validate:"required,oneof=straight_line declining_balance"`
	PurchaseDate       string    `json:"purchase_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}
