package valuation

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// EntityType is the audit entity type of valuation records.
const EntityType = "valuation_record"

// Depreciation methods.
const (
	MethodStraightLine     = "straight_line"
	MethodDecliningBalance = "declining_balance"
)

// Record is the valuation of one CI asset. CurrentValue follows the
// amortization entries persisted so far.
type Record struct {
	bun.BaseModel `bun:"table:cmdb.valuation_records,alias:vr"`

	ID                 uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	CIAssetID          uuid.UUID  `bun:"ci_asset_id,type:uuid,notnull" json:"ci_asset_id"`
	InitialValue       float64    `bun:"initial_value,notnull" json:"initial_value"`
	CurrentValue       float64    `bun:"current_value,notnull" json:"current_value"`
	SalvageValue       float64    `bun:"salvage_value,notnull" json:"salvage_value"`
	UsefulLifeYears    int        `bun:"useful_life_years,notnull" json:"useful_life_years"`
	DepreciationMethod string     `bun:"depreciation_method,notnull" json:"depreciation_method"`
	PurchaseDate       time.Time  `bun:"purchase_date,type:date,notnull" json:"purchase_date"`
	CreatedBy          uuid.UUID  `bun:"created_by,type:uuid,notnull" json:"created_by"`
	UpdatedBy          *uuid.UUID `bun:"updated_by,type:uuid" json:"updated_by,omitempty"`
	CreatedAt          time.Time  `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt          time.Time  `bun:"updated_at,notnull" json:"updated_at"`

	AssetName string `bun:"asset_name,scanonly" json:"asset_name,omitempty"`
}

// Entry is one persisted amortization year. Year 1 is the first year after
// the purchase date.
type Entry struct {
	bun.BaseModel `bun:"table:cmdb.amortization_entries,alias:ae"`

	ID                 uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	ValuationID        uuid.UUID  `bun:"valuation_id,type:uuid,notnull" json:"valuation_id"`
	Year               int        `bun:"year,notnull" json:"year"`
	OpeningValue       float64    `bun:"opening_value,notnull" json:"opening_value"`
	DepreciationAmount float64    `bun:"depreciation_amount,notnull" json:"depreciation_amount"`
	ClosingValue       float64    `bun:"closing_value,notnull" json:"closing_value"`
	CreatedBy          *uuid.UUID `bun:"created_by,type:uuid" json:"created_by,omitempty"`
	CreatedAt          time.Time  `bun:"created_at,notnull" json:"created_at"`
}

// Period is one computed year of a depreciation schedule.
type Period struct {
	Year               int       `json:"year"`
	EndsOn             time.Time `json:"ends_on"`
	OpeningValue       float64   `json:"opening_value"`
	DepreciationAmount float64   `json:"depreciation_amount"`
	ClosingValue       float64   `json:"closing_value"`
	Elapsed            bool      `json:"elapsed"`
}

// Schedule is the computed plan for the latest valuation of an asset along
// with the entries already persisted for it.
type Schedule struct {
	Valuation    *Record  `json:"valuation"`
	YearsElapsed int      `json:"years_elapsed"`
	Periods      []Period `json:"periods"`
	History      []Entry  `json:"history"`
}

// RecalcResult summarizes one Recalculate run.
type RecalcResult struct {
	Valuations     int `json:"valuations"`
	EntriesCreated int `json:"entries_created"`
	Failed         int `json:"failed"`
}
