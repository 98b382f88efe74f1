// Package pagination parses and bounds limit/offset list parameters.
package pagination

import (
	"strconv"

	"github.com/tahopetis/crate/pkg/apperror"
)

const (
	MinLimit = 1
	MaxLimit = 100
)

// Page is a validated limit/offset pair.
type Page struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// New applies defaultLimit when limit is nil and offset 0 when offset is nil,
// then checks the bounds. Out-of-range values are rejected, never clamped.
func New(limit, offset *int, defaultLimit int) (Page, error) {
	p := Page{Limit: defaultLimit}
	if limit != nil {
		p.Limit = *limit
	}
	if offset != nil {
		p.Offset = *offset
	}
	if p.Limit < MinLimit || p.Limit > MaxLimit {
		return Page{}, apperror.NewValidation("limit must be between 1 and 100")
	}
	if p.Offset < 0 {
		return Page{}, apperror.NewValidation("offset must be non-negative")
	}
	return p, nil
}

// Parse reads raw query-string values. Empty strings mean "not supplied".
func Parse(rawLimit, rawOffset string, defaultLimit int) (Page, error) {
	limit, err := optionalInt("limit", rawLimit)
	if err != nil {
		return Page{}, err
	}
	offset, err := optionalInt("offset", rawOffset)
	if err != nil {
		return Page{}, err
	}
	return New(limit, offset, defaultLimit)
}

func optionalInt(name, raw string) (*int, error) {
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, apperror.NewValidation(name + " must be an integer")
	}
	return &n, nil
}

// Result is a page of items with the total number of matching rows.
type Result[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// NewResult never returns a nil Items slice so it renders as [].
func NewResult[T any](items []T, total int, p Page) Result[T] {
	if items == nil {
		items = []T{}
	}
	return Result[T]{Items: items, Total: total, Limit: p.Limit, Offset: p.Offset}
}
