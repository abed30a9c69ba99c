package models

import "math"

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// DateRange holds inclusive bounds applied to QueryOptions.DateColumn. Either side may be empty.
type DateRange struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

func (r *DateRange) IsZero() bool {
	return r == nil || (r.Start == "" && r.End == "")
}

// QueryOptions is the declarative description of one list fetch against a resource.
//
// The JSON form is also the canonical cache-key form, so field order and omitempty
// tags must stay stable.
type QueryOptions struct {
	SortColumn   string     `json:"sortColumn,omitempty" validate:"omitempty,identifier"`
	SortOrder    SortOrder  `json:"sortOrder,omitempty" validate:"omitempty,oneof=asc desc"`
	FilterColumn string     `json:"filterColumn,omitempty" validate:"omitempty,identifier"`
	FilterValue  string     `json:"filterValue,omitempty"`
	Page         *int       `json:"page,omitempty" validate:"omitempty,min=1"`
	PageSize     *int       `json:"pageSize,omitempty" validate:"omitempty,min=1"`
	DateColumn   string     `json:"dateColumn,omitempty" validate:"omitempty,identifier"`
	DateRange    *DateRange `json:"dateRange,omitempty"`
	Select       []string   `json:"select,omitempty" validate:"omitempty,dive,identifier"`
}

// Validate checks field formats and the pairing rules: page/pageSize come together,
// and a date range needs a date column.
func (o QueryOptions) Validate() error {
	if err := validateStruct(o); err != nil {
		return err
	}
	if (o.Page == nil) != (o.PageSize == nil) {
		return validationFailure("page and pageSize must be supplied together")
	}
	if o.Page != nil {
		if last := math.MaxInt / *o.PageSize; *o.Page > last {
			return validationFailure("page is out of range for the page size")
		}
	}
	if !o.DateRange.IsZero() && o.DateColumn == "" {
		return validationFailure("dateRange requires dateColumn")
	}
	return nil
}

// HasFilter reports whether a substring filter applies.
func (o QueryOptions) HasFilter() bool {
	return o.FilterColumn != "" && o.FilterValue != ""
}

// HasSort reports whether an explicit sort applies; otherwise the backend order is used.
func (o QueryOptions) HasSort() bool {
	return o.SortColumn != "" && o.SortOrder != ""
}

// Window returns the zero-indexed, half-open row window [from, to) for the requested page.
func (o QueryOptions) Window() (from int, to int, ok bool) {
	if o.Page == nil || o.PageSize == nil {
		return 0, 0, false
	}
	p, s := *o.Page, *o.PageSize
	return (p - 1) * s, p * s, true
}

// Clone returns a deep copy so a caller mutating its options cannot alter a cache key.
func (o QueryOptions) Clone() QueryOptions {
	c := o
	if o.Page != nil {
		p := *o.Page
		c.Page = &p
	}
	if o.PageSize != nil {
		s := *o.PageSize
		c.PageSize = &s
	}
	if o.DateRange != nil {
		r := *o.DateRange
		c.DateRange = &r
	}
	if o.Select != nil {
		c.Select = append([]string(nil), o.Select...)
	}
	return c
}
