package models

import (
	"fmt"
	"strings"

	"bycarket/api/internal/utils"
)

// SortField enumerates the fields a post listing can be ordered by.
type SortField string

const (
	SortByPostDate SortField = "post_date"
	SortByBrand    SortField = "brand"
	SortByModel    SortField = "model"
	SortByVersion  SortField = "version"
	SortByYear     SortField = "year"
	SortByPrice    SortField = "price"
	SortByMileage  SortField = "mileage"
)

func (f SortField) IsValid() bool {
	switch f {
	case SortByPostDate, SortByBrand, SortByModel, SortByVersion, SortByYear, SortByPrice, SortByMileage:
		return true
	}
	return false
}

// SortOrder is the direction of the listing sort.
type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

func (o SortOrder) IsValid() bool {
	return o == OrderAsc || o == OrderDesc
}

const (
	DefaultPage  = 1
	DefaultLimit = 10
)

// FieldError names a single offending input field and why it was rejected.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError is returned for malformed or out-of-enum filter/sort
// input. It is a caller input error, never retried.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Reason))
	}
	return "invalid filter criteria: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, reason string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Reason: reason})
}

// FilterCriteria is the set of optional search constraints applied to a post
// listing query. Multi-value fields are OR'd within the field and AND'd
// across fields; an empty set imposes no constraint. Range bounds are
// inclusive and independently optional.
type FilterCriteria struct {
	BrandIDs      []utils.SixID `json:"brand_ids,omitempty"`
	ModelIDs      []utils.SixID `json:"model_ids,omitempty"`
	VersionIDs    []utils.SixID `json:"version_ids,omitempty"`
	TypeOfVehicle []VehicleType `json:"type_of_vehicle,omitempty"`
	Condition     *Condition    `json:"condition,omitempty"`
	CurrencyCode  *string       `json:"currency_code,omitempty"`
	MinYear       *int          `json:"min_year,omitempty"`
	MaxYear       *int          `json:"max_year,omitempty"`
	MinPrice      *float64      `json:"min_price,omitempty"`
	MaxPrice      *float64      `json:"max_price,omitempty"`
	MinMileage    *int          `json:"min_mileage,omitempty"`
	MaxMileage    *int          `json:"max_mileage,omitempty"`
	Search        string        `json:"search,omitempty"`
	Status        *PostStatus   `json:"status,omitempty"` // Admin-only explicit status filter
	OrderBy       SortField     `json:"order_by,omitempty"`
	Order         SortOrder     `json:"order,omitempty"`
	Page          int           `json:"page,omitempty"`
	Limit         int           `json:"limit,omitempty"`
}

// Validate checks enum fields and pagination bounds, collecting every
// offending field rather than stopping at the first. Returns nil when the
// criteria are acceptable.
func (c *FilterCriteria) Validate() *ValidationError {
	verr := &ValidationError{}

	if c.OrderBy != "" && !c.OrderBy.IsValid() {
		verr.add("order_by", fmt.Sprintf("%q is not a sortable field", string(c.OrderBy)))
	}
	if c.Order != "" && !c.Order.IsValid() {
		verr.add("order", fmt.Sprintf("%q is not a sort direction", string(c.Order)))
	}
	for _, t := range c.TypeOfVehicle {
		if !t.IsValid() {
			verr.add("type_of_vehicle", fmt.Sprintf("%q is not a vehicle type", string(t)))
		}
	}
	if c.Condition != nil && !c.Condition.IsValid() {
		verr.add("condition", fmt.Sprintf("%q is not a condition", string(*c.Condition)))
	}
	if c.Status != nil && !c.Status.IsValid() {
		verr.add("status", fmt.Sprintf("%q is not a post status", string(*c.Status)))
	}
	if c.Page < 0 {
		verr.add("page", "must be at least 1")
	}
	if c.Limit < 0 {
		verr.add("limit", "must be at least 1")
	}

	if len(verr.Fields) == 0 {
		return nil
	}
	return verr
}

// ApplyDefaults fills in page, limit and sort defaults. The resolver calls
// it exactly once, after validation.
func (c *FilterCriteria) ApplyDefaults() {
	if c.Page < 1 {
		c.Page = DefaultPage
	}
	if c.Limit < 1 {
		c.Limit = DefaultLimit
	}
	if c.OrderBy == "" {
		c.OrderBy = SortByPostDate
	}
	if c.Order == "" {
		if c.OrderBy == SortByPostDate {
			c.Order = OrderDesc
		} else {
			c.Order = OrderAsc
		}
	}
}

// Viewer is the caller context a listing query runs under.
type Viewer struct {
	Role       Role
	UserID     utils.SixID
	OwnerScope bool // "my posts": bypass the status filter for the caller's own listings
}

// IsAdmin reports whether the viewer may use the moderation query path.
func (v Viewer) IsAdmin() bool {
	return v.Role == RoleAdmin
}

// PostPage is one page of listing results plus pagination metadata.
// TotalPages is ceil(Total/Limit).
type PostPage struct {
	Data       []Post `json:"data"`
	Total      int64  `json:"total"`
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
	TotalPages int    `json:"total_pages"`
}
