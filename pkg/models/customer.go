package models

import (
	"errors"
	"time"
)

// Segment classifies a customer by organization size/type. Scoring
// normalization targets are parameterized per segment.
type Segment string

const (
	SegmentEnterprise Segment = "enterprise"
	SegmentSMB        Segment = "smb"
	SegmentStartup    Segment = "startup"
)

// Segments returns all known segments in a stable order.
func Segments() []Segment {
	return []Segment{SegmentEnterprise, SegmentSMB, SegmentStartup}
}

// IsValid reports whether the segment is one of the known values.
func (s Segment) IsValid() bool {
	switch s {
	case SegmentEnterprise, SegmentSMB, SegmentStartup:
		return true
	}
	return false
}

// ErrCustomerNotFound is returned by stores when a referenced customer
// does not exist.
var ErrCustomerNotFound = errors.New("customer not found")

// Customer represents a business customer (tenant) we compute health for.
//
// HealthScore is a denormalized copy of the last computed total. It is an
// advisory cache for listings and dashboards only: the scoring engine
// writes it opportunistically after a computation and never reads it back.
type Customer struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Segment     Segment   `json:"segment"`
	Seats       int       `json:"seats"`
	Active      bool      `json:"active"`
	HealthScore float64   `json:"health_score"`
	CreatedAt   time.Time `json:"created_at"`
}

// CustomerFilter narrows customer listings.
type CustomerFilter struct {
	Segment *Segment `json:"segment,omitempty"`
	Active  *bool    `json:"active,omitempty"`
}

// Matches reports whether a customer passes the filter.
func (f CustomerFilter) Matches(c *Customer) bool {
	if f.Segment != nil && c.Segment != *f.Segment {
		return false
	}
	if f.Active != nil && c.Active != *f.Active {
		return false
	}
	return true
}
