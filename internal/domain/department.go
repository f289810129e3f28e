package domain

import "time"

// Department represents a high-level organizational unit. SLA rules may be scoped to one.
type Department struct {
	ID          string
	Name        string
	Description string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
