package entity

import "time"

// Permission is a named atomic capability attached to roles.
// Names are globally unique (e.g. "missions:manage").
type Permission struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
