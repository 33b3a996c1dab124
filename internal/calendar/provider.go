package calendar

import (
	"context"
	"errors"
	"time"

	"aria/internal/models"
)

// Capability is a per-operation permission class.
type Capability string

const (
	CapabilityRead   Capability = "read"
	CapabilityWrite  Capability = "write"
	CapabilityDelete Capability = "delete"
)

// Sentinel errors surfaced to callers.
var (
	ErrNotPermitted = errors.New("calendar operation not permitted")
	ErrNotFound     = errors.New("calendar event not found")
)

// Provider is the external calendar collaborator. Every implementation must
// enforce its capability set before making any provider call.
type Provider interface {
	ListCalendars(ctx context.Context) ([]models.Calendar, error)
	ListEvents(ctx context.Context, calendarID string, from, to time.Time) ([]models.CalendarEvent, error)
	SearchEvents(ctx context.Context, calendarID, query string, from, to time.Time) ([]models.CalendarEvent, error)
	GetEvent(ctx context.Context, calendarID, eventID string) (*models.CalendarEvent, error)
	CreateEvent(ctx context.Context, calendarID string, event *models.CalendarEvent) (*models.CalendarEvent, error)
	UpdateEvent(ctx context.Context, calendarID string, event *models.CalendarEvent) (*models.CalendarEvent, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}

// PermissionSet is the granted capability set for a provider connection.
type PermissionSet map[Capability]bool

// AllPermissions grants read, write and delete.
func AllPermissions() PermissionSet {
	return PermissionSet{
		CapabilityRead:   true,
		CapabilityWrite:  true,
		CapabilityDelete: true,
	}
}

// Check returns ErrNotPermitted when the capability is not granted.
func (p PermissionSet) Check(cap Capability) error {
	if !p[cap] {
		return ErrNotPermitted
	}
	return nil
}
