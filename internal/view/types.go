// Package view models permissioned, scoped packages of information, the
// unit of cross-tenant sharing, and the registry that owns their
// lifecycle.
package view

import (
	"errors"
	"time"
)

// Type enumerates the supported view kinds.
type Type string

const (
	TypeDashboard        Type = "dashboard"
	TypeDueDiligencePack Type = "due_diligence_pack"
	TypeLenderPack       Type = "lender_pack"
	TypeReport           Type = "report"
	TypeTemplateOutput   Type = "template_output"
	TypeDataRoom         Type = "data_room"
	TypeCustom           Type = "custom"
)

var knownTypes = map[Type]struct{}{
	TypeDashboard:        {},
	TypeDueDiligencePack: {},
	TypeLenderPack:       {},
	TypeReport:           {},
	TypeTemplateOutput:   {},
	TypeDataRoom:         {},
	TypeCustom:           {},
}

// Status is the view lifecycle state. Views are archived, never deleted.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

var (
	ErrNotFound     = errors.New("view: not found")
	ErrInvalidInput = errors.New("view: invalid input")
	ErrConflict     = errors.New("view: invalid status transition")
)

// View is a named, typed, scoped package of information owned by one
// organization. Config is opaque layout/sort/filter hints for the
// rendering layer.
type View struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	Name           string         `json:"name"`
	Type           Type           `json:"type"`
	Scope          Scope          `json:"scope"`
	Config         map[string]any `json:"config,omitempty"`
	Status         Status         `json:"status"`
	IsPublic       bool           `json:"is_public"`
	CanShare       bool           `json:"can_share"`
	CreatedBy      string         `json:"created_by"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	PublishedAt    *time.Time     `json:"published_at,omitempty"`
}

// OwnerOrgID implements tenant.Owned.
func (v View) OwnerOrgID() string { return v.OrganizationID }

// AuthorID implements tenant.Owned.
func (v View) AuthorID() string { return v.CreatedBy }
