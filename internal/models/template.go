// Package models defines the records persisted by reportsmith.
package models

import (
	"strings"
	"time"
)

// Template is a stored report template. Only Body is ever rendered.
type Template struct {
	// ID is the unique identifier for the template.
	ID string `json:"id"`

	// UserID is the owning user.
	UserID string `json:"user_id"`

	// Title is the human-readable name.
	Title string `json:"title"`

	// Body is the raw template text.
	Body string `json:"body"`

	// Instructions are optional free-text notes for whoever fills the report.
	Instructions string `json:"instructions,omitempty"`

	// Active is false once the template has been soft-deleted.
	Active bool `json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the fields required to store a template.
func (t *Template) Validate() error {
	validation := &ValidationErrors{}
	if strings.TrimSpace(t.UserID) == "" {
		validation.AddMessage("user_id", "user_id is required")
	}
	if strings.TrimSpace(t.Title) == "" {
		validation.AddMessage("title", "title is required")
	}
	if strings.TrimSpace(t.Body) == "" {
		validation.AddMessage("body", "body is required")
	}
	return validation.Err()
}

// TemplateUpdate is a partial update; nil fields are left unchanged.
type TemplateUpdate struct {
	Title        *string `json:"title,omitempty"`
	Body         *string `json:"body,omitempty"`
	Instructions *string `json:"instructions,omitempty"`
}

// Fields lists the names of the fields the update sets.
func (u TemplateUpdate) Fields() []string {
	var fields []string
	if u.Title != nil {
		fields = append(fields, "title")
	}
	if u.Body != nil {
		fields = append(fields, "body")
	}
	if u.Instructions != nil {
		fields = append(fields, "instructions")
	}
	return fields
}

// IsEmpty reports whether the update changes nothing.
func (u TemplateUpdate) IsEmpty() bool {
	return len(u.Fields()) == 0
}

// TemplateSortKey selects the list ordering column.
type TemplateSortKey string

const (
	SortByCreatedAt TemplateSortKey = "created_at"
	SortByUpdatedAt TemplateSortKey = "updated_at"
	SortByTitle     TemplateSortKey = "title"
)

// SortOrder is ascending or descending.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// TemplateListOptions filters and orders template listings.
type TemplateListOptions struct {
	UserID     string          // Only templates owned by this user (empty = all)
	ActiveOnly bool            // Exclude soft-deleted templates
	Search     string          // Case-insensitive title substring
	SortBy     TemplateSortKey // Defaults to created_at
	SortOrder  SortOrder       // Defaults to desc
	Page       int             // 1-based page; 0 disables paging
	PerPage    int             // Page size, defaults to 20 when paging
}

// Normalize fills defaults and rejects unknown sort settings.
func (o TemplateListOptions) Normalize() (TemplateListOptions, error) {
	validation := &ValidationErrors{}

	switch o.SortBy {
	case "":
		o.SortBy = SortByCreatedAt
	case SortByCreatedAt, SortByUpdatedAt, SortByTitle:
	default:
		validation.AddMessage("sort_by", "must be one of created_at, updated_at, title")
	}

	switch SortOrder(strings.ToLower(string(o.SortOrder))) {
	case "":
		o.SortOrder = SortDesc
	case SortAsc:
		o.SortOrder = SortAsc
	case SortDesc:
		o.SortOrder = SortDesc
	default:
		validation.AddMessage("sort_order", "must be asc or desc")
	}

	if o.Page < 0 {
		validation.AddMessage("page", "must not be negative")
	}
	if o.Page > 0 && o.PerPage <= 0 {
		o.PerPage = 20
	}

	return o, validation.Err()
}
