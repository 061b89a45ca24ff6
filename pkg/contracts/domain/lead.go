package domain

import (
	"time"
)

// Document is the original uploaded workbook, kept as an auditable trace of
// the import attempt. Immutable once created; owns zero or more Leads.
type Document struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Content     []byte    `json:"-"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// Lead is the aggregate root of one import row in the BASE sheet.
// CreatedAt and Sold are nullable: the source sheets are free-text,
// human-entered, and both columns may be blank or unrecognized.
type Lead struct {
	// ID is the storage identity, assigned by the persistence layer.
	ID int64 `json:"id"`
	// LeadID is the business key, unique within one import.
	LeadID    string     `json:"lead_id"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	Sold      *bool      `json:"sold,omitempty"`
	Document  *Document  `json:"-"`
}

// Market is a market-segment fact attached to exactly one Lead.
type Market struct {
	Name string `json:"name"`
	Lead *Lead  `json:"-"`
}

// Source is an acquisition-channel fact. SubSource may be empty.
type Source struct {
	Name      string `json:"name"`
	SubSource string `json:"sub_source,omitempty"`
	Lead      *Lead  `json:"-"`
}

// Location is a geographic fact attached to exactly one Lead.
type Location struct {
	Name string `json:"name"`
	Lead *Lead  `json:"-"`
}

// Size is a company-size fact attached to exactly one Lead.
type Size struct {
	Range string `json:"range"`
	Lead  *Lead  `json:"-"`
}

// Objective is a stated-intent fact attached to exactly one Lead.
type Objective struct {
	Description string `json:"description"`
	Lead        *Lead  `json:"-"`
}

// Upload carries an inbound file across the transport boundary.
type Upload struct {
	Name        string
	ContentType string
	Content     []byte
}

// IsEmpty reports whether the upload carries no bytes.
func (u Upload) IsEmpty() bool {
	return len(u.Content) == 0
}
