// Package domain contains invoice numbering models.
package domain

import (
	"errors"
	"time"
)

// Series is a monotonic per-series counter for invoice numbers.
// The template drives formatting; the suffix is appended to the
// formatted value (e.g. a store code).
type Series struct {
	ID       string `gorm:"primaryKey;type:text"`
	Template string `gorm:"type:text;not null"`
	Suffix   string `gorm:"type:text"`
	Counter  int64  `gorm:"not null;default:0"`

	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Series) TableName() string { return "invoice_series" }

// InvoiceNumber is an assigned invoice number. Once committed to an
// order it is never regenerated.
type InvoiceNumber struct {
	Value  string
	Suffix string
}

// Full returns the number with its series suffix appended.
func (n InvoiceNumber) Full() string { return n.Value + n.Suffix }

// Filename computes the artifact filename for the given extension.
func (n InvoiceNumber) Filename(ext string) string { return n.Full() + "." + ext }

var (
	ErrSeriesNotFound = errors.New("invoice_series_not_found")

	// ErrNumberInUse surfaces a unique-index collision: the generated
	// value is already committed to another order.
	ErrNumberInUse = errors.New("invoice_number_in_use")
)
