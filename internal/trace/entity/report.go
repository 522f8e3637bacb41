package entity

import "time"

// ValidationReport compares expected vs actually scanned quantity at a
// handoff boundary. Rows are immutable after creation; a correction is a
// new report, never an update.
type ValidationReport struct {
	ID               string    `json:"id" gorm:"primaryKey;size:32"`
	Type             string    `json:"type" gorm:"size:20;not null;index"`
	BatchID          *string   `json:"batch_id,omitempty" gorm:"size:32;index"`
	SessionID        *string   `json:"session_id,omitempty" gorm:"size:32;index"`
	OriginOrgID      string    `json:"origin_org_id" gorm:"size:32"`
	DestinationOrgID string    `json:"destination_org_id" gorm:"size:32"`
	ExpectedQuantity int       `json:"expected_quantity" gorm:"not null"`
	ScannedQuantity  int       `json:"scanned_quantity" gorm:"not null"`
	IsMatched        bool      `json:"is_matched" gorm:"not null"`
	Discrepancy      int       `json:"discrepancy" gorm:"not null"`
	OverrideApproved bool      `json:"override_approved" gorm:"not null;default:false"`
	Notes            string    `json:"notes" gorm:"size:500"`
	CreatedBy        string    `json:"created_by" gorm:"size:32"`
	CreatedAt        time.Time `json:"created_at"`
}

func (ValidationReport) TableName() string {
	return "validation_reports"
}

const (
	ReportTypeShipment  = "shipment"
	ReportTypeReceiving = "receiving"
)
