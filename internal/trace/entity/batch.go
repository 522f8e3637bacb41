package entity

import "time"

// Batch is one code-generation run, tied 1:1 to an order. Immutable once
// generated except for status, the artifact reference and the progress
// counters maintained by the reconciliation steps.
type Batch struct {
	ID               string    `json:"id" gorm:"primaryKey;size:32"`
	OrderID          string    `json:"order_id" gorm:"size:32;uniqueIndex;not null"`
	OrgID            string    `json:"org_id" gorm:"size:32;index"`
	TotalMasterCodes int       `json:"total_master_codes" gorm:"not null"`
	TotalUniqueCodes int       `json:"total_unique_codes" gorm:"not null"`
	BufferPercent    int       `json:"buffer_percent" gorm:"not null"`
	UnitsPerCase     int       `json:"units_per_case" gorm:"not null"`
	Status           string    `json:"status" gorm:"size:20;not null;default:generated"`
	ArtifactKey      string    `json:"artifact_key" gorm:"size:256"`

	// Progress counters, unit granularity.
	LinkedUnitCount   int `json:"linked_unit_count" gorm:"not null;default:0"`
	ReceivedUnitCount int `json:"received_unit_count" gorm:"not null;default:0"`
	ShippedUnitCount  int `json:"shipped_unit_count" gorm:"not null;default:0"`

	GeneratedBy string    `json:"generated_by" gorm:"size:32"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Batch) TableName() string {
	return "batches"
}

const (
	BatchStatusGenerated     = "generated"
	BatchStatusArtifactReady = "artifact_ready"
)
