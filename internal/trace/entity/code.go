package entity

import "time"

// Code string namespaces. The prefix is how a raw scan payload is
// dispatched to the right handler without guessing.
const (
	UniqueCodePrefix = "SU"
	MasterCodePrefix = "SM"
)

// UniqueCode is the identity of one saleable unit.
type UniqueCode struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	Code      string    `json:"code" gorm:"size:32;uniqueIndex;not null"`
	BatchID   string    `json:"batch_id" gorm:"size:32;not null;index"`
	MasterID  *string   `json:"master_id" gorm:"size:32;index"`
	Status    string    `json:"status" gorm:"size:32;not null;default:generated;index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (UniqueCode) TableName() string {
	return "unique_codes"
}

// Unique code lifecycle. Transitions are monotonic along this order;
// the ledger service owns the transition table.
const (
	UniqueStatusGenerated = "generated"
	UniqueStatusScanned   = "scanned_by_manufacturer"
	UniqueStatusLinked    = "linked"
	UniqueStatusReceived  = "received_by_warehouse"
	UniqueStatusShipped   = "shipped"
	UniqueStatusValidated = "validated"
)

// MasterCode is the identity of one sealed case grouping many units.
type MasterCode struct {
	ID                string    `json:"id" gorm:"primaryKey;size:32"`
	Code              string    `json:"code" gorm:"size:32;uniqueIndex;not null"`
	BatchID           string    `json:"batch_id" gorm:"size:32;not null;index"`
	CaseNumber        int       `json:"case_number" gorm:"not null"`
	ExpectedUnitCount int       `json:"expected_unit_count" gorm:"not null"`
	ActualLinkedCount int       `json:"actual_linked_count" gorm:"not null;default:0"`
	Status            string    `json:"status" gorm:"size:32;not null;default:generated;index"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (MasterCode) TableName() string {
	return "master_codes"
}

const (
	MasterStatusGenerated = "generated"
	MasterStatusSealed    = "sealed"
	MasterStatusReceived  = "received_by_warehouse"
	MasterStatusShipped   = "shipped"
)

// CodeType tags a resolved scan payload.
const (
	CodeTypeUnique = "unique"
	CodeTypeMaster = "master"
)
