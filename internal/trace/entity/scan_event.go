package entity

import "time"

// ScanEvent is the append-only audit fact. Rows are never updated or
// deleted; the ledger is the sole source of truth for "has this code been
// scanned for purpose X".
type ScanEvent struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	Code        string    `json:"code" gorm:"size:32;not null;index"`
	CodeType    string    `json:"code_type" gorm:"size:10;not null"`
	ScanType    string    `json:"scan_type" gorm:"size:32;not null;index"`
	BatchID     string    `json:"batch_id" gorm:"size:32;index"`
	ActorOrgID  string    `json:"actor_org_id" gorm:"size:32"`
	ActorUserID string    `json:"actor_user_id" gorm:"size:32"`
	SessionID   *string   `json:"session_id,omitempty" gorm:"size:32;index"`
	CreatedAt   time.Time `json:"created_at"`
}

func (ScanEvent) TableName() string {
	return "scan_events"
}

const (
	ScanTypeManufacturer = "scan_unique"
	ScanTypeLink         = "link"
	ScanTypeReceive      = "receive"
	ScanTypeShipment     = "scan_for_shipment"
	ScanTypeValidate     = "validate"
)
