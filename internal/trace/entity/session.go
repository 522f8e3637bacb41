package entity

import "time"

// ShipmentSession is a bounded scanning window for one outbound handoff
// between two organizations.
type ShipmentSession struct {
	ID               string     `json:"id" gorm:"primaryKey;size:32"`
	OriginOrgID      string     `json:"origin_org_id" gorm:"size:32;not null;index"`
	DestinationOrgID string     `json:"destination_org_id" gorm:"size:32;not null;index"`
	OrderID          *string    `json:"order_id,omitempty" gorm:"size:32"`
	ExpectedQuantity int        `json:"expected_quantity" gorm:"not null;default:0"`
	Status           string     `json:"status" gorm:"size:20;not null;default:open;index"`
	OpenedBy         string     `json:"opened_by" gorm:"size:32"`
	OpenedAt         time.Time  `json:"opened_at"`
	ExpiresAt        time.Time  `json:"expires_at" gorm:"index"`
	ClosedAt         *time.Time `json:"closed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`

	Scans []SessionScan `json:"scans,omitempty" gorm:"foreignKey:SessionID"`
}

func (ShipmentSession) TableName() string {
	return "shipment_sessions"
}

const (
	SessionStatusOpen    = "open"
	SessionStatusClosed  = "closed"
	SessionStatusExpired = "expired"
)

// SessionScan is one accepted scan inside a session. The unique index on
// Code is the membership claim: a code can be held by at most one session
// at a time, enforced by the insert itself. Scanning a master inserts a
// ClaimOnly row for every unit inside the case, so a loose claim on a
// member and a claim on its case collide on the same index. Claims of
// expired sessions are deleted when the janitor releases them.
type SessionScan struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	SessionID string    `json:"session_id" gorm:"size:32;not null;index"`
	Code      string    `json:"code" gorm:"size:32;uniqueIndex;not null"`
	CodeType  string    `json:"code_type" gorm:"size:10;not null"`
	UnitCount int       `json:"unit_count" gorm:"not null"`
	ClaimOnly bool      `json:"claim_only" gorm:"not null;default:false"`
	ScannedBy string    `json:"scanned_by" gorm:"size:32"`
	CreatedAt time.Time `json:"created_at"`
}

func (SessionScan) TableName() string {
	return "session_scans"
}
