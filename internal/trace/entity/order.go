package entity

import "time"

// Order and the records below are boundary entities: their lifecycle is
// owned by the upstream catalog/order system. The engine only reads them
// (quantities, product info) and flips the order status once a batch
// exists for it.
type Order struct {
	ID          string      `json:"id" gorm:"primaryKey;size:32"`
	OrderNo     string      `json:"order_no" gorm:"size:32;uniqueIndex;not null"`
	BuyerOrgID  string      `json:"buyer_org_id" gorm:"size:32;index"`
	Status      string      `json:"status" gorm:"size:20;not null;default:draft"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`

	Items []OrderItem `json:"items,omitempty" gorm:"foreignKey:OrderID"`
}

func (Order) TableName() string {
	return "orders"
}

const (
	OrderStatusDraft          = "draft"
	OrderStatusApproved       = "approved"
	OrderStatusBatchGenerated = "batch_generated"
)

type OrderItem struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	OrderID     string    `json:"order_id" gorm:"size:32;not null;index"`
	ProductID   string    `json:"product_id" gorm:"size:32"`
	ProductName string    `json:"product_name" gorm:"size:200;not null"`
	Quantity    int       `json:"quantity" gorm:"not null"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (OrderItem) TableName() string {
	return "order_items"
}

// Organization is an actor in the handoff chain.
type Organization struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	Name      string    `json:"name" gorm:"size:200;not null"`
	Type      string    `json:"type" gorm:"size:20;not null"` // manufacturer/warehouse/distributor
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Organization) TableName() string {
	return "organizations"
}

const (
	OrgTypeManufacturer = "manufacturer"
	OrgTypeWarehouse    = "warehouse"
	OrgTypeDistributor  = "distributor"
)
