package model

import "time"

// ChargeType selects how the vendor's delivery charge is applied.
type ChargeType string

const (
	ChargePerPacket ChargeType = "per_packet"
	ChargeMonthly   ChargeType = "monthly"
)

func (c ChargeType) Valid() bool { return c == ChargePerPacket || c == ChargeMonthly }

// MilkDelivery is one calendar day of the delivery schedule. A day with no
// row was not delivered; a cancelled row was explicitly skipped.
type MilkDelivery struct {
	ID        string    `json:"id"`
	FamilyID  string    `json:"family_id"`
	Date      time.Time `json:"delivery_date"`
	Quantity  float64   `json:"quantity"`
	Cancelled bool      `json:"cancelled"`
}

// MilkDefaults is the per-family delivery configuration.
type MilkDefaults struct {
	FamilyID             string     `json:"family_id"`
	DefaultQuantity      float64    `json:"default_quantity"`
	PacketPrice          float64    `json:"packet_price"`
	DeliveryChargeType   ChargeType `json:"delivery_charge_type"`
	DeliveryChargeAmount float64    `json:"delivery_charge_amount"`
	VendorContact        string     `json:"vendor_contact,omitempty"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// MilkPayment settles the deliveries of [FromDate, ToDate].
type MilkPayment struct {
	ID                  string    `json:"id"`
	FamilyID            string    `json:"family_id"`
	PaymentDate         time.Time `json:"payment_date"`
	Amount              float64   `json:"amount"`
	FromDate            time.Time `json:"from_date"`
	ToDate              time.Time `json:"to_date"`
	AdvanceBalanceAfter float64   `json:"advance_balance_after"`
	CreatedAt           time.Time `json:"created_at"`
}

// MilkAdvance is the family's prepaid balance.
type MilkAdvance struct {
	FamilyID  string    `json:"family_id"`
	Balance   float64   `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}
