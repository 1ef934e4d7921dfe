package milk

import (
	"github.com/dukerupert/fampulse/internal/model"
	"github.com/dukerupert/fampulse/internal/recordstore"
)

func deliveryFromRow(r recordstore.Row) model.MilkDelivery {
	return model.MilkDelivery{
		ID:        r.String("id"),
		FamilyID:  r.String("family_id"),
		Date:      r.Date("delivery_date"),
		Quantity:  r.Float("quantity"),
		Cancelled: r.Bool("cancelled"),
	}
}

func defaultsFromRow(r recordstore.Row) model.MilkDefaults {
	return model.MilkDefaults{
		FamilyID:             r.String("family_id"),
		DefaultQuantity:      r.Float("default_quantity"),
		PacketPrice:          r.Float("packet_price"),
		DeliveryChargeType:   model.ChargeType(r.String("delivery_charge_type")),
		DeliveryChargeAmount: r.Float("delivery_charge_amount"),
		VendorContact:        r.String("vendor_contact"),
		UpdatedAt:            r.Time("updated_at"),
	}
}

func paymentFromRow(r recordstore.Row) model.MilkPayment {
	return model.MilkPayment{
		ID:                  r.String("id"),
		FamilyID:            r.String("family_id"),
		PaymentDate:         r.Date("payment_date"),
		Amount:              r.Float("amount"),
		FromDate:            r.Date("from_date"),
		ToDate:              r.Date("to_date"),
		AdvanceBalanceAfter: r.Float("advance_balance_after"),
		CreatedAt:           r.Time("created_at"),
	}
}
