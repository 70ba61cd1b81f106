// Package testdb opens isolated sqlite databases migrated with every model and
// seeds common fixtures for package tests.
package testdb

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/orderflow/pkg/db"
	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	"github.com/angelmondragon/orderflow/pkg/types"
)

// Open returns a client backed by a private in-memory database. The pool is
// pinned to one connection so the database lives as long as the test.
func Open(t testing.TB) *db.Client {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction:                   true,
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db.Wrap(conn)
}

// D parses a decimal literal and panics on malformed input.
func D(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

// Fixture seeds rows through the raw connection.
type Fixture struct {
	t  testing.TB
	DB *gorm.DB
}

func NewFixture(t testing.TB, client *db.Client) *Fixture {
	return &Fixture{t: t, DB: client.DB()}
}

func (f *Fixture) create(value any) {
	f.t.Helper()
	if err := f.DB.Omit(clause.Associations).Create(value).Error; err != nil {
		f.t.Fatalf("seed %T: %v", value, err)
	}
}

func (f *Fixture) Variant(sku, price string, trackInventory bool) *models.Variant {
	f.t.Helper()
	v := &models.Variant{SKU: sku, Price: D(price), TrackInventory: trackInventory}
	f.create(v)
	return v
}

func (f *Fixture) Location(name string, active bool) *models.StockLocation {
	f.t.Helper()
	loc := &models.StockLocation{Name: name, Active: active, Country: "US"}
	f.create(loc)
	return loc
}

func (f *Fixture) StockItem(loc *models.StockLocation, v *models.Variant, countOnHand int, backorderable bool) *models.StockItem {
	f.t.Helper()
	item := &models.StockItem{StockLocationID: loc.ID, VariantID: v.ID, CountOnHand: countOnHand, Backorderable: backorderable}
	f.create(item)
	return item
}

// Line describes one line item of a seeded order.
type Line struct {
	Variant       *models.Variant
	Quantity      int
	AdditionalTax string
	IncludedTax   string
}

// Order seeds a completed order with one inventory unit per purchased
// quantity, all on hand and unpacked.
func (f *Fixture) Order(lines ...Line) *models.Order {
	f.t.Helper()
	now := time.Now().UTC()
	order := &models.Order{
		Number:      "R" + uuid.NewString()[:9],
		State:       enums.OrderStateComplete,
		Currency:    enums.CurrencyUSD,
		ShipAddress: types.Address{Line1: "1 Main St", City: "Springfield", State: "IL", PostalCode: "62701", Country: "US"},
		CompletedAt: &now,
	}
	f.create(order)

	total := decimal.Zero
	for _, line := range lines {
		li := models.LineItem{
			OrderID:            order.ID,
			VariantID:          line.Variant.ID,
			Quantity:           line.Quantity,
			Price:              line.Variant.Price,
			AdditionalTaxTotal: decimalOrZero(line.AdditionalTax),
			IncludedTaxTotal:   decimalOrZero(line.IncludedTax),
		}
		f.create(&li)
		li.Variant = line.Variant
		order.LineItems = append(order.LineItems, li)
		total = total.Add(li.PreTaxAmount()).Add(li.AdditionalTaxTotal)

		for i := 0; i < line.Quantity; i++ {
			unit := models.InventoryUnit{
				OrderID:    order.ID,
				VariantID:  line.Variant.ID,
				LineItemID: li.ID,
				State:      enums.InventoryUnitOnHand,
			}
			f.create(&unit)
			order.InventoryUnits = append(order.InventoryUnits, unit)
		}
	}

	order.Total = total
	if err := f.DB.Model(order).Update("total", total).Error; err != nil {
		f.t.Fatalf("update order total: %v", err)
	}
	return order
}

// Ship places every unit of order into one shipped shipment at loc.
func (f *Fixture) Ship(order *models.Order, loc *models.StockLocation) *models.Shipment {
	f.t.Helper()
	now := time.Now().UTC()
	shipment := &models.Shipment{
		Number:          fmt.Sprintf("H%011d", uuid.New().ID()),
		OrderID:         order.ID,
		StockLocationID: loc.ID,
		Address:         order.ShipAddress,
		State:           enums.ShipmentShipped,
		ShippedAt:       &now,
	}
	f.create(shipment)
	if err := f.DB.Model(&models.InventoryUnit{}).
		Where("order_id = ?", order.ID).
		Updates(map[string]any{"shipment_id": shipment.ID, "state": enums.InventoryUnitShipped}).Error; err != nil {
		f.t.Fatalf("ship units: %v", err)
	}
	for i := range order.InventoryUnits {
		order.InventoryUnits[i].ShipmentID = &shipment.ID
		order.InventoryUnits[i].State = enums.InventoryUnitShipped
	}
	return shipment
}

func (f *Fixture) Payment(order *models.Order, amount string) *models.Payment {
	f.t.Helper()
	payment := &models.Payment{OrderID: order.ID, Amount: D(amount), State: enums.PaymentCompleted, PaymentMethod: "credit_card"}
	f.create(payment)
	return payment
}

func (f *Fixture) RefundReason(name string) *models.RefundReason {
	f.t.Helper()
	reason := &models.RefundReason{Name: name, Active: true}
	f.create(reason)
	return reason
}

// Refund records a standalone refund directly, bypassing the refund service.
func (f *Fixture) Refund(payment *models.Payment, reason *models.RefundReason, amount string) *models.Refund {
	f.t.Helper()
	refund := &models.Refund{PaymentID: payment.ID, RefundReasonID: reason.ID, Amount: D(amount)}
	f.create(refund)
	return refund
}

func (f *Fixture) ShippingMethod(code string, kind enums.CalculatorKind, amount string, locations ...uuid.UUID) *models.ShippingMethod {
	f.t.Helper()
	method := &models.ShippingMethod{
		Name:             code,
		Code:             code,
		CalculatorKind:   kind,
		CalculatorAmount: D(amount),
		StockLocationIDs: locations,
	}
	f.create(method)
	return method
}

// Reload refreshes dest (a pointer to a model with an ID) from the database.
func (f *Fixture) Reload(dest any) {
	f.t.Helper()
	if err := f.DB.First(dest).Error; err != nil {
		f.t.Fatalf("reload %T: %v", dest, err)
	}
}

func decimalOrZero(value string) decimal.Decimal {
	if value == "" {
		return decimal.Zero
	}
	return D(value)
}

// Authorization seeds an authorized return authorization for order.
func (f *Fixture) Authorization(order *models.Order, loc *models.StockLocation) *models.ReturnAuthorization {
	f.t.Helper()
	ra := &models.ReturnAuthorization{
		Number:          fmt.Sprintf("RA%09d", uuid.New().ID()%1000000000),
		OrderID:         order.ID,
		StockLocationID: loc.ID,
		State:           enums.ReturnAuthorizationAuthorized,
	}
	f.create(ra)
	return ra
}

// ReturnItem seeds a return item for unit under ra (which may be nil) with
// the given pre-tax amount and acceptance status.
func (f *Fixture) ReturnItem(ra *models.ReturnAuthorization, unit models.InventoryUnit, preTax string, acceptance enums.AcceptanceStatus) *models.ReturnItem {
	f.t.Helper()
	item := &models.ReturnItem{
		InventoryUnitID:  unit.ID,
		PreTaxAmount:     D(preTax),
		ReceptionStatus:  enums.ReceptionAwaiting,
		AcceptanceStatus: acceptance,
	}
	if ra != nil {
		item.ReturnAuthorizationID = &ra.ID
	}
	f.create(item)
	return item
}
