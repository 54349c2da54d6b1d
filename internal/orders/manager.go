package orders

import (
	"context"
	"log"
	"time"

	"kite-gateway/internal/apierr"
	"kite-gateway/internal/model"
)

var (
	validTransactionTypes = map[string]bool{"BUY": true, "SELL": true}
	validOrderTypes       = map[string]bool{"MARKET": true, "LIMIT": true, "SL": true, "SL-M": true}
	validProducts         = map[string]bool{"CNC": true, "MIS": true, "NRML": true, "BO": true}
)

// Manager validates order requests and delegates them to the broker.
// Local state is only touched after a broker ack.
type Manager struct {
	broker model.BrokerClient
	store  *Store
}

// NewManager creates an order manager backed by the given store.
func NewManager(broker model.BrokerClient, store *Store) *Manager {
	return &Manager{broker: broker, store: store}
}

// Store exposes the local order store for the watcher and read endpoints.
func (m *Manager) Store() *Store { return m.store }

// Validate checks a normalized order request. Runs before any network call.
func Validate(req model.OrderRequest) error {
	if req.TradingSymbol == "" || req.Exchange == "" {
		return apierr.E(apierr.KindValidation, "invalid order request: missing symbol or exchange")
	}
	if req.Qty <= 0 {
		return apierr.E(apierr.KindValidation, "invalid order request: quantity must be > 0")
	}
	if !validTransactionTypes[req.TransactionType] {
		return apierr.Ef(apierr.KindValidation, "invalid order request: transaction_type %q", req.TransactionType)
	}
	if !validOrderTypes[req.OrderType] {
		return apierr.Ef(apierr.KindValidation, "invalid order request: order_type %q", req.OrderType)
	}
	if !validProducts[req.Product] {
		return apierr.Ef(apierr.KindValidation, "invalid order request: product %q", req.Product)
	}
	if req.OrderType == "LIMIT" && req.Price <= 0 {
		return apierr.E(apierr.KindValidation, "invalid order request: LIMIT needs price > 0")
	}
	if (req.OrderType == "SL" || req.OrderType == "SL-M") && req.TriggerPrice <= 0 {
		return apierr.E(apierr.KindValidation, "invalid order request: SL needs trigger_price > 0")
	}
	if req.Product == "BO" && (req.Stoploss <= 0 || req.Squareoff <= 0) {
		return apierr.E(apierr.KindValidation, "invalid order request: BO needs stoploss and squareoff > 0")
	}
	return nil
}

// normalizeVariety fills the broker variety from the product when absent:
// bracket orders go out on the bo variety, everything else is regular.
func normalizeVariety(req *model.OrderRequest) {
	if req.Variety != "" {
		return
	}
	if req.Product == "BO" {
		req.Variety = "bo"
	} else {
		req.Variety = "regular"
	}
}

// Place validates and submits a new order. On broker ack a local record
// with status PENDING is registered; on broker failure no record is
// created.
func (m *Manager) Place(ctx context.Context, req model.OrderRequest) (model.Order, error) {
	if err := Validate(req); err != nil {
		return model.Order{}, err
	}
	normalizeVariety(&req)

	orderID, err := m.broker.PlaceOrder(ctx, req)
	if err != nil {
		return model.Order{}, apierr.Wrap(apierr.KindBroker, "broker rejected order", err)
	}

	now := time.Now()
	order := model.Order{
		OrderID:         orderID,
		Exchange:        req.Exchange,
		TradingSymbol:   req.TradingSymbol,
		TransactionType: req.TransactionType,
		OrderType:       req.OrderType,
		Product:         req.Product,
		Variety:         req.Variety,
		Qty:             req.Qty,
		Price:           req.Price,
		TriggerPrice:    req.TriggerPrice,
		Status:          model.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	m.store.Put(order)
	log.Printf("[orders] placed %s %s %s qty=%d order_id=%s",
		req.TransactionType, req.Exchange, req.TradingSymbol, req.Qty, orderID)
	return order, nil
}

// Modify validates and submits an amendment for an open order. The local
// record's mutable fields are updated only after the broker ack; status
// is left for the watcher to observe.
func (m *Manager) Modify(ctx context.Context, orderID string, req model.OrderRequest) error {
	if orderID == "" {
		return apierr.E(apierr.KindValidation, "invalid order request: missing order_id")
	}
	if err := Validate(req); err != nil {
		return err
	}
	normalizeVariety(&req)

	if err := m.broker.ModifyOrder(ctx, req.Variety, orderID, req); err != nil {
		return apierr.Wrap(apierr.KindBroker, "broker rejected modify", err)
	}

	if o, ok := m.store.Get(orderID); ok {
		o.Qty = req.Qty
		o.Price = req.Price
		o.TriggerPrice = req.TriggerPrice
		o.OrderType = req.OrderType
		o.UpdatedAt = time.Now()
		m.store.Put(o)
	}
	log.Printf("[orders] modified order_id=%s qty=%d price=%v", orderID, req.Qty, req.Price)
	return nil
}

// Cancel submits a cancellation. The local status is not flipped here;
// the watcher picks up CANCELLED from the broker and notifies subscribers.
func (m *Manager) Cancel(ctx context.Context, orderID string) error {
	if orderID == "" {
		return apierr.E(apierr.KindValidation, "invalid order request: missing order_id")
	}

	variety := "regular"
	if o, ok := m.store.Get(orderID); ok && o.Variety != "" {
		variety = o.Variety
	}

	if err := m.broker.CancelOrder(ctx, variety, orderID); err != nil {
		return apierr.Wrap(apierr.KindBroker, "broker rejected cancel", err)
	}
	log.Printf("[orders] cancel requested order_id=%s", orderID)
	return nil
}
