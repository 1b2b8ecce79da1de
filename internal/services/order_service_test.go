package services_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"kriptoko/internal/models"
	"kriptoko/internal/repositories"
	"kriptoko/internal/services"
	"kriptoko/pkg/nowpayments"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway is a programmable PaymentGateway for service tests.
type fakeGateway struct {
	mu               sync.Mutex
	createInvoiceFn  func(orderID string, amount float64, currency string) (*nowpayments.Invoice, error)
	queryStatusFn    func(invoiceID string) (*nowpayments.PaymentUpdate, error)
	createCalls      int
	queryStatusCalls int
}

func (g *fakeGateway) CreateInvoice(ctx context.Context, orderID string, amount float64, currency string) (*nowpayments.Invoice, error) {
	g.mu.Lock()
	g.createCalls++
	fn := g.createInvoiceFn
	g.mu.Unlock()
	if fn != nil {
		return fn(orderID, amount, currency)
	}
	return &nowpayments.Invoice{
		InvoiceID:     "inv-" + orderID,
		OrderID:       orderID,
		PayAddress:    "bc1qtestaddress",
		PayAmount:     amount,
		PayCurrency:   "btc",
		PriceAmount:   amount,
		PriceCurrency: currency,
		PaymentURI:    nowpayments.PaymentURI("btc", "bc1qtestaddress", amount),
	}, nil
}

func (g *fakeGateway) QueryStatus(ctx context.Context, invoiceID string) (*nowpayments.PaymentUpdate, error) {
	g.mu.Lock()
	g.queryStatusCalls++
	fn := g.queryStatusFn
	g.mu.Unlock()
	if fn != nil {
		return fn(invoiceID)
	}
	return &nowpayments.PaymentUpdate{InvoiceID: invoiceID, Status: "waiting"}, nil
}

// recordingPublisher captures settlement messages instead of talking to a broker.
type recordingPublisher struct {
	mu       sync.Mutex
	messages []publishedMessage
}

type publishedMessage struct {
	RoutingKey string
	Body       []byte
}

func (p *recordingPublisher) Publish(routingKey string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, publishedMessage{RoutingKey: routingKey, Body: body})
	return nil
}

func (p *recordingPublisher) byKey(routingKey string) []publishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishedMessage
	for _, msg := range p.messages {
		if msg.RoutingKey == routingKey {
			out = append(out, msg)
		}
	}
	return out
}

// testEnv wires the full service graph onto in-memory repositories.
type testEnv struct {
	products     *repositories.MockProductRepository
	orders       *repositories.MockOrderRepository
	payments     *repositories.MockPaymentRepository
	reservations *repositories.MockReservationRepository
	settlements  *repositories.MockSettlementRepository
	users        *repositories.MockUserRepository
	gateway      *fakeGateway
	publisher    *recordingPublisher
	inventory    *services.InventoryService
	settlement   *services.SettlementService
	orderSvc     *services.OrderService
	reconciler   *services.ReconcilerService
}

func newTestEnv(t *testing.T, cfg services.OrderServiceConfig, tolerance float64) *testEnv {
	t.Helper()
	env := &testEnv{
		products:     repositories.NewMockProductRepository(),
		orders:       repositories.NewMockOrderRepository(),
		payments:     repositories.NewMockPaymentRepository(),
		reservations: repositories.NewMockReservationRepository(),
		settlements:  repositories.NewMockSettlementRepository(),
		users:        repositories.NewMockUserRepository(),
		gateway:      &fakeGateway{},
		publisher:    &recordingPublisher{},
	}
	env.inventory = services.NewInventoryService(env.products, env.reservations)
	env.settlement = services.NewSettlementService(env.settlements, env.users, env.publisher, 1.0)
	env.orderSvc = services.NewOrderService(
		env.orders, env.payments, env.products, env.reservations,
		env.inventory, env.gateway, env.settlement, cfg,
	)
	env.reconciler = services.NewReconcilerService(env.payments, env.orderSvc, env.gateway, env.settlement, tolerance)

	require.NoError(t, env.users.Create(&models.User{
		ID:       "user-1",
		Username: "satoshi",
		Email:    "satoshi@example.com",
		Password: "hashed",
	}))
	seedProduct(t, env.products, "prod-1", 25.0, 10)
	seedProduct(t, env.products, "prod-2", 5.0, 3)
	return env
}

func (env *testEnv) createOrder(t *testing.T, items ...models.OrderItem) (*models.Order, *models.Payment) {
	t.Helper()
	order, payment, err := env.orderSvc.CreateOrder(context.Background(), "user-1", items)
	require.NoError(t, err)
	return order, payment
}

func TestOrderService_CreateOrder(t *testing.T) {
	env := newTestEnv(t, services.OrderServiceConfig{Currency: "usd"}, 0)

	order, payment := env.createOrder(t,
		models.OrderItem{ProductID: "prod-1", Quantity: 2},
		models.OrderItem{ProductID: "prod-2", Quantity: 1},
	)

	assert.Equal(t, models.OrderStatusPendingPayment, order.Status)
	assert.Equal(t, 55.0, order.TotalAmount)
	assert.Len(t, order.Items, 2)
	assert.True(t, order.PaymentDeadline.After(time.Now()))

	assert.Equal(t, "inv-"+order.ID, payment.InvoiceID)
	assert.Equal(t, models.PaymentStatusCreated, payment.Status)
	assert.Equal(t, 55.0, payment.PriceAmount)
	assert.NotEmpty(t, payment.PaymentURI)

	// Stock is held, not consumed.
	assertCounters(t, env.products, "prod-1", 10, 2)
	assertCounters(t, env.products, "prod-2", 3, 1)

	reservation, err := env.reservations.GetByOrderID(order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusHeld, reservation.Status)
}

func TestOrderService_CreateOrderCollapsesDuplicateLines(t *testing.T) {
	env := newTestEnv(t, services.OrderServiceConfig{}, 0)

	order, _ := env.createOrder(t,
		models.OrderItem{ProductID: "prod-1", Quantity: 1},
		models.OrderItem{ProductID: "prod-1", Quantity: 2},
	)

	require.Len(t, order.Items, 1)
	assert.Equal(t, 3, order.Items[0].Quantity)
	assertCounters(t, env.products, "prod-1", 10, 3)
}

func TestOrderService_CreateOrderInsufficientStock(t *testing.T) {
	env := newTestEnv(t, services.OrderServiceConfig{}, 0)

	_, _, err := env.orderSvc.CreateOrder(context.Background(), "user-1",
		[]models.OrderItem{{ProductID: "prod-2", Quantity: 4}})
	assert.ErrorIs(t, err, services.ErrInsufficientStock)

	// No order, no invoice, no hold.
	orders, err := env.orders.GetAll()
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Equal(t, 0, env.gateway.createCalls)
	assertCounters(t, env.products, "prod-2", 3, 0)
}

func TestOrderService_CreateOrderUnwindsOnGatewayFailure(t *testing.T) {
	env := newTestEnv(t, services.OrderServiceConfig{}, 0)
	env.gateway.createInvoiceFn = func(string, float64, string) (*nowpayments.Invoice, error) {
		return nil, nowpayments.ErrGatewayUnavailable
	}

	_, _, err := env.orderSvc.CreateOrder(context.Background(), "user-1",
		[]models.OrderItem{{ProductID: "prod-1", Quantity: 2}})
	assert.ErrorIs(t, err, nowpayments.ErrGatewayUnavailable)

	// The hold and the order record are both rolled back.
	assertCounters(t, env.products, "prod-1", 10, 0)
	orders, listErr := env.orders.GetAll()
	require.NoError(t, listErr)
	assert.Empty(t, orders)
}

func TestOrderService_TransitionRejectsOffTableMoves(t *testing.T) {
	env := newTestEnv(t, services.OrderServiceConfig{}, 0)
	order, _ := env.createOrder(t, models.OrderItem{ProductID: "prod-1", Quantity: 1})

	err := env.orderSvc.Transition(order.ID, models.OrderStatusCompleted, "test")
	assert.ErrorIs(t, err, services.ErrInvalidTransition)

	err = env.orderSvc.Transition(order.ID, models.OrderStatusRefunded, "test")
	assert.ErrorIs(t, err, services.ErrInvalidTransition)

	got, err := env.orders.GetByID(order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPendingPayment, got.Status)
}

func TestOrderService_TransitionSameStatusIsIdempotent(t *testing.T) {
	env := newTestEnv(t, services.OrderServiceConfig{}, 0)
	order, _ := env.createOrder(t, models.OrderItem{ProductID: "prod-1", Quantity: 1})

	require.NoError(t, env.orderSvc.Transition(order.ID, models.OrderStatusPaid, "test"))
	require.NoError(t, env.orderSvc.Transition(order.ID, models.OrderStatusPaid, "redelivery"))

	// The commit and the settlement happened exactly once.
	assertCounters(t, env.products, "prod-1", 9, 0)
	events, err := env.settlements.GetByOrderID(order.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Len(t, env.publisher.byKey("order.paid"), 1)
}

func TestOrderService_TransitionToPaidCommitsAndSettles(t *testing.T) {
	env := newTestEnv(t, services.OrderServiceConfig{}, 0)
	order, _ := env.createOrder(t, models.OrderItem{ProductID: "prod-1", Quantity: 2})

	require.NoError(t, env.orderSvc.Transition(order.ID, models.OrderStatusPaid, "payment finished"))

	assertCounters(t, env.products, "prod-1", 8, 0)
	reservation, err := env.reservations.GetByOrderID(order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusCommitted, reservation.Status)

	events, err := env.settlements.GetByOrderID(order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.SettlementPaid, events[0].Kind)
	assert.Equal(t, 50.0, events[0].Amount)

	// Loyalty points accrue at the configured rate.
	user, err := env.users.GetByID("user-1")
	require.NoError(t, err)
	assert.Equal(t, 50, user.LoyaltyPoints)
	assert.Equal(t, 50.0, user.TotalSpent)
	assert.Equal(t, 1, user.TotalOrders)
}

func TestOrderService_TransitionToExpiredReleasesHold(t *testing.T) {
	env := newTestEnv(t, services.OrderServiceConfig{}, 0)
	order, _ := env.createOrder(t, models.OrderItem{ProductID: "prod-1", Quantity: 2})

	require.NoError(t, env.orderSvc.Transition(order.ID, models.OrderStatusExpired, "deadline passed"))

	assertCounters(t, env.products, "prod-1", 10, 0)
	events, err := env.settlements.GetByOrderID(order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.SettlementExpired, events[0].Kind)
}

func TestOrderService_RefundWithRestock(t *testing.T) {
	env := newTestEnv(t, services.OrderServiceConfig{RestockOnRefund: true}, 0)
	order, _ := env.createOrder(t, models.OrderItem{ProductID: "prod-1", Quantity: 2})

	require.NoError(t, env.orderSvc.Transition(order.ID, models.OrderStatusPaid, "payment finished"))
	assertCounters(t, env.products, "prod-1", 8, 0)

	require.NoError(t, env.orderSvc.Transition(order.ID, models.OrderStatusRefundRequested, "customer request"))
	require.NoError(t, env.orderSvc.Transition(order.ID, models.OrderStatusRefunded, "gateway confirmed"))

	// Committed stock returns to the shelf.
	assertCounters(t, env.products, "prod-1", 10, 0)
	events, err := env.settlements.GetByOrderID(order.ID)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestOrderService_RefundWithoutRestock(t *testing.T) {
	env := newTestEnv(t, services.OrderServiceConfig{}, 0)
	order, _ := env.createOrder(t, models.OrderItem{ProductID: "prod-1", Quantity: 2})

	require.NoError(t, env.orderSvc.Transition(order.ID, models.OrderStatusPaid, "payment finished"))
	require.NoError(t, env.orderSvc.Transition(order.ID, models.OrderStatusRefundRequested, "customer request"))
	require.NoError(t, env.orderSvc.Transition(order.ID, models.OrderStatusRefunded, "gateway confirmed"))

	// Stock stays consumed; refunded digital goods are not resellable.
	assertCounters(t, env.products, "prod-1", 8, 0)
}

func TestOrderService_CancelOrder(t *testing.T) {
	env := newTestEnv(t, services.OrderServiceConfig{}, 0)
	order, _ := env.createOrder(t, models.OrderItem{ProductID: "prod-1", Quantity: 1})

	err := env.orderSvc.CancelOrder(order.ID, "someone-else")
	require.Error(t, err)
	assert.NotErrorIs(t, err, services.ErrInvalidTransition)

	require.NoError(t, env.orderSvc.CancelOrder(order.ID, "user-1"))
	got, err := env.orders.GetByID(order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, got.Status)
	assertCounters(t, env.products, "prod-1", 10, 0)

	// A paid order can no longer be cancelled.
	order2, _ := env.createOrder(t, models.OrderItem{ProductID: "prod-1", Quantity: 1})
	require.NoError(t, env.orderSvc.Transition(order2.ID, models.OrderStatusPaid, "test"))
	err = env.orderSvc.CancelOrder(order2.ID, "user-1")
	assert.ErrorIs(t, err, services.ErrInvalidTransition)
}

// staleReadOrderRepo lets another writer slip in between a transition's
// status read and its status write, by running a one-shot hook after GetByID.
type staleReadOrderRepo struct {
	repositories.OrderRepository
	mu        sync.Mutex
	afterRead func()
}

func (r *staleReadOrderRepo) GetByID(id string) (*models.Order, error) {
	order, err := r.OrderRepository.GetByID(id)
	r.mu.Lock()
	hook := r.afterRead
	r.afterRead = nil
	r.mu.Unlock()
	if hook != nil {
		hook()
	}
	return order, err
}

func TestOrderService_TransitionLosesRaceToConcurrentWriter(t *testing.T) {
	env := newTestEnv(t, services.OrderServiceConfig{}, 0)
	order, _ := env.createOrder(t, models.OrderItem{ProductID: "prod-1", Quantity: 2})

	stale := &staleReadOrderRepo{OrderRepository: env.orders}
	racing := services.NewOrderService(
		stale, env.payments, env.products, env.reservations,
		env.inventory, env.gateway, env.settlement, services.OrderServiceConfig{},
	)

	// The payment finishes between the sweeper's read and its expiry write.
	stale.afterRead = func() {
		require.NoError(t, env.orderSvc.Transition(order.ID, models.OrderStatusPaid, "payment finished"))
	}
	err := racing.Transition(order.ID, models.OrderStatusExpired, "deadline passed")
	assert.ErrorIs(t, err, services.ErrInvalidTransition)

	// The paid side won outright: stock committed, nothing released.
	got, err := env.orders.GetByID(order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, got.Status)
	assertCounters(t, env.products, "prod-1", 8, 0)

	events, err := env.settlements.GetByOrderID(order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.SettlementPaid, events[0].Kind)
	assert.Empty(t, env.publisher.byKey("order.expired"))
}

func TestOrderService_TransitionSameTargetRaceConverges(t *testing.T) {
	env := newTestEnv(t, services.OrderServiceConfig{}, 0)
	order, _ := env.createOrder(t, models.OrderItem{ProductID: "prod-1", Quantity: 2})

	stale := &staleReadOrderRepo{OrderRepository: env.orders}
	racing := services.NewOrderService(
		stale, env.payments, env.products, env.reservations,
		env.inventory, env.gateway, env.settlement, services.OrderServiceConfig{},
	)

	// A webhook redelivery races a poll toward the same target. The loser
	// still succeeds, and the idempotent effects apply exactly once.
	stale.afterRead = func() {
		require.NoError(t, env.orderSvc.Transition(order.ID, models.OrderStatusPaid, "payment finished"))
	}
	require.NoError(t, racing.Transition(order.ID, models.OrderStatusPaid, "payment finished"))

	assertCounters(t, env.products, "prod-1", 8, 0)
	events, err := env.settlements.GetByOrderID(order.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Len(t, env.publisher.byKey("order.paid"), 1)
}

func TestOrderService_GatewayRejectionSurfaces(t *testing.T) {
	env := newTestEnv(t, services.OrderServiceConfig{}, 0)
	env.gateway.createInvoiceFn = func(string, float64, string) (*nowpayments.Invoice, error) {
		return nil, fmt.Errorf("%w: status 400", nowpayments.ErrGatewayRejected)
	}

	_, _, err := env.orderSvc.CreateOrder(context.Background(), "user-1",
		[]models.OrderItem{{ProductID: "prod-1", Quantity: 1}})
	assert.ErrorIs(t, err, nowpayments.ErrGatewayRejected)
	assertCounters(t, env.products, "prod-1", 10, 0)
}
