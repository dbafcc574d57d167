package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"signal_gateway/internal/core"
	apperrors "signal_gateway/pkg/errors"

	"github.com/shopspring/decimal"
)

// MockExchange implements core.IExchange with scripted account state and failure injection
type MockExchange struct {
	name string

	mu             sync.Mutex
	balances       map[string]decimal.Decimal
	positions      map[string]core.Position
	placed         []core.OrderIntent
	orderIDCounter int64
	clientOrderMap map[string]int64

	positionsErr error
	balanceErr   error
	healthErr    error
	orderErrs    map[core.OrderType]error
	noOrderID    map[core.OrderType]bool

	// fillEntries opens a position at the limit price when an entry is accepted
	fillEntries bool
	placeDelay  time.Duration
	getCalls    int
}

func NewMockExchange(name string) *MockExchange {
	return &MockExchange{
		name:           name,
		balances:       map[string]decimal.Decimal{"USDT": decimal.NewFromInt(10000)},
		positions:      make(map[string]core.Position),
		clientOrderMap: make(map[string]int64),
		orderErrs:      make(map[core.OrderType]error),
		noOrderID:      make(map[core.OrderType]bool),
		orderIDCounter: 1000,
	}
}

func (m *MockExchange) SetBalance(asset string, amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[asset] = amount
}

// SetPosition stores a signed position size at the given mark price. Zero size removes it.
func (m *MockExchange) SetPosition(symbol string, size, markPrice decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if size.IsZero() {
		delete(m.positions, symbol)
		return
	}
	m.positions[symbol] = core.Position{Symbol: symbol, Size: size, EntryPrice: markPrice, MarkPrice: markPrice}
}

// FailPositions makes GetPositions return err until cleared with nil
func (m *MockExchange) FailPositions(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positionsErr = err
}

// FailBalance makes GetBalance return err until cleared with nil
func (m *MockExchange) FailBalance(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balanceErr = err
}

// FailOrders makes every order of type t fail with err
func (m *MockExchange) FailOrders(t core.OrderType, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.orderErrs, t)
		return
	}
	m.orderErrs[t] = err
}

// OmitOrderID makes orders of type t succeed without an order id
func (m *MockExchange) OmitOrderID(t core.OrderType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.noOrderID[t] = true
}

func (m *MockExchange) SetHealthError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthErr = err
}

// SetFillEntries controls whether accepted entries immediately open a position
func (m *MockExchange) SetFillEntries(fill bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fillEntries = fill
}

// SetPlaceDelay slows every PlaceOrder call. Used to widen race windows in tests.
func (m *MockExchange) SetPlaceDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.placeDelay = d
}

// Orders returns every intent PlaceOrder was called with, failed ones included
func (m *MockExchange) Orders() []core.OrderIntent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.OrderIntent, len(m.placed))
	copy(out, m.placed)
	return out
}

// ReadCalls returns how many account reads were served
func (m *MockExchange) ReadCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getCalls
}

func (m *MockExchange) GetName() string {
	return m.name
}

func (m *MockExchange) CheckHealth(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthErr
}

func (m *MockExchange) GetPositions(ctx context.Context) ([]core.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewTransportError("get_positions", err)
	}
	if m.positionsErr != nil {
		return nil, apperrors.NewTransportError("get_positions", m.positionsErr)
	}
	out := make([]core.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p)
	}
	return out, nil
}

func (m *MockExchange) GetBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if err := ctx.Err(); err != nil {
		return decimal.Zero, apperrors.NewTransportError("get_balance", err)
	}
	if m.balanceErr != nil {
		return decimal.Zero, apperrors.NewTransportError("get_balance", m.balanceErr)
	}
	return m.balances[asset], nil
}

func (m *MockExchange) PlaceOrder(ctx context.Context, intent core.OrderIntent) (*core.Order, error) {
	m.mu.Lock()
	delay := m.placeDelay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, apperrors.NewTransportError("place_order", ctx.Err())
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.placed = append(m.placed, intent)

	if err := m.orderErrs[intent.Type]; err != nil {
		return nil, apperrors.NewTransportError("place_order", err)
	}
	if m.noOrderID[intent.Type] {
		return nil, apperrors.NewTransportError("place_order", fmt.Errorf("%w: %s", apperrors.ErrMissingOrderID, intent.Symbol))
	}

	// Idempotency on client order id
	if intent.ClientOrderID != "" {
		if id, ok := m.clientOrderMap[intent.ClientOrderID]; ok {
			return &core.Order{OrderID: id, ClientOrderID: intent.ClientOrderID, Symbol: intent.Symbol, Status: "NEW"}, nil
		}
	}

	m.orderIDCounter++
	id := m.orderIDCounter
	if intent.ClientOrderID != "" {
		m.clientOrderMap[intent.ClientOrderID] = id
	}

	if intent.Type == core.OrderTypeLimit && m.fillEntries {
		size := intent.Quantity
		if intent.Side == core.SideSell {
			size = size.Neg()
		}
		m.positions[intent.Symbol] = core.Position{
			Symbol: intent.Symbol, Size: size, EntryPrice: intent.Price, MarkPrice: intent.Price,
		}
	}

	return &core.Order{
		OrderID:       id,
		ClientOrderID: intent.ClientOrderID,
		Symbol:        intent.Symbol,
		Status:        "NEW",
		UpdateTime:    time.Now().UnixMilli(),
	}, nil
}
