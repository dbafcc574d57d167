package webhook

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"signal_gateway/internal/core"
	"signal_gateway/pkg/tradingutils"

	"github.com/shopspring/decimal"
)

var tickerPattern = regexp.MustCompile(`^[A-Z0-9]{2,30}$`)

// ValidationError describes a malformed inbound payload. It maps to HTTP 400.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Payload is the alert body posted by the charting platform
type Payload struct {
	Strategy   string          `json:"strategy"`
	Signal     string          `json:"signal"`
	Ticker     string          `json:"ticker"`
	Price      json.RawMessage `json:"price"`
	Passphrase string          `json:"passphrase,omitempty"`
}

// Filter decides which payloads reach the pipeline
type Filter struct {
	Strategies    []string
	Directions    []string
	DefaultTicker string
}

// Accepts reports whether the strategy and direction are configured.
// Matching is case-insensitive.
func (f Filter) Accepts(p Payload) bool {
	return containsFold(f.Strategies, p.Strategy) && containsFold(f.Directions, p.Signal)
}

// ToSignal validates p and builds the pipeline input
func (f Filter) ToSignal(p Payload, receivedAt time.Time) (core.Signal, error) {
	side, ok := core.ParseDirection(p.Signal)
	if !ok {
		return core.Signal{}, ValidationError{Field: "signal", Reason: fmt.Sprintf("unknown direction %q", p.Signal)}
	}

	symbol := strings.ToUpper(strings.TrimSpace(p.Ticker))
	if symbol == "" {
		symbol = f.DefaultTicker
	}
	if !tickerPattern.MatchString(symbol) {
		return core.Signal{}, ValidationError{Field: "ticker", Reason: fmt.Sprintf("%q is not a symbol", p.Ticker)}
	}

	price, err := parsePrice(p.Price)
	if err != nil {
		return core.Signal{}, err
	}

	return core.Signal{
		Strategy:   strings.TrimSpace(p.Strategy),
		Direction:  strings.ToLower(strings.TrimSpace(p.Signal)),
		Side:       side,
		Symbol:     symbol,
		Price:      price,
		ReceivedAt: receivedAt,
	}, nil
}

// parsePrice accepts a JSON number or a numeric string
func parsePrice(raw json.RawMessage) (decimal.Decimal, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return decimal.Zero, ValidationError{Field: "price", Reason: "required"}
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return decimal.Zero, ValidationError{Field: "price", Reason: "not a number"}
		}
		s = strings.TrimSpace(str)
	}

	price, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ValidationError{Field: "price", Reason: fmt.Sprintf("%q is not a number", s)}
	}
	if !tradingutils.WithinMagnitude(price) {
		return decimal.Zero, ValidationError{Field: "price", Reason: "out of range"}
	}
	if !price.IsPositive() {
		return decimal.Zero, ValidationError{Field: "price", Reason: "must be positive"}
	}
	return price, nil
}

func containsFold(list []string, s string) bool {
	s = strings.TrimSpace(s)
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
