package payin

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrPayinNotFound           = errors.New("payin not found")
	ErrCreateInProgress        = errors.New("payin with this idempotency key is being created")
	ErrIdempotencyConflict     = errors.New("idempotency key reused with a different request")
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
	ErrForbidden               = errors.New("not allowed to act for this user")
)

// Warnings attached to a successful create.
const (
	WarningProviderUnavailable = "ProviderUnavailable"
	WarningProviderRejected    = "ProviderRejected"
	WarningPricingUnavailable  = "PricingUnavailable"
	WarningPricingStale        = "PricingStale"
)

// ValidationError names the offending input fields.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("validation failed: %s", strings.Join(names, ", "))
}

// UnsupportedMarketError rejects a country/currency/method combination.
type UnsupportedMarketError struct {
	Country  string
	Currency string
	Method   string
	Reason   string
}

func (e *UnsupportedMarketError) Error() string {
	return fmt.Sprintf("unsupported market %s/%s/%s: %s", e.Country, e.Currency, e.Method, e.Reason)
}
