package payin

import (
	"sort"

	"github.com/mwork/payin-api/internal/pkg/validator"
)

// Market lists what one destination country accepts.
type Market struct {
	Country    string
	Currencies []string
	Methods    []string
}

var markets = map[string]Market{
	"CO": {Country: "CO", Currencies: []string{"COP", "USD"}, Methods: []string{"PSE", "NEQUI", "CARD", "BANK_TRANSFER"}},
	"MX": {Country: "MX", Currencies: []string{"MXN", "USD"}, Methods: []string{"SPEI", "OXXO", "CARD"}},
	"BR": {Country: "BR", Currencies: []string{"BRL", "USD"}, Methods: []string{"PIX", "BOLETO", "CARD"}},
	"PE": {Country: "PE", Currencies: []string{"PEN", "USD"}, Methods: []string{"CARD", "BANK_TRANSFER"}},
	"AR": {Country: "AR", Currencies: []string{"ARS", "USD"}, Methods: []string{"CARD", "BANK_TRANSFER"}},
	"CL": {Country: "CL", Currencies: []string{"CLP", "USD"}, Methods: []string{"CARD", "BANK_TRANSFER"}},
	"KZ": {Country: "KZ", Currencies: []string{"KZT"}, Methods: []string{"KASPI", "CARD"}},
}

func init() {
	validator.RegisterEnum("payment_method", KnownMethods()...)
}

// KnownMethods returns every payment method offered in any market.
func KnownMethods() []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range markets {
		for _, method := range m.Methods {
			if !seen[method] {
				seen[method] = true
				out = append(out, method)
			}
		}
	}
	sort.Strings(out)
	return out
}

// LookupMarket returns the market for a country code.
func LookupMarket(country string) (Market, bool) {
	m, ok := markets[country]
	return m, ok
}

// CheckMarket fails with *UnsupportedMarketError unless the combination is served.
func CheckMarket(country, currency, method string) error {
	m, ok := LookupMarket(country)
	if !ok {
		return &UnsupportedMarketError{Country: country, Currency: currency, Method: method, Reason: "country not supported"}
	}
	if !contains(m.Currencies, currency) {
		return &UnsupportedMarketError{Country: country, Currency: currency, Method: method, Reason: "currency not accepted in country"}
	}
	if !contains(m.Methods, method) {
		return &UnsupportedMarketError{Country: country, Currency: currency, Method: method, Reason: "payment method not offered in country"}
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
