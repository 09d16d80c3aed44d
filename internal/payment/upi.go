package payment

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNoPayee is returned when no payee VPA is configured
var ErrNoPayee = errors.New("no payee configured")

// Payee identifies who receives kiosk payments
type Payee struct {
	VPA      string // UPI virtual payment address, e.g. kiosk@okbank
	Name     string
	Currency string
	Note     string
}

// Enabled reports whether payment links can be built
func (p Payee) Enabled() bool {
	return strings.TrimSpace(p.VPA) != ""
}

// Link builds a upi://pay URI for amount whole currency units. The link is
// advisory: nothing reports back whether the payment happened.
func (p Payee) Link(amount int) (string, error) {
	if !p.Enabled() {
		return "", ErrNoPayee
	}
	if amount <= 0 {
		return "", fmt.Errorf("invalid amount %d", amount)
	}

	currency := p.Currency
	if currency == "" {
		currency = "INR"
	}

	q := url.Values{}
	q.Set("pa", strings.TrimSpace(p.VPA))
	if p.Name != "" {
		q.Set("pn", p.Name)
	}
	q.Set("am", fmt.Sprintf("%d.00", amount))
	q.Set("cu", currency)
	if p.Note != "" {
		q.Set("tn", p.Note)
	}

	u := url.URL{Scheme: "upi", Host: "pay", RawQuery: q.Encode()}
	return u.String(), nil
}
