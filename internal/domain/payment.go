package domain

import "strings"

type PaymentStatus string

const (
	PaymentPaid    PaymentStatus = "Paid"
	PaymentNotPaid PaymentStatus = "Not paid"
	PaymentPending PaymentStatus = "Pending"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPaid, PaymentNotPaid, PaymentPending:
		return true
	}
	return false
}

// paidMethods enumerates the payment methods that settle at intake time.
var paidMethods = map[string]struct{}{
	"cash":          {},
	"card":          {},
	"debit card":    {},
	"credit card":   {},
	"online":        {},
	"bank transfer": {},
	"easypaisa":     {},
	"jazzcash":      {},
}

// DerivePaymentStatus maps a payment method to a status when the caller did
// not record one explicitly. Unrecognized or empty methods stay Pending;
// "credit" is the running-tab case and is Not paid.
func DerivePaymentStatus(method string) PaymentStatus {
	m := strings.ToLower(strings.TrimSpace(method))
	if m == "" {
		return PaymentPending
	}
	if _, ok := paidMethods[m]; ok {
		return PaymentPaid
	}
	if m == "credit" {
		return PaymentNotPaid
	}
	return PaymentPending
}
