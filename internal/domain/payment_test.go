package domain

import "testing"

func TestDerivePaymentStatus(t *testing.T) {
	cases := []struct {
		method string
		want   PaymentStatus
	}{
		{"cash", PaymentPaid},
		{"Cash", PaymentPaid},
		{"  CARD  ", PaymentPaid},
		{"debit card", PaymentPaid},
		{"credit card", PaymentPaid},
		{"online", PaymentPaid},
		{"bank transfer", PaymentPaid},
		{"easypaisa", PaymentPaid},
		{"jazzcash", PaymentPaid},
		{"credit", PaymentNotPaid},
		{"", PaymentPending},
		{"   ", PaymentPending},
		{"cheque", PaymentPending},
		{"barter", PaymentPending},
	}
	for _, tc := range cases {
		if got := DerivePaymentStatus(tc.method); got != tc.want {
			t.Errorf("DerivePaymentStatus(%q) = %s, want %s", tc.method, got, tc.want)
		}
	}
}

func TestPaymentStatus_Valid(t *testing.T) {
	for _, status := range []PaymentStatus{PaymentPaid, PaymentNotPaid, PaymentPending} {
		if !status.Valid() {
			t.Errorf("%s must be valid", status)
		}
	}
	if PaymentStatus("paid").Valid() {
		t.Error("status strings are case-sensitive")
	}
	if PaymentStatus("Refunded").Valid() {
		t.Error("unknown status must be invalid")
	}
}
