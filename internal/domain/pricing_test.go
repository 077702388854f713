package domain

import "testing"

func TestUnitSalePrice(t *testing.T) {
	cases := []struct {
		name string
		item InventoryItem
		want float64
	}{
		{"per unit wins", InventoryItem{SalePricePerUnit: 5, SalePricePerPack: 100, ItemsPerPack: 10}, 5},
		{"pack fallback", InventoryItem{SalePricePerPack: 100, ItemsPerPack: 10}, 10},
		{"pack without size is ignored", InventoryItem{SalePricePerPack: 100}, 0},
		{"size without pack price is ignored", InventoryItem{ItemsPerPack: 10}, 0},
		{"nothing set", InventoryItem{}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := UnitSalePrice(tc.item); got != tc.want {
				t.Errorf("UnitSalePrice = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestLineProfit(t *testing.T) {
	item := InventoryItem{CostPerUnit: 2, SalePricePerUnit: 5}
	if got := LineProfit(item, 4); got != 12 {
		t.Errorf("LineProfit = %v, want 12", got)
	}

	belowCost := InventoryItem{CostPerUnit: 10, SalePricePerUnit: 5}
	if got := LineProfit(belowCost, 3); got != 0 {
		t.Errorf("below-cost profit must floor at 0, got %v", got)
	}

	packPriced := InventoryItem{CostPerUnit: 1, SalePricePerPack: 30, ItemsPerPack: 10}
	if got := LineProfit(packPriced, 5); got != 10 {
		t.Errorf("pack-priced profit = %v, want 10", got)
	}
}

func TestFormatSampleNumber(t *testing.T) {
	if got := FormatSampleNumber(2026, 17); got != "LAB-2026-17" {
		t.Errorf("got %q", got)
	}
	if got := FormatSampleNumber(2026, 1); got != "LAB-2026-1" {
		t.Errorf("got %q", got)
	}
}

func TestFormatPatientID(t *testing.T) {
	cases := map[int64]string{
		1:   "LP01",
		9:   "LP09",
		10:  "LP10",
		117: "LP117",
	}
	for seq, want := range cases {
		if got := FormatPatientID(seq); got != want {
			t.Errorf("FormatPatientID(%d) = %q, want %q", seq, got, want)
		}
	}
}
