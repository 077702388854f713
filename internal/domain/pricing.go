package domain

import "fmt"

// UnitSalePrice resolves the effective per-unit sale price of an item:
// explicit per-unit price first, then pack price divided by pack size, else
// zero.
func UnitSalePrice(item InventoryItem) float64 {
	if item.SalePricePerUnit > 0 {
		return item.SalePricePerUnit
	}
	if item.SalePricePerPack > 0 && item.ItemsPerPack > 0 {
		return item.SalePricePerPack / float64(item.ItemsPerPack)
	}
	return 0
}

// LineProfit is the consumables profit of one sold line, floored at zero so a
// below-cost sale never produces a negative ledger amount.
func LineProfit(item InventoryItem, quantity int) float64 {
	margin := UnitSalePrice(item) - item.CostPerUnit
	if margin < 0 {
		margin = 0
	}
	return margin * float64(quantity)
}

// FormatSampleNumber renders the human-facing identifier, e.g. LAB-2026-17.
func FormatSampleNumber(year int, seq int64) string {
	return fmt.Sprintf("LAB-%d-%d", year, seq)
}

// FormatPatientID renders the sequential human-facing patient id, zero-padded
// to two digits, e.g. LP01, LP117.
func FormatPatientID(seq int64) string {
	return fmt.Sprintf("LP%02d", seq)
}
