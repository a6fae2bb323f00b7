package fiscal

import (
	"fmt"
)

// This package implements the fiscal calendar as an OVERLAY over Gregorian
// months, the same model the period book uses:
//
//   - Gregorian months are the atomic unit of time
//   - A fiscal quarter is a named window of 3 consecutive months
//   - The overlay is fully determined by the contract's fiscal start month
//
// Nothing here is persisted. All mappings are pure arithmetic on month
// numbers, so every function is total over its (pre-validated) input range:
// months are 1-12, quarters are 1-4.

// MonthYear is one calendar month of a concrete year.
type MonthYear struct {
	Month int // 1-12
	Year  int
}

// Quarter labels are the CALENDAR quarter names (Q1 = Jan-Mar), reordered by
// the fiscal overlay. A contract starting in July therefore runs
// [Q3 Q4 Q1 Q2]: its first fiscal quarter is the calendar Q3.

// QuarterOrder returns the four calendar-quarter labels in the order they
// occur for a fiscal year starting at startMonth.
//
// Example:
//
//	QuarterOrder(7) → ["Q3", "Q4", "Q1", "Q2"]
func QuarterOrder(startMonth int) [4]string {
	first := (startMonth - 1) / 3 // 0-indexed calendar quarter of the start month

	var order [4]string
	for i := 0; i < 4; i++ {
		order[i] = fmt.Sprintf("Q%d", (first+i)%4+1)
	}
	return order
}

// QuarterForMonth maps a calendar month onto its fiscal quarter position
// (1-4) for a fiscal year starting at fiscalStart.
//
// Example:
//
//	QuarterForMonth(7, 1) → 3   // January is in the 3rd fiscal quarter of a July year
//	QuarterForMonth(7, 7) → 1
func QuarterForMonth(fiscalStart, month int) int {
	return ((month-fiscalStart+12)%12)/3 + 1
}

// MonthsOfQuarter returns the three consecutive calendar months making up
// fiscal quarter 1-4.
//
// Example:
//
//	MonthsOfQuarter(7, 3) → [1, 2, 3]
func MonthsOfQuarter(fiscalStart, quarter int) [3]int {
	var months [3]int
	for k := 0; k < 3; k++ {
		months[k] = (fiscalStart+(quarter-1)*3+k-1)%12 + 1
	}
	return months
}

// ContractYearMonths returns the 12 (month, year) pairs of the given contract
// year (1-based). The calendar year rolls forward whenever the month wraps
// past December.
//
// Example:
//
//	// Contract starting July 2026, first contract year:
//	ContractYearMonths(7, 2026, 1)
//	→ Jul 2026 ... Dec 2026, Jan 2027 ... Jun 2027
func ContractYearMonths(fiscalStart, contractStartYear, contractYear int) []MonthYear {
	months := make([]MonthYear, 0, 12)

	year := contractStartYear + contractYear - 1
	month := fiscalStart

	for i := 0; i < 12; i++ {
		months = append(months, MonthYear{Month: month, Year: year})

		month++
		if month > 12 {
			month = 1
			year++
		}
	}

	return months
}

// QuarterPosition converts a fiscal quarter number (1-4) to the 0-indexed
// position used by allocation plans.
func QuarterPosition(fiscalStart, month int) int {
	return QuarterForMonth(fiscalStart, month) - 1
}
