package voyage

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nholding/lifting-book/internal/utils"
)

// Route is the sailing route for CIF deliveries.
type Route string

const (
	RouteSuez Route = "SUEZ"
	RouteCape Route = "CAPE"
)

// routeKey identifies one (destination, route) leg in the transit table.
type routeKey struct {
	destination string
	route       Route
}

// DefaultTransitDays is the voyage-duration table agreed with operations.
// Values are door-to-door transit days from the loading port and already
// include the 2-day laycan allowance.
var DefaultTransitDays = map[string]map[Route]int{
	"JEDDAH":     {RouteSuez: 10},
	"KARACHI":    {RouteSuez: 24, RouteCape: 38},
	"MUMBAI":     {RouteSuez: 22, RouteCape: 36},
	"COLOMBO":    {RouteSuez: 26, RouteCape: 39},
	"CHITTAGONG": {RouteSuez: 28, RouteCape: 41},
	"SINGAPORE":  {RouteSuez: 30, RouteCape: 42},
}

// Calculator projects CIF delivery windows from loading windows using a
// transit table. The zero value is not usable; construct with NewCalculator.
type Calculator struct {
	transit map[routeKey]int
}

// NewCalculator builds a Calculator from a destination → route → days table.
// Pass DefaultTransitDays unless a contract carries its own table.
func NewCalculator(table map[string]map[Route]int) *Calculator {
	c := &Calculator{transit: make(map[routeKey]int)}
	for dest, routes := range table {
		for route, days := range routes {
			c.transit[routeKey{strings.ToUpper(dest), route}] = days
		}
	}
	return c
}

// TransitDays looks up the transit duration for a leg.
func (c *Calculator) TransitDays(destination string, route Route) (int, bool) {
	days, ok := c.transit[routeKey{strings.ToUpper(strings.TrimSpace(destination)), route}]
	return days, ok
}

// DeliveryWindow derives the CIF delivery window from a loading window.
//
// The loading window accepts the operations formats "DD-DD/MM", "D-D/M",
// "DD-DD" (month/year taken from the reference month) or a bare day number.
// The first day of the window anchors the calculation; if the window's month
// is earlier than the reference month the year rolls forward (a December
// loading quoted against a January reference).
//
// The delivery window spans 14 days after transit. When it crosses a month
// boundary it is re-anchored to the last 15 days of the delivery start month,
// because receivers nominate against a single discharge month.
//
// Returns ok=false when the leg is unknown or the window cannot be parsed.
// Callers must not treat that as zero transit.
func (c *Calculator) DeliveryWindow(loadingWindow, destination string, route Route, month, year int) (string, bool) {
	transit, ok := c.TransitDays(destination, route)
	if !ok {
		return "", false
	}

	loadingStart, ok := parseLoadingStart(loadingWindow, month, year)
	if !ok {
		return "", false
	}

	deliveryStart := loadingStart.AddDate(0, 0, transit)
	deliveryEnd := deliveryStart.AddDate(0, 0, 14)

	if deliveryStart.Month() == deliveryEnd.Month() && deliveryStart.Year() == deliveryEnd.Year() {
		return fmt.Sprintf("(%d-%d/%d)", deliveryStart.Day(), deliveryEnd.Day(), int(deliveryStart.Month())), true
	}

	// Cross-month: anchor to the last 15 days of the delivery start month.
	lastDay := utils.LastDayOfMonth(deliveryStart.Year(), deliveryStart.Month())
	adjustedStart := lastDay - 14

	return fmt.Sprintf("(%d-%d/%d)", adjustedStart, lastDay, int(deliveryStart.Month())), true
}

// parseLoadingStart extracts the first day of a loading window as a concrete
// date. month/year are the reference loading month of the plan row.
func parseLoadingStart(window string, month, year int) (time.Time, bool) {
	s := strings.TrimSpace(window)
	s = strings.Trim(s, "()")
	if s == "" {
		return time.Time{}, false
	}

	dayPart := s
	monthPart := ""

	if idx := strings.Index(s, "/"); idx >= 0 {
		dayPart = s[:idx]
		monthPart = s[idx+1:]
	}

	// "DD-DD" → first day only
	if idx := strings.Index(dayPart, "-"); idx >= 0 {
		dayPart = dayPart[:idx]
	}

	day, err := strconv.Atoi(strings.TrimSpace(dayPart))
	if err != nil || day < 1 || day > 31 {
		return time.Time{}, false
	}

	m := month
	if monthPart != "" {
		parsed, err := strconv.Atoi(strings.TrimSpace(monthPart))
		if err != nil || parsed < 1 || parsed > 12 {
			return time.Time{}, false
		}
		m = parsed
	}

	y := year
	// A window month earlier than the reference month means the window is in
	// the following year (December reference quoting a January window).
	if m < month {
		y++
	}

	if day > utils.LastDayOfMonth(y, time.Month(m)) {
		return time.Time{}, false
	}

	return time.Date(y, time.Month(m), day, 0, 0, 0, 0, time.UTC), true
}
