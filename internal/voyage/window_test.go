package voyage

import (
	"testing"
)

func newTestCalculator() *Calculator {
	return NewCalculator(DefaultTransitDays)
}

func TestDeliveryWindow_SameMonth(t *testing.T) {
	c := newTestCalculator()

	// JEDDAH via SUEZ = 10 days: Mar 1 + 10 = Mar 11, +14 = Mar 25.
	got, ok := c.DeliveryWindow("01-05/03", "JEDDAH", RouteSuez, 3, 2026)
	if !ok {
		t.Fatal("expected a delivery window")
	}
	if got != "(11-25/3)" {
		t.Errorf("delivery window = %q, want (11-25/3)", got)
	}
}

func TestDeliveryWindow_CrossMonth(t *testing.T) {
	c := newTestCalculator()

	// KARACHI via SUEZ = 24 days: Jan 1 + 24 = Jan 25, +14 = Feb 8.
	// Cross-month windows re-anchor to the last 15 days of January.
	got, ok := c.DeliveryWindow("01-05/01", "KARACHI", RouteSuez, 1, 2026)
	if !ok {
		t.Fatal("expected a delivery window")
	}
	if got != "(17-31/1)" {
		t.Errorf("delivery window = %q, want (17-31/1)", got)
	}
}

func TestDeliveryWindow_YearRollsForward(t *testing.T) {
	c := newTestCalculator()

	// Reference month December, window quoted for January: the window is in
	// the following year. Jan 2 2027 + 10 = Jan 12, +14 = Jan 26.
	got, ok := c.DeliveryWindow("02-06/01", "JEDDAH", RouteSuez, 12, 2026)
	if !ok {
		t.Fatal("expected a delivery window")
	}
	if got != "(12-26/1)" {
		t.Errorf("delivery window = %q, want (12-26/1)", got)
	}
}

func TestDeliveryWindow_WindowFormats(t *testing.T) {
	c := newTestCalculator()

	// All of these describe a window starting Mar 5.
	for _, window := range []string{"05-09/03", "5-9/3", "05-09", "5", "(05-09/03)"} {
		got, ok := c.DeliveryWindow(window, "JEDDAH", RouteSuez, 3, 2026)
		if !ok {
			t.Errorf("window %q: expected a delivery window", window)
			continue
		}
		// Mar 5 + 10 = Mar 15, +14 = Mar 29.
		if got != "(15-29/3)" {
			t.Errorf("window %q: delivery window = %q, want (15-29/3)", window, got)
		}
	}
}

func TestDeliveryWindow_UnknownLeg(t *testing.T) {
	c := newTestCalculator()

	if _, ok := c.DeliveryWindow("01-05/03", "ROTTERDAM", RouteSuez, 3, 2026); ok {
		t.Error("unknown destination must not produce a window")
	}
	if _, ok := c.DeliveryWindow("01-05/03", "JEDDAH", RouteCape, 3, 2026); ok {
		t.Error("unknown route for destination must not produce a window")
	}
}

func TestDeliveryWindow_UnparseableWindow(t *testing.T) {
	c := newTestCalculator()

	for _, window := range []string{"", "TBD", "99-05/03", "01-05/13"} {
		if _, ok := c.DeliveryWindow(window, "JEDDAH", RouteSuez, 3, 2026); ok {
			t.Errorf("window %q should not parse", window)
		}
	}
}
