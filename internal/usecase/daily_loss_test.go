package usecase

import "testing"

func TestDailyLossTracker(t *testing.T) {
	tracker := NewDailyLossTracker()

	if got := tracker.Current(); got != 0 {
		t.Fatalf("fresh tracker = %f, want 0", got)
	}

	tracker.AddRealized(-50.0)
	tracker.AddRealized(-30.0)
	if got := tracker.Current(); got != 80.0 {
		t.Errorf("loss = %f, want 80", got)
	}

	// Gains do not claw the counter back.
	tracker.AddRealized(200.0)
	if got := tracker.Current(); got != 80.0 {
		t.Errorf("loss after gain = %f, want 80", got)
	}
}
