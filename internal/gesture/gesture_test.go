package gesture

import "testing"

func drag(s *Swipe, from, to float64) Outcome {
	s.Start(from)
	s.Move((from + to) / 2)
	s.Move(to)
	return s.End()
}

func TestBelowThresholdReverts(t *testing.T) {
	for _, cfg := range []Config{ShoppingRow, HistoryRow} {
		for _, delta := range []float64{0, 10, -10, cfg.Threshold, -cfg.Threshold, cfg.Threshold - 1} {
			s := New(cfg)
			if got := drag(s, 300, 300+delta); got != Revert {
				t.Errorf("max %v delta %v: outcome %v, want revert", cfg.Max, delta, got)
			}
			if s.Offset() != 0 || s.State() != Idle {
				t.Errorf("max %v delta %v: offset %v state %v after revert", cfg.Max, delta, s.Offset(), s.State())
			}
		}
	}
}

func TestPositiveSwipeDeletesOnce(t *testing.T) {
	s := New(ShoppingRow)
	if got := drag(s, 100, 210); got != Delete {
		t.Fatalf("outcome %v, want delete", got)
	}
	if got := s.End(); got != None {
		t.Errorf("second End = %v, want none", got)
	}
	s.Start(0)
	if s.State() != CommittedDelete {
		t.Errorf("committed row restarted: %v", s.State())
	}
}

func TestNegativeSwipeRevealsBuy(t *testing.T) {
	s := New(ShoppingRow)
	if got := drag(s, 400, 250); got != RevealBuy {
		t.Fatalf("outcome %v, want reveal-buy", got)
	}
	if s.Offset() != -250 {
		t.Errorf("offset %v, want -250", s.Offset())
	}
	if got := s.ConfirmBuy(); got != Buy {
		t.Errorf("ConfirmBuy = %v, want buy", got)
	}
	if got := s.ConfirmBuy(); got != None {
		t.Errorf("second ConfirmBuy = %v, want none", got)
	}
}

func TestHistoryNegativeSwipeReverts(t *testing.T) {
	s := New(HistoryRow)
	if got := drag(s, 200, 100); got != Revert {
		t.Errorf("outcome %v, want revert", got)
	}
	if got := drag(s, 100, 151); got != Delete {
		t.Errorf("outcome %v, want delete", got)
	}
}

func TestMoveClamps(t *testing.T) {
	s := New(HistoryRow)
	s.Start(0)
	if got := s.Move(500); got != 100 {
		t.Errorf("Move(500) = %v, want 100", got)
	}
	if got := s.Move(-500); got != -100 {
		t.Errorf("Move(-500) = %v, want -100", got)
	}
}

func TestScaledInput(t *testing.T) {
	s := New(ShoppingRow.WithScale(8))
	s.Start(10)
	if got := s.Move(24); got != 112 {
		t.Errorf("Move = %v, want 112", got)
	}
	if got := s.End(); got != Delete {
		t.Errorf("End = %v, want delete", got)
	}
}

func TestDismissBuyPanel(t *testing.T) {
	s := New(ShoppingRow)
	drag(s, 300, 0)
	s.Reset()
	if s.State() != Idle || s.Offset() != 0 {
		t.Errorf("after Reset: state %v offset %v", s.State(), s.Offset())
	}
	if got := s.ConfirmBuy(); got != None {
		t.Errorf("ConfirmBuy after dismiss = %v", got)
	}
}
