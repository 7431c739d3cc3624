package budget

import (
	"sync"
	"testing"
)

func TestRecordAccumulates(t *testing.T) {
	tr := NewTracker(1000)

	tr.Record(100)
	tr.Record(250)

	if got := tr.Used(); got != 350 {
		t.Errorf("Used() = %d, want 350", got)
	}
	if got := tr.PercentUsed(); got != 35.0 {
		t.Errorf("PercentUsed() = %f, want 35.0", got)
	}
}

func TestRecordIgnoresNegativeDeltas(t *testing.T) {
	tr := NewTracker(1000)

	tr.Record(500)
	tr.Record(-200)
	tr.Record(0)

	if got := tr.Used(); got != 500 {
		t.Errorf("Used() = %d, want 500 (usage is monotonic)", got)
	}
}

func TestThresholdNotCrossedBelow80(t *testing.T) {
	tr := NewTracker(1000)

	tr.Record(790)
	if tr.ThresholdCrossed() {
		t.Error("Threshold should not be crossed at 79%")
	}
}

func TestThresholdFiresOnceOnJump(t *testing.T) {
	tr := NewTracker(1000)

	// Jump from 79% to 95% in a single call
	tr.Record(790)
	tr.Record(160)

	if !tr.ThresholdCrossed() {
		t.Fatal("Threshold should be crossed at 95%")
	}

	// First consume wins, and the signal never re-latches this session
	if !tr.Consume() {
		t.Fatal("First Consume should return true")
	}
	if tr.Consume() {
		t.Error("Second Consume should return false")
	}

	// Further records above the threshold do not re-fire
	tr.Record(10)
	if tr.ThresholdCrossed() {
		t.Error("Signal must not re-latch after consumption")
	}
}

func TestThresholdFiresOnceUnderRapidRecords(t *testing.T) {
	tr := NewTracker(1000)
	tr.Record(790)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Record(5)
		}()
	}
	wg.Wait()

	if !tr.ThresholdCrossed() {
		t.Fatal("Threshold should be crossed")
	}

	consumed := 0
	for i := 0; i < 10; i++ {
		if tr.Consume() {
			consumed++
		}
	}
	if consumed != 1 {
		t.Errorf("Signal consumed %d times, want exactly 1", consumed)
	}
}

func TestZeroCapacityNeverFires(t *testing.T) {
	tr := NewTracker(0)

	tr.Record(1 << 40)
	if tr.ThresholdCrossed() {
		t.Error("Tracker without capacity should never signal")
	}
	if tr.PercentUsed() != 0 {
		t.Errorf("PercentUsed() = %f, want 0", tr.PercentUsed())
	}
}

func TestCustomThreshold(t *testing.T) {
	tr := NewTrackerWithThreshold(100, 0.5)

	tr.Record(49)
	if tr.ThresholdCrossed() {
		t.Error("Should not fire at 49%")
	}
	tr.Record(1)
	if !tr.ThresholdCrossed() {
		t.Error("Should fire at 50%")
	}
}

func TestInvalidThresholdClamped(t *testing.T) {
	tr := NewTrackerWithThreshold(100, 1.5)

	tr.Record(80)
	if !tr.ThresholdCrossed() {
		t.Error("Invalid threshold should fall back to the default 80%")
	}
}
