// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import (
	"sync"
	"testing"
)

func TestTriggerController_TripsAtThreshold(t *testing.T) {
	t.Parallel()

	ctrl := NewTriggerController(5)
	for i := 1; i <= 4; i++ {
		state := ctrl.RecordIngested()
		if state.AnalysisPending {
			t.Fatalf("pending after %d readings, threshold is 5", i)
		}
		if state.RecordsSinceLastAnalysis != i {
			t.Fatalf("records = %d, want %d", state.RecordsSinceLastAnalysis, i)
		}
	}
	state := ctrl.RecordIngested()
	if !state.AnalysisPending {
		t.Fatal("not pending after reaching threshold")
	}
	if !ctrl.NeedsAnalysis() {
		t.Fatal("NeedsAnalysis should report true")
	}
}

func TestTriggerController_PendingStaysSetPastThreshold(t *testing.T) {
	t.Parallel()

	ctrl := NewTriggerController(2)
	ctrl.RecordIngested()
	ctrl.RecordIngested()
	state := ctrl.RecordIngested()
	if !state.AnalysisPending {
		t.Fatal("pending flag must stay set until analysis completes")
	}
	if state.RecordsSinceLastAnalysis != 3 {
		t.Fatalf("records = %d, want 3", state.RecordsSinceLastAnalysis)
	}
}

func TestTriggerController_ResetClearsEverything(t *testing.T) {
	t.Parallel()

	ctrl := NewTriggerController(2)
	ctrl.RecordIngested()
	ctrl.RecordIngested()
	ctrl.MarkAnalysisComplete()

	state := ctrl.State()
	if state.AnalysisPending || state.RecordsSinceLastAnalysis != 0 {
		t.Fatalf("state after reset = %+v, want zeroes", state)
	}
	// Next cycle needs a full threshold's worth of readings again.
	if st := ctrl.RecordIngested(); st.AnalysisPending {
		t.Fatal("pending after a single reading following reset")
	}
}

func TestTriggerController_ResetWithoutPriorTrip(t *testing.T) {
	t.Parallel()

	ctrl := NewTriggerController(5)
	ctrl.RecordIngested()
	ctrl.RecordIngested()
	ctrl.MarkAnalysisComplete()

	state := ctrl.State()
	if state.AnalysisPending || state.RecordsSinceLastAnalysis != 0 {
		t.Fatalf("state after reset = %+v, want zeroes", state)
	}
}

func TestTriggerController_DefaultThreshold(t *testing.T) {
	t.Parallel()

	ctrl := NewTriggerController(0)
	for i := 0; i < DefaultThreshold-1; i++ {
		ctrl.RecordIngested()
	}
	if ctrl.NeedsAnalysis() {
		t.Fatal("tripped before default threshold")
	}
	ctrl.RecordIngested()
	if !ctrl.NeedsAnalysis() {
		t.Fatal("did not trip at default threshold")
	}
}

func TestTriggerController_ConcurrentIngest(t *testing.T) {
	t.Parallel()

	ctrl := NewTriggerController(100)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctrl.RecordIngested()
		}()
	}
	wg.Wait()

	state := ctrl.State()
	if state.RecordsSinceLastAnalysis != 100 {
		t.Fatalf("records = %d, want 100", state.RecordsSinceLastAnalysis)
	}
	if !state.AnalysisPending {
		t.Fatal("should be pending at exactly the threshold")
	}
}

func TestTriggerRegistry_ReturnsSameInstancePerDevice(t *testing.T) {
	t.Parallel()

	reg := NewTriggerRegistry(3)
	a := reg.ForDevice("device-a")
	b := reg.ForDevice("device-b")
	if a == b {
		t.Fatal("different devices must get different controllers")
	}
	if reg.ForDevice("device-a") != a {
		t.Fatal("same device must get the same controller")
	}

	a.RecordIngested()
	if b.State().RecordsSinceLastAnalysis != 0 {
		t.Fatal("trigger accounting must be isolated per device")
	}
}
