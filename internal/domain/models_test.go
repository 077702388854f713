package domain

import "testing"

func TestSampleStatus_CanTransitionTo(t *testing.T) {
	allowed := map[SampleStatus][]SampleStatus{
		SampleCollected:  {SampleProcessing, SampleCancelled},
		SampleProcessing: {SampleCompleted, SampleCancelled},
		SampleCompleted:  {},
		SampleCancelled:  {},
	}
	all := []SampleStatus{SampleCollected, SampleProcessing, SampleCompleted, SampleCancelled}

	for from, nexts := range allowed {
		ok := map[SampleStatus]bool{}
		for _, next := range nexts {
			ok[next] = true
		}
		for _, to := range all {
			if got := from.CanTransitionTo(to); got != ok[to] {
				t.Errorf("%s -> %s = %v, want %v", from, to, got, ok[to])
			}
		}
	}
}

func TestSampleStatus_Valid(t *testing.T) {
	if SampleStatus("archived").Valid() {
		t.Error("unknown status must be invalid")
	}
	if !SampleCollected.Valid() {
		t.Error("collected must be valid")
	}
}
