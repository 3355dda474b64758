package store

import "testing"

func TestStage_Percent(t *testing.T) {
	cases := []struct {
		stage Stage
		want  int
	}{
		{StageInitializing, 0},
		{StageCreatingWallets, 10},
		{StageFundingWallets, 30},
		{StageCreatingLUT, 50},
		{StageBuildingBundle, 65},
		{StageSubmittingBundle, 80},
		{StageConfirming, 90},
		{Stage("BOGUS"), 0},
	}
	for _, tc := range cases {
		if got := tc.stage.Percent(); got != tc.want {
			t.Errorf("Percent(%s) = %d, want %d", tc.stage, got, tc.want)
		}
	}
}

func TestRunStatus_Terminal(t *testing.T) {
	for _, s := range []RunStatus{RunSuccess, RunFailed, RunAborted} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	if RunPending.Terminal() {
		t.Error("PENDING should not be terminal")
	}
}

func TestRun_Progress(t *testing.T) {
	r := &Run{Status: RunPending, Stage: StageConfirming}
	if got := r.Progress(); got != 90 {
		t.Errorf("pending at CONFIRMING = %d, want 90", got)
	}
	// A failed run keeps the progress of the stage it died in
	r.Status = RunFailed
	if got := r.Progress(); got != 90 {
		t.Errorf("failed at CONFIRMING = %d, want 90", got)
	}
	r.Status = RunSuccess
	if got := r.Progress(); got != 100 {
		t.Errorf("success = %d, want 100", got)
	}
}
