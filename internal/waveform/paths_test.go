package waveform

import "testing"

func TestDeriveWavePaths(t *testing.T) {
	wave1Abs, wave1Rel, wave2Abs, wave2Rel := DeriveWavePaths("artifacts", "sid-1", 2, "slot-3_comment_to_slot-5_gpt-4o_amber")
	wantRel1 := "waves/sessions/sid-1/turn_2/slot-3_comment_to_slot-5_gpt-4o_amber_v3_wave1.wav"
	if wave1Rel != wantRel1 {
		t.Fatalf("wave1Rel = %q, want %q", wave1Rel, wantRel1)
	}
	wantRel2 := "waves/sessions/sid-1/turn_2/slot-3_comment_to_slot-5_gpt-4o_amber_v3_wave2.wav"
	if wave2Rel != wantRel2 {
		t.Fatalf("wave2Rel = %q, want %q", wave2Rel, wantRel2)
	}
	if wave1Abs != "artifacts/"+wantRel1 {
		t.Fatalf("wave1Abs = %q", wave1Abs)
	}
	if wave2Abs != "artifacts/"+wantRel2 {
		t.Fatalf("wave2Abs = %q", wave2Abs)
	}
}

func TestDeriveSummaryWavePath(t *testing.T) {
	abs, rel := DeriveSummaryWavePath("artifacts", "sid-1", "summary_amber", 4)
	wantRel := "waves/sessions/sid-1/summary/summary_amber_v3_wave4.wav"
	if rel != wantRel {
		t.Fatalf("rel = %q, want %q", rel, wantRel)
	}
	if abs != "artifacts/"+wantRel {
		t.Fatalf("abs = %q", abs)
	}
}

func TestTargetSlotForWave(t *testing.T) {
	cases := []struct {
		slotID, waveIndex, want int
	}{
		{1, 1, 1},
		{1, 2, 2},
		{6, 1, 6},
		{6, 2, 1},
		{3, 2, 4},
		{5, 2, 6},
	}
	for _, tc := range cases {
		got := TargetSlotForWave(tc.slotID, tc.waveIndex)
		if got != tc.want {
			t.Fatalf("TargetSlotForWave(%d,%d) = %d, want %d", tc.slotID, tc.waveIndex, got, tc.want)
		}
	}
}
