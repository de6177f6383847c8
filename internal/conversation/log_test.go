package conversation

import "testing"

func TestGetOrCreateSeedsSystemPreamble(t *testing.T) {
	log := NewLog("you are Aria")
	entries := log.GetOrCreate(3)
	if len(entries) != 1 || entries[0].Role != RoleSystem || entries[0].Text != "you are Aria" {
		t.Fatalf("GetOrCreate(3) = %+v", entries)
	}
}

func TestAppendGrowsConversation(t *testing.T) {
	log := NewLog("preamble")
	log.Append(1, RoleUser, "hi")
	log.Append(1, RoleAssistant, `{"text":"hello"}`)
	snap := log.Snapshot(1)
	if len(snap) != 3 {
		t.Fatalf("len(snap) = %d, want 3", len(snap))
	}
	if snap[1].Role != RoleUser || snap[2].Role != RoleAssistant {
		t.Fatalf("snap = %+v", snap)
	}
}

func TestResetAllIsIdempotent(t *testing.T) {
	log := NewLog("preamble")
	log.Append(2, RoleUser, "hi")
	log.Append(5, RoleUser, "hi")

	first := log.ResetAll()
	if len(first) != 2 || first[0] != 2 || first[1] != 5 {
		t.Fatalf("first ResetAll() = %v", first)
	}

	second := log.ResetAll()
	if len(second) != 0 {
		t.Fatalf("second ResetAll() = %v, want empty", second)
	}
}
