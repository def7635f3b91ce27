package dedup

import (
	"testing"

	"github.com/amishk599/boardwatch/internal/model"
)

type setMembership map[string]bool

func (s setMembership) Contains(fp string) bool { return s[fp] }

func rec(title string) model.JobRecord {
	return model.JobRecord{
		Title:       title,
		Company:     "Acme",
		URL:         "https://example.com/" + title,
		Fingerprint: model.Fingerprint(title, "Acme", "https://example.com/"+title),
	}
}

func titles(recs []model.JobRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Title
	}
	return out
}

func TestDedupe_RemovesSeen(t *testing.T) {
	a, b, c := rec("a"), rec("b"), rec("c")
	seen := setMembership{b.Fingerprint: true}

	got := titles(Dedupe([]model.JobRecord{a, b, c}, seen))
	want := []string{"a", "c"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDedupe_RemovesInBatchDuplicatesKeepingFirst(t *testing.T) {
	a, b := rec("a"), rec("b")
	a2 := a
	a2.Description = "second copy"

	got := Dedupe([]model.JobRecord{a, b, a2}, setMembership{})
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	if got[0].Description != "" {
		t.Error("expected first occurrence to be kept")
	}
}

func TestDedupe_Idempotent(t *testing.T) {
	batch := []model.JobRecord{rec("a"), rec("b"), rec("a"), rec("c")}
	seen := setMembership{rec("c").Fingerprint: true}

	once := Dedupe(batch, seen)
	twice := Dedupe(once, seen)

	if len(once) != len(twice) {
		t.Fatalf("not idempotent: %v vs %v", titles(once), titles(twice))
	}
	for i := range once {
		if once[i].Fingerprint != twice[i].Fingerprint {
			t.Errorf("position %d differs", i)
		}
	}
}

func TestDedupe_EmptyAndNilSeen(t *testing.T) {
	if got := Dedupe(nil, setMembership{}); len(got) != 0 {
		t.Errorf("Dedupe(nil) = %v, want empty", got)
	}
	got := Dedupe([]model.JobRecord{rec("a"), rec("a")}, nil)
	if len(got) != 1 {
		t.Errorf("nil seen: got %d, want 1", len(got))
	}
}

func TestDedupe_AllSeen(t *testing.T) {
	a := rec("a")
	if got := Dedupe([]model.JobRecord{a}, setMembership{a.Fingerprint: true}); len(got) != 0 {
		t.Errorf("got %v, want empty", titles(got))
	}
}
