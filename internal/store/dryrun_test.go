package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/amishk599/boardwatch/internal/model"
)

func TestDryRunStore_SeesBaseButNeverWrites(t *testing.T) {
	base, path := newJSONStore(t)
	known := makeRecord("Go Engineer", "Acme")
	if _, err := base.Append(context.Background(), []model.JobRecord{known}); err != nil {
		t.Fatal(err)
	}
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	dry := NewDryRunStore(base)
	if !dry.Contains(known.Fingerprint) {
		t.Error("dry run should see base records")
	}

	fresh := makeRecord("SRE", "Globex")
	added, err := dry.Append(context.Background(), []model.JobRecord{known, fresh})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if len(added) != 1 || added[0].Fingerprint != fresh.Fingerprint {
		t.Errorf("added = %+v, want only the unseen record", added)
	}
	if !dry.Contains(fresh.Fingerprint) {
		t.Error("dry run should remember its own appends")
	}
	if dry.Len() != 2 {
		t.Errorf("Len = %d, want 2", dry.Len())
	}
	if base.Contains(fresh.Fingerprint) {
		t.Error("base store must not receive dry-run appends")
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("store file changed during dry run")
	}
}

func TestDryRunStore_NilBase(t *testing.T) {
	dry := NewDryRunStore(nil)
	rec := makeRecord("Go Engineer", "Acme")
	if dry.Contains(rec.Fingerprint) {
		t.Error("empty dry-run store should contain nothing")
	}
	if _, err := dry.Append(context.Background(), []model.JobRecord{rec, rec}); err != nil {
		t.Fatal(err)
	}
	if got := dry.Records(); len(got) != 1 {
		t.Errorf("Records = %d, want 1", len(got))
	}
}

func TestOpen_UnknownKind(t *testing.T) {
	if _, _, err := Open("mongo", filepath.Join(t.TempDir(), "x")); err == nil {
		t.Fatal("expected error for unknown store type")
	}
}

func TestOpen_JSONDefault(t *testing.T) {
	s, closer, err := Open("", filepath.Join(t.TempDir(), "jobs.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer closer.Close()
	if _, ok := s.(*JSONStore); !ok {
		t.Errorf("Open(\"\") = %T, want *JSONStore", s)
	}
}
