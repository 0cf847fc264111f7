package cache

import (
	"testing"

	"github.com/phedlund/cloudnotes/internal/models"
)

func TestMarkDelete_ClearsOtherFlags(t *testing.T) {
	db := testDB(t)
	mustUpsert(t, db, models.Note{ID: 1, UpdateNeeded: true})

	if err := db.MarkDelete(1); err != nil {
		t.Fatalf("MarkDelete: %v", err)
	}
	n, _ := db.Get(1)
	if !n.DeleteNeeded || n.AddNeeded || n.UpdateNeeded {
		t.Errorf("flags after MarkDelete: %+v", n)
	}
}

func TestMarkDelete_UnknownID(t *testing.T) {
	db := testDB(t)
	if err := db.MarkDelete(123); err == nil {
		t.Fatal("marking a missing note should fail")
	}
}

func TestPending(t *testing.T) {
	db := testDB(t)
	mustUpsert(t, db, models.Note{ID: 1, Modified: 30, AddNeeded: true})
	mustUpsert(t, db, models.Note{ID: 2, Modified: 10, DeleteNeeded: true})
	mustUpsert(t, db, models.Note{ID: 3, Modified: 20})

	pending, err := db.Pending()
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d notes, want 2", len(pending))
	}
	// Oldest modification first.
	if pending[0].ID != 2 || pending[1].ID != 1 {
		t.Errorf("pending order = [%d %d], want [2 1]", pending[0].ID, pending[1].ID)
	}
}
