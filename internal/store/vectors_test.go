package store

import (
	"math"
	"testing"
)

func TestFactVectorRoundtrip(t *testing.T) {
	db := testDB(t)

	fact := &Fact{Key: "k", Value: StringValue("v"), Text: "k is v"}
	if err := db.InsertFact(fact); err != nil {
		t.Fatalf("InsertFact: %v", err)
	}

	vec := []float64{0.1, -0.5, 0.3, 0.0, 1.0}
	if err := db.SaveFactVector(fact.ID, vec, "hash"); err != nil {
		t.Fatalf("SaveFactVector: %v", err)
	}

	fv, err := db.GetFactVector(fact.ID)
	if err != nil {
		t.Fatalf("GetFactVector: %v", err)
	}
	if fv == nil {
		t.Fatal("expected vector, got nil")
	}
	if len(fv.Embedding) != len(vec) {
		t.Fatalf("dims = %d, want %d", len(fv.Embedding), len(vec))
	}
	for i := range vec {
		if math.Abs(fv.Embedding[i]-vec[i]) > 1e-12 {
			t.Errorf("embedding[%d] = %f, want %f", i, fv.Embedding[i], vec[i])
		}
	}
	if fv.Model != "hash" {
		t.Errorf("model = %q, want hash", fv.Model)
	}
}

func TestSaveFactVectorUpsert(t *testing.T) {
	db := testDB(t)

	fact := &Fact{Key: "k", Value: StringValue("v"), Text: "k is v"}
	db.InsertFact(fact)

	db.SaveFactVector(fact.ID, []float64{1, 2, 3}, "hash")
	if err := db.SaveFactVector(fact.ID, []float64{4, 5, 6}, "ollama:nomic"); err != nil {
		t.Fatalf("SaveFactVector upsert: %v", err)
	}

	fv, _ := db.GetFactVector(fact.ID)
	if fv.Embedding[0] != 4 {
		t.Errorf("embedding[0] = %f, want 4 after upsert", fv.Embedding[0])
	}
	if fv.Model != "ollama:nomic" {
		t.Errorf("model = %q, want ollama:nomic", fv.Model)
	}
}

func TestChunkVectorRoundtrip(t *testing.T) {
	db := testDB(t)

	testChunk(t, db, "c1", "sess-1", "alpha")
	vec := []float64{0.25, 0.75}
	if err := db.SaveChunkVector("c1", vec, "hash"); err != nil {
		t.Fatalf("SaveChunkVector: %v", err)
	}

	cv, err := db.GetChunkVector("c1")
	if err != nil {
		t.Fatalf("GetChunkVector: %v", err)
	}
	if cv == nil || len(cv.Embedding) != 2 || cv.Embedding[1] != 0.75 {
		t.Errorf("chunk vector roundtrip failed: %+v", cv)
	}

	missing, err := db.GetChunkVector("nope")
	if err != nil {
		t.Fatalf("GetChunkVector missing: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing chunk vector")
	}
}
