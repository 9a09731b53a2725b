package engine

import (
	"context"
	"math"
	"testing"
)

func TestHashEmbedderDeterministic(t *testing.T) {
	emb := NewHashEmbedder(256)
	ctx := context.Background()

	a, err := emb.Embed(ctx, "my name is Morten")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	b, _ := emb.Embed(ctx, "my name is Morten")

	if sim := CosineSimilarity(a, b); math.Abs(sim-1.0) > 1e-12 {
		t.Errorf("identical text similarity = %f, want 1.0", sim)
	}
}

func TestHashEmbedderNormalized(t *testing.T) {
	emb := NewHashEmbedder(256)

	vec, _ := emb.Embed(context.Background(), "some arbitrary sentence about databases")
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if math.Abs(math.Sqrt(norm)-1.0) > 1e-9 {
		t.Errorf("norm = %f, want 1.0", math.Sqrt(norm))
	}
}

func TestHashEmbedderDiscriminates(t *testing.T) {
	emb := NewHashEmbedder(256)
	ctx := context.Background()

	name, _ := emb.Embed(ctx, "my name is Morten")
	similar, _ := emb.Embed(ctx, "what is my name")
	unrelated, _ := emb.Embed(ctx, "compile the kernel with gcc")

	simClose := CosineSimilarity(name, similar)
	simFar := CosineSimilarity(name, unrelated)
	if simClose <= simFar {
		t.Errorf("similar %f <= unrelated %f", simClose, simFar)
	}
}

func TestHashEmbedderEmptyText(t *testing.T) {
	emb := NewHashEmbedder(64)

	vec, err := emb.Embed(context.Background(), "!!! ???")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 64 {
		t.Errorf("dims = %d, want 64", len(vec))
	}
	for _, v := range vec {
		if v != 0 {
			t.Error("expected zero vector for token-free text")
			break
		}
	}
}

func TestCosineSimilarityBounds(t *testing.T) {
	a := []float64{1, 0}
	b := []float64{0, 1}
	if sim := CosineSimilarity(a, b); sim != 0 {
		t.Errorf("orthogonal similarity = %f, want 0", sim)
	}
	if sim := CosineSimilarity(a, []float64{-1, 0}); sim != -1 {
		t.Errorf("opposite similarity = %f, want -1", sim)
	}
	if sim := CosineSimilarity(a, []float64{1, 0, 0}); sim != 0 {
		t.Errorf("mismatched dims similarity = %f, want 0", sim)
	}
	if d := CosineDistance(a, []float64{-1, 0}); d != 2 {
		t.Errorf("opposite distance = %f, want 2", d)
	}
}
