package embedding_test

import (
	"context"
	"testing"

	"github.com/vaultmind/memcore/internal/embedding"
)

func TestLocalClient_Deterministic(t *testing.T) {
	c := embedding.NewLocalClient(16)
	a, err := c.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	b, err := c.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("expected deterministic output, component %d differs: %f != %f", i, a[i], b[i])
		}
	}
}

func TestLocalClient_DimensionMatches(t *testing.T) {
	c := embedding.NewLocalClient(32)
	v, err := c.Embed(context.Background(), "anything")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(v) != 32 {
		t.Fatalf("want dimension 32, got %d", len(v))
	}
	if c.Dimension() != 32 {
		t.Fatalf("want Dimension() 32, got %d", c.Dimension())
	}
}

func TestLocalClient_EmbedBatchMatchesEmbed(t *testing.T) {
	c := embedding.NewLocalClient(8)
	ctx := context.Background()
	single, _ := c.Embed(ctx, "batch item")
	batch, err := c.EmbedBatch(ctx, []string{"batch item"})
	if err != nil {
		t.Fatalf("embed_batch: %v", err)
	}
	for i := range single {
		if single[i] != batch[0][i] {
			t.Fatalf("embed and embed_batch diverged at %d", i)
		}
	}
}

func TestLocalClient_DistinctInputsDiffer(t *testing.T) {
	c := embedding.NewLocalClient(16)
	ctx := context.Background()
	a, _ := c.Embed(ctx, "alpha")
	b, _ := c.Embed(ctx, "beta")
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("expected distinct inputs to produce distinct vectors")
	}
}
