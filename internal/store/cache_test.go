package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

// counting is a predictor that scores by sequence length and counts its calls.
type counting struct {
	calls int
	err   error
}

func (c *counting) Predict(_ context.Context, seq, _ string, _ int) (float64, error) {
	c.calls++
	if c.err != nil {
		return 0, c.err
	}
	return float64(len(seq)) * 100, nil
}

func TestCache_Predict(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "cache", "predictions.db")
	next := &counting{}

	c, err := Open(ctx, dsn, "median(NetMHC)", next)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	tests := []struct {
		name      string
		seq       string
		allele    string
		want      float64
		wantCalls int
	}{
		{"miss", "SIINFEKL", "HLA-A*02:01", 800, 1},
		{"hit", "SIINFEKL", "HLA-A*02:01", 800, 1},
		{"other allele misses", "SIINFEKL", "HLA-B*07:02", 800, 2},
		{"other seq misses", "SLYNTVATL", "HLA-A*02:01", 900, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Predict(ctx, tt.seq, tt.allele, len(tt.seq))
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Cache.Predict() = %v, want %v", got, tt.want)
			}
			if next.calls != tt.wantCalls {
				t.Errorf("predictor called %d times, want %d", next.calls, tt.wantCalls)
			}
		})
	}

	if n, err := c.Len(ctx); err != nil || n != 3 {
		t.Errorf("Cache.Len() = (%d, %v), want 3", n, err)
	}

	// a second run against the same file reuses the predictions
	c.Close()
	again := &counting{}
	c, err = Open(ctx, dsn, "median(NetMHC)", again)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Predict(ctx, "SIINFEKL", "HLA-A*02:01", 8); err != nil || again.calls != 0 {
		t.Errorf("reopened cache missed: calls = %d, err = %v", again.calls, err)
	}
}

func TestCache_Predict_errorsNotCached(t *testing.T) {
	ctx := context.Background()
	errDown := errors.New("predictor down")
	next := &counting{err: errDown}

	c, err := Open(ctx, filepath.Join(t.TempDir(), "p.db"), "SMM", next)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if _, err := c.Predict(ctx, "SIINFEKL", "HLA-A*02:01", 8); !errors.Is(err, errDown) {
		t.Fatalf("Cache.Predict() error = %v, want %v", err, errDown)
	}

	next.err = nil
	if got, err := c.Predict(ctx, "SIINFEKL", "HLA-A*02:01", 8); err != nil || got != 800 {
		t.Errorf("Cache.Predict() after failure = (%v, %v), want 800", got, err)
	}
	if next.calls != 2 {
		t.Errorf("predictor called %d times, want 2", next.calls)
	}
}

func TestCache_rebind(t *testing.T) {
	tests := []struct {
		driver string
		want   string
	}{
		{"sqlite", "a = ? AND b = ?"},
		{"pgx", "a = $1 AND b = $2"},
	}
	for _, tt := range tests {
		c := &Cache{driver: tt.driver}
		if got := c.rebind("a = ? AND b = ?"); got != tt.want {
			t.Errorf("rebind() on %s = %q, want %q", tt.driver, got, tt.want)
		}
	}
}
