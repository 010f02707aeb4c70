package app_test

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"placemap/internal/app"
	"placemap/internal/domain"
)

func ids(locs []domain.Location) []string {
	out := make([]string, 0, len(locs))
	for _, l := range locs {
		out = append(out, l.ID)
	}
	sort.Strings(out)
	return out
}

func TestIndex_SearchBounds(t *testing.T) {
	ix := app.NewIndex(newFakeRepo(), zerolog.Nop())
	if ix.Ready() {
		t.Fatal("index should not be ready before first load")
	}
	if got := ix.Search(domain.Bounds{West: -180, South: -90, East: 180, North: 90}); got != nil {
		t.Fatalf("empty index returned %v", got)
	}

	ix.Load([]domain.Location{
		loc("nyc", 40.7128, -74.0060),
		loc("sf", 37.7749, -122.4194),
		loc("null-island", 0, 0),
		loc("bad", 100, 0),
	})
	if !ix.Ready() || ix.Len() != 3 {
		t.Fatalf("ready=%v len=%d, want true/3", ix.Ready(), ix.Len())
	}

	got := ids(ix.Search(domain.Bounds{West: -80, South: 35, East: -70, North: 45}))
	if len(got) != 1 || got[0] != "nyc" {
		t.Fatalf("east coast: %v", got)
	}
	got = ids(ix.Search(domain.Bounds{West: -1, South: -1, East: 1, North: 1}))
	if len(got) != 1 || got[0] != "null-island" {
		t.Fatalf("origin: %v", got)
	}
}

func TestIndex_AntimeridianBox(t *testing.T) {
	ix := app.NewIndex(newFakeRepo(), zerolog.Nop())
	ix.Load([]domain.Location{
		loc("fiji", -17.7134, 178.065),
		loc("samoa", -13.759, -172.1046),
		loc("sydney", -33.8688, 151.2093),
	})
	got := ids(ix.Search(domain.Bounds{West: 170, South: -25, East: -170, North: -5}))
	if len(got) != 2 || got[0] != "fiji" || got[1] != "samoa" {
		t.Fatalf("antimeridian box: %v", got)
	}
}

func TestIndex_RunRefreshes(t *testing.T) {
	repo := newFakeRepo(loc("a", 1, 1))
	ix := app.NewIndex(repo, zerolog.Nop())
	if err := ix.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	_ = repo.UpsertLocation(context.Background(), loc("b", 2, 2))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { ix.Run(ctx, 10*time.Millisecond); close(done) }()

	deadline := time.Now().Add(2 * time.Second)
	for ix.Len() != 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	if ix.Len() != 2 {
		t.Fatalf("index not refreshed, len=%d", ix.Len())
	}
}
