package worker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/kozaktomas/person-matcher/internal/database"
	"github.com/kozaktomas/person-matcher/internal/database/mock"
	"github.com/kozaktomas/person-matcher/internal/person"
	"github.com/kozaktomas/person-matcher/internal/reid"
)

// seedMisfiledStore builds two groups and three sightings where the third
// sighting sits in the wrong group: it describes the group-a subject but is
// stored under group-b.
func seedMisfiledStore(t *testing.T) (*mock.MockGroupWriter, *mock.MockSightingWriter, database.StoredSighting) {
	t.Helper()
	inked := mustNormalize(t, rawInked())
	blonde := mustNormalize(t, rawBlonde())

	groups := mock.NewMockGroupWriter()
	groups.AddGroup(database.StoredGroup{
		ID:                   "group-a",
		CanonicalDescription: *inked,
		CanonicalClarity:     person.Clarity(inked),
		MemberCount:          2,
	})
	groups.AddGroup(database.StoredGroup{
		ID:                   "group-b",
		CanonicalDescription: *blonde,
		CanonicalClarity:     person.Clarity(blonde),
		MemberCount:          2,
	})

	sightings := mock.NewMockSightingWriter()
	sightings.AddSighting(database.StoredSighting{GroupID: "group-a", Description: *inked, Clarity: person.Clarity(inked)})
	sightings.AddSighting(database.StoredSighting{GroupID: "group-b", Description: *blonde, Clarity: person.Clarity(blonde)})
	misfiled := sightings.AddSighting(database.StoredSighting{GroupID: "group-b", Description: *inked, Clarity: person.Clarity(inked)})

	return groups, sightings, misfiled
}

func TestRegroupDryRun(t *testing.T) {
	groups, sightings, misfiled := seedMisfiledStore(t)
	reg := NewRegrouper(groups, sightings, reid.NewEngine(reid.DefaultConfig()), nil)

	res, err := reg.Run(context.Background(), RegroupOptions{DryRun: true, Concurrency: 2})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !res.DryRun {
		t.Error("expected DryRun to be set on the result")
	}
	if res.GroupCount != 2 {
		t.Errorf("expected 2 groups, got %d", res.GroupCount)
	}
	if res.SightingCount != 3 {
		t.Errorf("expected 3 sightings, got %d", res.SightingCount)
	}
	if len(res.Moves) != 1 {
		t.Fatalf("expected 1 move, got %d: %v", len(res.Moves), res.Moves)
	}

	move := res.Moves[0]
	if move.SightingID != misfiled.ID {
		t.Errorf("expected sighting %d to move, got %d", misfiled.ID, move.SightingID)
	}
	if move.FromGroupID != "group-b" || move.ToGroupID != "group-a" {
		t.Errorf("expected move group-b -> group-a, got %s -> %s", move.FromGroupID, move.ToGroupID)
	}
	if move.Probability < 60 {
		t.Errorf("expected probability >= 60 for an identical description, got %d", move.Probability)
	}

	if len(sightings.MoveCalls) != 0 {
		t.Errorf("dry run must not move sightings, got %d calls", len(sightings.MoveCalls))
	}
	if res.AppliedCount != 0 {
		t.Errorf("dry run must not apply, got %d", res.AppliedCount)
	}
	if groups.DeleteEmptyCalls != 0 {
		t.Errorf("dry run must not delete groups, got %d calls", groups.DeleteEmptyCalls)
	}
}

func TestRegroupApplyMovesAndRebuilds(t *testing.T) {
	groups, sightings, misfiled := seedMisfiledStore(t)
	// A leftover empty group that apply mode should sweep away.
	groups.AddGroup(database.StoredGroup{ID: "group-stale", MemberCount: 0})
	rebuilder := &mock.MockHNSWRebuilder{Enabled: true}
	reg := NewRegrouper(groups, sightings, reid.NewEngine(reid.DefaultConfig()), rebuilder)

	res, err := reg.Run(context.Background(), RegroupOptions{Concurrency: 2})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.AppliedCount != 1 {
		t.Errorf("expected 1 applied move, got %d", res.AppliedCount)
	}
	if len(sightings.MoveCalls) != 1 {
		t.Fatalf("expected 1 Move call, got %d", len(sightings.MoveCalls))
	}
	if sightings.MoveCalls[0].SightingID != misfiled.ID || sightings.MoveCalls[0].ToGroupID != "group-a" {
		t.Errorf("unexpected move: %+v", sightings.MoveCalls[0])
	}
	if groups.DeleteEmptyCalls != 1 {
		t.Errorf("expected 1 DeleteEmpty call, got %d", groups.DeleteEmptyCalls)
	}
	if res.RemovedGroups != 1 {
		t.Errorf("expected 1 removed group, got %d", res.RemovedGroups)
	}
	if rebuilder.RebuildCalls != 1 {
		t.Errorf("expected 1 index rebuild, got %d", rebuilder.RebuildCalls)
	}
	if rebuilder.SaveCalls != 1 {
		t.Errorf("expected 1 index save, got %d", rebuilder.SaveCalls)
	}
	if len(res.Errors) != 0 {
		t.Errorf("expected no errors, got %v", res.Errors)
	}
}

func TestRegroupNoMovesSkipsApply(t *testing.T) {
	inked := mustNormalize(t, rawInked())
	blonde := mustNormalize(t, rawBlonde())

	groups := mock.NewMockGroupWriter()
	groups.AddGroup(database.StoredGroup{
		ID:                   "group-a",
		CanonicalDescription: *inked,
		CanonicalClarity:     person.Clarity(inked),
		MemberCount:          1,
	})
	groups.AddGroup(database.StoredGroup{
		ID:                   "group-b",
		CanonicalDescription: *blonde,
		CanonicalClarity:     person.Clarity(blonde),
		MemberCount:          1,
	})
	sightings := mock.NewMockSightingWriter()
	sightings.AddSighting(database.StoredSighting{GroupID: "group-a", Description: *inked, Clarity: person.Clarity(inked)})
	sightings.AddSighting(database.StoredSighting{GroupID: "group-b", Description: *blonde, Clarity: person.Clarity(blonde)})

	rebuilder := &mock.MockHNSWRebuilder{Enabled: true}
	reg := NewRegrouper(groups, sightings, reid.NewEngine(reid.DefaultConfig()), rebuilder)

	res, err := reg.Run(context.Background(), RegroupOptions{Concurrency: 2})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(res.Moves) != 0 {
		t.Errorf("expected no moves for well-filed sightings, got %v", res.Moves)
	}
	if len(sightings.MoveCalls) != 0 {
		t.Errorf("expected no Move calls, got %d", len(sightings.MoveCalls))
	}
	if groups.DeleteEmptyCalls != 0 {
		t.Errorf("expected no DeleteEmpty calls without moves, got %d", groups.DeleteEmptyCalls)
	}
	if rebuilder.RebuildCalls != 0 {
		t.Errorf("expected no rebuild without moves, got %d", rebuilder.RebuildCalls)
	}
}

func TestRegroupEmptyStore(t *testing.T) {
	reg := NewRegrouper(mock.NewMockGroupWriter(), mock.NewMockSightingWriter(),
		reid.NewEngine(reid.DefaultConfig()), nil)

	res, err := reg.Run(context.Background(), RegroupOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.SightingCount != 0 || res.GroupCount != 0 || len(res.Moves) != 0 {
		t.Errorf("expected an empty result, got %+v", res)
	}
}

func TestRegroupCancelledContext(t *testing.T) {
	groups, sightings, _ := seedMisfiledStore(t)
	reg := NewRegrouper(groups, sightings, reid.NewEngine(reid.DefaultConfig()), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := reg.Run(ctx, RegroupOptions{Concurrency: 2})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(sightings.MoveCalls) != 0 {
		t.Errorf("cancelled run must not move sightings, got %d calls", len(sightings.MoveCalls))
	}
}

func TestRegroupProgressCallback(t *testing.T) {
	groups, sightings, misfiled := seedMisfiledStore(t)
	reg := NewRegrouper(groups, sightings, reid.NewEngine(reid.DefaultConfig()), nil)

	var mu sync.Mutex
	var deciding, applying []ProgressInfo
	onProgress := func(info ProgressInfo) {
		mu.Lock()
		defer mu.Unlock()
		switch info.Phase {
		case "deciding":
			deciding = append(deciding, info)
		case "applying":
			applying = append(applying, info)
		default:
			t.Errorf("unexpected phase %q", info.Phase)
		}
	}

	if _, err := reg.Run(context.Background(), RegroupOptions{Concurrency: 2, OnProgress: onProgress}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(deciding) != 3 {
		t.Errorf("expected 3 deciding events, got %d", len(deciding))
	}
	for _, info := range deciding {
		if info.Total != 3 {
			t.Errorf("expected deciding total 3, got %d", info.Total)
		}
	}
	if len(applying) != 1 {
		t.Fatalf("expected 1 applying event, got %d", len(applying))
	}
	if applying[0].SightingID != misfiled.ID {
		t.Errorf("expected applying event for sighting %d, got %d", misfiled.ID, applying[0].SightingID)
	}
	if applying[0].Current != 1 || applying[0].Total != 1 {
		t.Errorf("expected applying 1/1, got %d/%d", applying[0].Current, applying[0].Total)
	}
}
