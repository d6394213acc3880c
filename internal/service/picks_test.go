package service

import (
	"context"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestCreatePick(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	f := newPoolFixture(t, env, []string{"c1", "c2", "c3"}, map[int]string{1: "c3"}, "alice")

	view, err := env.svc.CreatePick(ctx, f.poolID, CreatePickRequest{
		UserID:       f.ownerID.Hex(),
		ContestantID: "c1",
	})
	if err != nil {
		t.Fatalf("pick: %v", err)
	}
	if view.Week != 1 || view.ContestantID != "c1" || view.PoolID != f.poolID {
		t.Fatalf("view: %+v", view)
	}
}

func TestCreatePick_Rejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	f := newPoolFixture(t, env, []string{"c1", "c2", "c3", "c4"}, map[int]string{1: "c4", 2: "c3"}, "alice")
	outsider := env.seedUser(t, "zara", "Zara")

	_, err := env.svc.CreatePick(ctx, primitive.NewObjectID().Hex(), CreatePickRequest{UserID: f.ownerID.Hex(), ContestantID: "c1"})
	requireServiceError(t, err, "NOT_FOUND")

	_, err = env.svc.CreatePick(ctx, f.poolID, CreatePickRequest{UserID: outsider.Hex(), ContestantID: "c1"})
	serr := requireServiceError(t, err, "FORBIDDEN")
	if serr.Message != "User is not active in this pool" {
		t.Fatalf("message: %q", serr.Message)
	}

	_, err = env.svc.CreatePick(ctx, f.poolID, CreatePickRequest{UserID: f.ownerID.Hex(), ContestantID: "ghost"})
	requireServiceError(t, err, "NOT_FOUND")

	f.pick(t, env, f.ownerID, "c1")
	_, err = env.svc.CreatePick(ctx, f.poolID, CreatePickRequest{UserID: f.ownerID.Hex(), ContestantID: "c2"})
	serr = requireServiceError(t, err, "INVALID_ARGUMENT")
	if serr.Message != "Pick already locked for this week" {
		t.Fatalf("message: %q", serr.Message)
	}
}

func TestCreatePick_ContestantReuseAcrossWeeks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	f := newPoolFixture(t, env, []string{"c1", "c2", "c3", "c4"}, map[int]string{1: "c4", 2: "c3"}, "alice")

	f.pick(t, env, f.ownerID, "c1")
	f.pick(t, env, f.members["alice"], "c2")
	if _, err := env.svc.AdvanceWeek(ctx, f.poolID, f.ownerID.Hex()); err != nil {
		t.Fatalf("advance: %v", err)
	}

	_, err := env.svc.CreatePick(ctx, f.poolID, CreatePickRequest{UserID: f.ownerID.Hex(), ContestantID: "c1"})
	serr := requireServiceError(t, err, "INVALID_ARGUMENT")
	if serr.Message != "Contestant already picked in week 1" {
		t.Fatalf("message: %q", serr.Message)
	}
}

func TestCreatePick_EliminatedContestant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	f := newPoolFixture(t, env, []string{"c1", "c2", "c3", "c4"}, map[int]string{1: "c4", 2: "c3"}, "alice", "bert")

	// A boot scheduled for the current week has not aired yet, so it still
	// counts as a legal pick.
	if _, err := env.svc.CreatePick(ctx, f.poolID, CreatePickRequest{UserID: f.ownerID.Hex(), ContestantID: "c4"}); err != nil {
		t.Fatalf("current-week boot should be pickable: %v", err)
	}

	f.pick(t, env, f.members["alice"], "c1")
	f.pick(t, env, f.members["bert"], "c2")
	if _, err := env.svc.AdvanceWeek(ctx, f.poolID, f.ownerID.Hex()); err != nil {
		t.Fatalf("advance: %v", err)
	}

	// The owner went out with c4; alice plays on into week 2.
	_, err := env.svc.CreatePick(ctx, f.poolID, CreatePickRequest{UserID: f.members["alice"].Hex(), ContestantID: "c4"})
	serr := requireServiceError(t, err, "INVALID_ARGUMENT")
	if serr.Message != "Contestant already eliminated" {
		t.Fatalf("message: %q", serr.Message)
	}
}
