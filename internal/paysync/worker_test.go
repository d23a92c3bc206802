package paysync

import (
	"context"
	"errors"
	"testing"
	"time"

	"karting-finance/internal/models"
)

type fakeLister struct {
	byChampionship map[string][]models.Registration
	listErr        error
	scopes         []string
}

func (f *fakeLister) ListRegistrations(_ context.Context, scope models.Scope) ([]models.Registration, error) {
	f.scopes = append(f.scopes, scope.ChampionshipID)
	return f.byChampionship[scope.ChampionshipID], nil
}

func (f *fakeLister) ListChampionships(context.Context) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return []string{"c1", "c2"}, nil
}

func newWorkerFixture() (*fakeLister, *fakeGateway, *Synchronizer) {
	src := &fakeSource{payments: map[string][]models.Payment{
		"r1": {{Status: "PENDING"}},
		"r2": {{Status: "AWAITING_PAYMENT"}},
	}}
	lister := &fakeLister{byChampionship: map[string][]models.Registration{
		"c1": {{ID: "r1", Payments: []models.Payment{{Status: "PENDING"}}}},
		"c2": {{ID: "r2", Payments: []models.Payment{{Status: "AWAITING_PAYMENT"}}}},
	}}
	gw := &fakeGateway{src: src}
	return lister, gw, New(src, gw, discard())
}

func TestWorker_RunOnceAllChampionships(t *testing.T) {
	lister, gw, s := newWorkerFixture()
	w := NewWorker(s, lister, nil, time.Minute, discard())

	w.RunOnce(context.Background())

	if len(lister.scopes) != 2 {
		t.Errorf("scopes = %v", lister.scopes)
	}
	if len(gw.synced) != 2 {
		t.Errorf("synced = %v", gw.synced)
	}
}

func TestWorker_RunOnceConfiguredChampionships(t *testing.T) {
	lister, gw, s := newWorkerFixture()
	lister.listErr = errors.New("must not be called")
	w := NewWorker(s, lister, []string{"c2"}, time.Minute, discard())

	w.RunOnce(context.Background())

	if len(gw.synced) != 1 || gw.synced[0] != "r2" {
		t.Errorf("synced = %v", gw.synced)
	}
}

func TestWorker_StopTwice(t *testing.T) {
	lister, _, s := newWorkerFixture()
	w := NewWorker(s, lister, nil, time.Hour, discard())
	w.Start()
	w.Stop()
	w.Stop()
}
