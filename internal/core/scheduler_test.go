package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/JonMunkholm/gemstock/internal/config"
)

type fakePruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	err     error
}

func (p *fakePruner) PruneBatches(_ context.Context, before time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cutoffs = append(p.cutoffs, before)
	return 3, p.err
}

func (p *fakePruner) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cutoffs)
}

func TestPruneHistory_Cutoff(t *testing.T) {
	p := &fakePruner{}
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	pruneHistory(context.Background(), p, 48*time.Hour, func() time.Time { return now })

	assert.Equal(t, []time.Time{now.Add(-48 * time.Hour)}, p.cutoffs)
}

func TestPruneHistory_ErrorIsLogged(t *testing.T) {
	p := &fakePruner{err: errors.New("connection refused")}
	pruneHistory(context.Background(), p, time.Hour, time.Now)
	assert.Equal(t, 1, p.calls())
}

func TestRunHistoryPruner_DisabledReturnsImmediately(t *testing.T) {
	p := &fakePruner{}
	RunHistoryPruner(context.Background(), p, config.HistoryConfig{Retention: 0, CheckInterval: time.Millisecond})
	assert.Equal(t, 0, p.calls())
}

func TestRunHistoryPruner_RunsUntilCancelled(t *testing.T) {
	p := &fakePruner{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		RunHistoryPruner(ctx, p, config.HistoryConfig{Retention: time.Hour, CheckInterval: 5 * time.Millisecond})
		close(done)
	}()

	assert.Eventually(t, func() bool { return p.calls() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pruner did not stop")
	}
}
