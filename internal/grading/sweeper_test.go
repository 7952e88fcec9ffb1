package grading

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mqcontracts "studyhub/contracts/mq"
)

// pendingStub orders like the submissions table: skip rows requested since
// before, then never-requested first, then least recently requested.
type pendingStub struct {
	rows      []mqcontracts.SubmissionCreatedPayload
	requested map[int64]time.Time
	before    time.Time
	limit     int
	err       error
	markErr   error
}

func (p *pendingStub) PendingGrading(_ context.Context, before time.Time, limit int) ([]mqcontracts.SubmissionCreatedPayload, error) {
	p.before, p.limit = before, limit
	if p.err != nil {
		return nil, p.err
	}
	var due []mqcontracts.SubmissionCreatedPayload
	for _, r := range p.rows {
		if at, ok := p.requested[r.SubmissionID]; !ok || at.Before(before) {
			due = append(due, r)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		ai, iok := p.requested[due[i].SubmissionID]
		aj, jok := p.requested[due[j].SubmissionID]
		if iok != jok {
			return !iok
		}
		return ai.Before(aj)
	})
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (p *pendingStub) MarkRegradeRequested(_ context.Context, ids []int64, at time.Time) error {
	if p.markErr != nil {
		return p.markErr
	}
	if p.requested == nil {
		p.requested = map[int64]time.Time{}
	}
	for _, id := range ids {
		p.requested[id] = at
	}
	return nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	keys    []string
	ids     []int64
	failFor int64
}

func (r *recordingPublisher) PublishWithContext(_ context.Context, key string, payload any) error {
	p := payload.(mqcontracts.SubmissionCreatedPayload)
	if p.SubmissionID == r.failFor {
		return errors.New("broker down")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
	r.ids = append(r.ids, p.SubmissionID)
	return nil
}

func TestSweepOnceRequeuesPending(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	store := &pendingStub{rows: []mqcontracts.SubmissionCreatedPayload{
		{SubmissionID: 1, MilestoneID: 9, GroupID: 3},
		{SubmissionID: 2, MilestoneID: 9, GroupID: 3},
		{SubmissionID: 3, MilestoneID: 9, GroupID: 3},
	}}
	pub := &recordingPublisher{failFor: 2}

	s := NewSweeper(store, pub, 10*time.Minute, 0, zap.NewNop())
	s.now = func() time.Time { return now }

	n, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 3}, pub.ids)
	assert.Equal(t, []string{mqcontracts.RoutingKeySubmissionCreated, mqcontracts.RoutingKeySubmissionCreated}, pub.keys)
	assert.Equal(t, now.Add(-10*time.Minute), store.before)
	assert.Equal(t, 50, store.limit)
	assert.Equal(t, map[int64]time.Time{1: now, 3: now}, store.requested, "only published rows are stamped")
}

func TestSweepRotatesThroughStuckSubmissions(t *testing.T) {
	store := &pendingStub{}
	for id := int64(1); id <= 5; id++ {
		store.rows = append(store.rows, mqcontracts.SubmissionCreatedPayload{SubmissionID: id})
	}
	pub := &recordingPublisher{}

	clock := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	s := NewSweeper(store, pub, 10*time.Minute, 2, zap.NewNop())
	s.now = func() time.Time { return clock }

	// none of them ever gets a verdict
	for i := 0; i < 3; i++ {
		_, err := s.SweepOnce(context.Background())
		require.NoError(t, err)
		clock = clock.Add(11 * time.Minute)
	}
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 1}, pub.ids)
}

func TestSweepSkipsRecentlyRequested(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	store := &pendingStub{
		rows:      []mqcontracts.SubmissionCreatedPayload{{SubmissionID: 1}, {SubmissionID: 2}},
		requested: map[int64]time.Time{1: now.Add(-time.Minute)},
	}
	pub := &recordingPublisher{}
	s := NewSweeper(store, pub, 10*time.Minute, 10, zap.NewNop())
	s.now = func() time.Time { return now }

	_, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, pub.ids)
}

func TestSweepStampFailureStillReportsPublished(t *testing.T) {
	store := &pendingStub{
		rows:    []mqcontracts.SubmissionCreatedPayload{{SubmissionID: 1}},
		markErr: errors.New("db down"),
	}
	s := NewSweeper(store, &recordingPublisher{}, time.Minute, 10, zap.NewNop())

	n, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSweepOnceStoreError(t *testing.T) {
	s := NewSweeper(&pendingStub{err: errors.New("db down")}, &recordingPublisher{}, time.Minute, 10, zap.NewNop())

	n, err := s.SweepOnce(context.Background())
	assert.Error(t, err)
	assert.Zero(t, n)
}

func TestSweptSubmissionIsGraded(t *testing.T) {
	w := newWorld()
	w.members[7] = []int64{100}
	id := w.submit(100, "notes")

	g, _, _ := newGrader(w, verdicts{})
	require.NoError(t, g.Grade(context.Background(), id))
	require.Nil(t, w.submissions[id].GradedAt)

	g, _, _ = newGrader(w, verdicts{"notes": pass})
	pub := &recordingPublisher{}
	s := NewSweeper(&pendingStub{rows: []mqcontracts.SubmissionCreatedPayload{{SubmissionID: id}}}, pub, 0, 0, zap.NewNop())
	_, err := s.SweepOnce(context.Background())
	require.NoError(t, err)

	for _, sid := range pub.ids {
		require.NoError(t, g.Grade(context.Background(), sid))
	}
	assert.NotNil(t, w.submissions[id].GradedAt)
	assert.True(t, w.milestone().Completed)
}
