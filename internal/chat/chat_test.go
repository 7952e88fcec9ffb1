package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mqcontracts "studyhub/contracts/mq"
	"studyhub/internal/classifier"
	"studyhub/internal/model"
	"studyhub/internal/realtime"
	"studyhub/internal/transcript"
)

// memStore is an in-memory message table that records call order.
type memStore struct {
	mu        sync.Mutex
	msgs      map[int64]model.ChatMessage
	nextID    int64
	failWrite error
	journal   *[]string
}

func newMemStore(journal *[]string) *memStore {
	return &memStore{msgs: map[int64]model.ChatMessage{}, nextID: 100, journal: journal}
}

func (s *memStore) add(m model.ChatMessage) model.ChatMessage {
	s.nextID++
	m.ID = s.nextID
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	s.msgs[m.ID] = m
	return m
}

func (s *memStore) CreateHuman(_ context.Context, groupID, authorID int64, body string) (model.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*s.journal = append(*s.journal, "store")
	if s.failWrite != nil {
		return model.ChatMessage{}, s.failWrite
	}
	return s.add(model.ChatMessage{GroupID: groupID, AuthorID: &authorID, Kind: model.MessageHuman, Body: body}), nil
}

func (s *memStore) CreateSystem(_ context.Context, groupID int64, p model.ActionProposal) (model.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*s.journal = append(*s.journal, "store")
	if s.failWrite != nil {
		return model.ChatMessage{}, s.failWrite
	}
	return s.add(model.ChatMessage{GroupID: groupID, Kind: model.MessageSystem, Body: p.ReplyText, Proposal: &p}), nil
}

func (s *memStore) GetMessage(_ context.Context, id int64) (model.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[id]
	if !ok {
		return model.ChatMessage{}, model.ErrNotFound
	}
	return m, nil
}

func (s *memStore) RecentMessages(_ context.Context, groupID int64, _ time.Time, _ int) ([]model.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ChatMessage
	for id := int64(101); id <= s.nextID; id++ {
		if m, ok := s.msgs[id]; ok && m.GroupID == groupID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) systemMessages() []model.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ChatMessage
	for _, m := range s.msgs {
		if m.IsSystemAuthored() {
			out = append(out, m)
		}
	}
	return out
}

type recordingBroadcaster struct {
	events  []realtime.Event
	err     error
	journal *[]string
}

func (b *recordingBroadcaster) Publish(_ context.Context, ev realtime.Event) error {
	*b.journal = append(*b.journal, "broadcast:"+string(ev.Type))
	b.events = append(b.events, ev)
	return b.err
}

type recordingPublisher struct {
	keys     []string
	payloads []any
	err      error
	journal  *[]string
}

func (p *recordingPublisher) PublishWithContext(_ context.Context, key string, payload any) error {
	*p.journal = append(*p.journal, "dispatch:"+key)
	p.keys = append(p.keys, key)
	p.payloads = append(p.payloads, payload)
	return p.err
}

type allowAll struct{ err error }

func (a allowAll) Require(_ context.Context, groupID, userID int64, _ string) (model.Membership, error) {
	if a.err != nil {
		return model.Membership{}, a.err
	}
	return model.Membership{GroupID: groupID, UserID: userID, Role: "member"}, nil
}

type memDedup struct {
	mu   sync.Mutex
	seen map[int64]bool
}

func (d *memDedup) AcquireOnce(_ context.Context, _ string, id int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen == nil {
		d.seen = map[int64]bool{}
	}
	if d.seen[id] {
		return false
	}
	d.seen[id] = true
	return true
}

func (d *memDedup) Release(_ context.Context, _ string, id int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
}

type stubCompleter struct {
	reply string
	err   error
	calls int
	last  string
}

func (c *stubCompleter) Complete(_ context.Context, _ string, prompt string) (string, error) {
	c.calls++
	c.last = prompt
	return c.reply, c.err
}

type noNames struct{}

func (noNames) DisplayNames(context.Context, []int64) (map[int64]string, error) {
	return map[int64]string{7: "Alice"}, nil
}

type harness struct {
	journal   []string
	store     *memStore
	bc        *recordingBroadcaster
	completer *stubCompleter
	pipeline  *Pipeline
	service   *Service
	pub       *recordingPublisher
}

func newHarness(reply string) *harness {
	h := &harness{}
	h.store = newMemStore(&h.journal)
	h.bc = &recordingBroadcaster{journal: &h.journal}
	h.pub = &recordingPublisher{journal: &h.journal}
	h.completer = &stubCompleter{reply: reply}

	log := zap.NewNop()
	builder := transcript.NewBuilder(h.store, noNames{}, 24*time.Hour, 20, log)
	facade := classifier.NewFacade(h.completer, classifier.Options{Timeout: time.Second}, log)
	emitter := NewEmitter(h.store, h.bc, log)
	h.pipeline = NewPipeline(h.store, builder, facade, emitter, &memDedup{}, log)
	h.service = NewService(h.store, allowAll{}, h.bc, h.pub, 500, log)
	return h
}

func TestEmitterSafeDefaultIsSilent(t *testing.T) {
	var journal []string
	store := newMemStore(&journal)
	bc := &recordingBroadcaster{journal: &journal}

	msg, err := NewEmitter(store, bc, zap.NewNop()).Emit(context.Background(), 1, model.SafeDefault())

	require.NoError(t, err)
	assert.Nil(t, msg)
	assert.Empty(t, journal)
}

func TestEmitterPersistsBeforeBroadcast(t *testing.T) {
	var journal []string
	store := newMemStore(&journal)
	bc := &recordingBroadcaster{journal: &journal, err: errors.New("redis down")}

	p := model.CreateMilestones("Want me to add this?", []model.MilestoneDraft{{Title: "Finish Ch.5"}})
	msg, err := NewEmitter(store, bc, zap.NewNop()).Emit(context.Background(), 1, p)

	require.NoError(t, err, "broadcast failure must not fail the emit")
	require.NotNil(t, msg)
	assert.Equal(t, []string{"store", "broadcast:new-message"}, journal)
	assert.False(t, msg.Proposal.Confirmed)
	assert.Equal(t, model.ActionCreateMilestones, msg.Proposal.Kind)
}

func TestEmitterStoreFailureSkipsBroadcast(t *testing.T) {
	var journal []string
	store := newMemStore(&journal)
	store.failWrite = errors.New("db down")
	bc := &recordingBroadcaster{journal: &journal}

	_, err := NewEmitter(store, bc, zap.NewNop()).Emit(context.Background(), 1, model.Reply("hi"))

	require.Error(t, err)
	assert.Empty(t, bc.events)
}

func TestPostThenClassifyDirectQuestion(t *testing.T) {
	h := newHarness(`{"shouldRespond": true, "replyText": "4", "actionKind": null, "sessionDrafts": null, "milestoneDrafts": null}`)
	ctx := context.Background()

	posted, err := h.service.Post(ctx, PostRequest{GroupID: 1, UserID: 7, Body: "@AI what's 2+2?"})
	require.NoError(t, err)
	assert.Equal(t, []string{"store", "broadcast:new-message", "dispatch:chat.message.posted"}, h.journal)

	payload, ok := h.pub.payloads[0].(mqcontracts.ChatMessagePostedPayload)
	require.True(t, ok)
	assert.Equal(t, posted.ID, payload.MessageID)

	require.NoError(t, h.pipeline.Handle(ctx, payload.MessageID))

	replies := h.store.systemMessages()
	require.Len(t, replies, 1)
	reply := replies[0]
	assert.Equal(t, "4", reply.Proposal.ReplyText)
	assert.Equal(t, model.ActionNone, reply.Proposal.Kind)
	assert.Nil(t, reply.Proposal.SessionDrafts)
	assert.Nil(t, reply.Proposal.MilestoneDrafts)
	assert.False(t, reply.Proposal.Confirmed)
	assert.Contains(t, h.completer.last, "Alice: @AI what's 2+2?")
	assert.Len(t, h.bc.events, 2)
}

func TestPipelineSafeDefaultWritesNothing(t *testing.T) {
	h := newHarness("not json at all")
	ctx := context.Background()

	posted, err := h.service.Post(ctx, PostRequest{GroupID: 1, UserID: 7, Body: "see you tomorrow"})
	require.NoError(t, err)
	events := len(h.bc.events)

	require.NoError(t, h.pipeline.Handle(ctx, posted.ID))

	assert.Empty(t, h.store.systemMessages())
	assert.Len(t, h.bc.events, events)
}

func TestPipelineRedeliveryIsDeduplicated(t *testing.T) {
	h := newHarness(`{"shouldRespond": true, "replyText": "hello"}`)
	ctx := context.Background()

	posted, err := h.service.Post(ctx, PostRequest{GroupID: 1, UserID: 7, Body: "@AI hi"})
	require.NoError(t, err)

	require.NoError(t, h.pipeline.Handle(ctx, posted.ID))
	require.NoError(t, h.pipeline.Handle(ctx, posted.ID))

	assert.Len(t, h.store.systemMessages(), 1)
	assert.Equal(t, 1, h.completer.calls)
}

func TestPipelineIgnoresSystemTrigger(t *testing.T) {
	h := newHarness(`{"shouldRespond": true, "replyText": "loop"}`)
	ctx := context.Background()

	msg, err := h.store.CreateSystem(ctx, 1, model.Reply("earlier reply"))
	require.NoError(t, err)

	require.NoError(t, h.pipeline.Handle(ctx, msg.ID))
	assert.Equal(t, 0, h.completer.calls)
	assert.Len(t, h.store.systemMessages(), 1)
}

func TestPipelineEmitFailureAllowsRetry(t *testing.T) {
	h := newHarness(`{"shouldRespond": true, "replyText": "hello"}`)
	ctx := context.Background()

	posted, err := h.service.Post(ctx, PostRequest{GroupID: 1, UserID: 7, Body: "@AI hi"})
	require.NoError(t, err)

	h.store.failWrite = errors.New("db down")
	require.Error(t, h.pipeline.Handle(ctx, posted.ID))

	h.store.failWrite = nil
	require.NoError(t, h.pipeline.Handle(ctx, posted.ID))
	assert.Len(t, h.store.systemMessages(), 1)
}

func TestPipelineUnknownMessage(t *testing.T) {
	h := newHarness(`{}`)
	err := h.pipeline.Handle(context.Background(), 999)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestPostValidation(t *testing.T) {
	h := newHarness(`{}`)
	ctx := context.Background()

	_, err := h.service.Post(ctx, PostRequest{GroupID: 1, UserID: 7, Body: "   "})
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	long := make([]rune, 501)
	for i := range long {
		long[i] = 'x'
	}
	_, err = h.service.Post(ctx, PostRequest{GroupID: 1, UserID: 7, Body: string(long)})
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	h.service.auth = allowAll{err: model.ErrNotMember}
	_, err = h.service.Post(ctx, PostRequest{GroupID: 1, UserID: 8, Body: "hi"})
	assert.ErrorIs(t, err, model.ErrNotMember)
	assert.Empty(t, h.journal)
}

func TestPostRejectsNonMemberBeforeValidation(t *testing.T) {
	h := newHarness(`{}`)
	h.service.auth = allowAll{err: model.ErrNotMember}

	_, err := h.service.Post(context.Background(), PostRequest{GroupID: 1, UserID: 8, Body: "  "})
	assert.ErrorIs(t, err, model.ErrNotMember)
	assert.NotErrorIs(t, err, model.ErrInvalidInput)
	assert.Empty(t, h.journal)
}

func TestPostSurvivesDispatchFailure(t *testing.T) {
	h := newHarness(`{}`)
	h.pub.err = errors.New("broker down")

	msg, err := h.service.Post(context.Background(), PostRequest{GroupID: 1, UserID: 7, Body: "hi"})
	require.NoError(t, err)
	assert.NotZero(t, msg.ID)
}
