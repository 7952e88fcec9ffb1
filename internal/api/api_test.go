package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"studyhub/internal/chat"
	"studyhub/internal/grading"
	"studyhub/internal/model"
	"studyhub/internal/proposal"
	"studyhub/pkg/trace"
)

const secret = "test-secret"

type fakePoster struct {
	got chat.PostRequest
	err error
}

func (f *fakePoster) Post(_ context.Context, req chat.PostRequest) (model.ChatMessage, error) {
	f.got = req
	if f.err != nil {
		return model.ChatMessage{}, f.err
	}
	return model.ChatMessage{ID: 11, GroupID: req.GroupID, AuthorID: &req.UserID, Kind: model.MessageHuman, Body: req.Body}, nil
}

type fakeConfirmer struct {
	got proposal.ConfirmRequest
	res proposal.ConfirmResult
	err error
}

func (f *fakeConfirmer) Confirm(_ context.Context, req proposal.ConfirmRequest) (proposal.ConfirmResult, error) {
	f.got = req
	return f.res, f.err
}

type fakeSubmitter struct {
	got grading.SubmitRequest
	err error
}

func (f *fakeSubmitter) Submit(_ context.Context, req grading.SubmitRequest) (model.MilestoneSubmission, error) {
	f.got = req
	if f.err != nil {
		return model.MilestoneSubmission{}, f.err
	}
	return model.MilestoneSubmission{ID: 5, MilestoneID: req.MilestoneID, AuthorID: req.UserID, Content: req.Content}, nil
}

type fakeSubscriber struct {
	events []string
}

func (f *fakeSubscriber) Subscribe(_ context.Context, _ int64) (<-chan []byte, error) {
	ch := make(chan []byte, len(f.events))
	for _, e := range f.events {
		ch <- []byte(e)
	}
	close(ch)
	return ch, nil
}

type memberAuth struct{ err error }

func (a memberAuth) Require(_ context.Context, groupID, userID int64, _ string) (model.Membership, error) {
	return model.Membership{GroupID: groupID, UserID: userID, Role: "member"}, a.err
}

type fixture struct {
	poster    *fakePoster
	confirmer *fakeConfirmer
	submitter *fakeSubmitter
	events    *fakeSubscriber
	ready     map[string]ReadinessCheck
	router    *Router
}

func newFixture() *fixture {
	gin.SetMode(gin.TestMode)
	f := &fixture{
		poster:    &fakePoster{},
		confirmer: &fakeConfirmer{},
		submitter: &fakeSubmitter{},
		events:    &fakeSubscriber{},
		ready:     map[string]ReadinessCheck{},
	}
	f.router = NewRouter(RouterDeps{
		Chat:        NewChatHandler(f.poster, f.confirmer),
		Submissions: NewSubmissionHandler(f.submitter),
		Events:      NewEventsHandler(f.events, memberAuth{}),
		JWTSecret:   secret,
		Readiness:   f.ready,
		Logger:      zap.NewNop(),
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string, userID int64) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID > 0 {
		token, err := GenerateJWT(userID, secret, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestAuth(t *testing.T) {
	f := newFixture()

	w := f.do(t, http.MethodPost, "/groups/1/messages", `{"body": "hi"}`, 0)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/groups/1/messages", strings.NewReader(`{"body": "hi"}`))
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w = httptest.NewRecorder()
	f.router.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	other, err := GenerateJWT(7, "another-secret", time.Hour)
	require.NoError(t, err)
	_, err = ParseJWT(other, secret)
	assert.Error(t, err)

	expired, err := GenerateJWT(7, secret, -time.Minute)
	require.NoError(t, err)
	_, err = ParseJWT(expired, secret)
	assert.Error(t, err)
}

func TestPostMessage(t *testing.T) {
	f := newFixture()

	w := f.do(t, http.MethodPost, "/groups/3/messages", `{"body": "@AI what's 2+2?"}`, 7)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, chat.PostRequest{GroupID: 3, UserID: 7, Body: "@AI what's 2+2?"}, f.poster.got)
	assert.NotEmpty(t, w.Header().Get(trace.HeaderName))

	f.poster.err = fmt.Errorf("wrap: %w", model.ErrNotMember)
	w = f.do(t, http.MethodPost, "/groups/3/messages", `{"body": "hi"}`, 8)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPost, "/groups/3/messages", `{}`, 8)
	assert.Equal(t, http.StatusForbidden, w.Code, "non-member with empty body")

	w = f.do(t, http.MethodPost, "/groups/abc/messages", `{"body": "hi"}`, 7)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.poster.err = fmt.Errorf("%w: message body is empty", model.ErrInvalidInput)
	w = f.do(t, http.MethodPost, "/groups/3/messages", `{}`, 7)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/groups/3/messages", `not json`, 7)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConfirmProposal(t *testing.T) {
	path := "/groups/1/messages/50/confirm"

	t.Run("confirmed", func(t *testing.T) {
		f := newFixture()
		f.confirmer.res = proposal.ConfirmResult{Created: 2}
		w := f.do(t, http.MethodPost, path, `{"kind": "create_milestones"}`, 7)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, proposal.ConfirmRequest{GroupID: 1, MessageID: 50, UserID: 7, Kind: model.ActionCreateMilestones}, f.confirmer.got)
		body := decode(t, w)
		assert.Equal(t, false, body["already_confirmed"])
		assert.EqualValues(t, 2, body["created"])
	})

	t.Run("already confirmed is a 200", func(t *testing.T) {
		f := newFixture()
		f.confirmer.res = proposal.ConfirmResult{AlreadyConfirmed: true}
		w := f.do(t, http.MethodPost, path, `{"kind": "create_milestones"}`, 7)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, true, decode(t, w)["already_confirmed"])
	})

	t.Run("partial", func(t *testing.T) {
		f := newFixture()
		f.confirmer.err = &model.PartialMaterializationError{MessageID: 50, Created: 1, Total: 3, Err: errors.New("db")}
		w := f.do(t, http.MethodPost, path, `{"kind": "schedule_sessions"}`, 7)
		require.Equal(t, http.StatusInternalServerError, w.Code)
		body := decode(t, w)
		assert.EqualValues(t, 1, body["created"])
		assert.EqualValues(t, 3, body["total"])
	})

	statuses := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"unknown kind", `{"kind": "delete_everything"}`, nil, http.StatusBadRequest},
		{"missing kind", `{}`, nil, http.StatusBadRequest},
		{"kind mismatch", `{"kind": "schedule_sessions"}`, model.ErrKindMismatch, http.StatusBadRequest},
		{"not found", `{"kind": "create_milestones"}`, model.ErrNotFound, http.StatusNotFound},
		{"forbidden", `{"kind": "create_milestones"}`, model.ErrForbidden, http.StatusForbidden},
		{"store down", `{"kind": "create_milestones"}`, errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range statuses {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			f.confirmer.err = tc.err
			w := f.do(t, http.MethodPost, path, tc.body, 7)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestSubmit(t *testing.T) {
	f := newFixture()

	w := f.do(t, http.MethodPost, "/groups/1/milestones/4/submissions", `{"content": "5.4 = 42", "files": ["a.pdf"]}`, 7)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, grading.SubmitRequest{GroupID: 1, MilestoneID: 4, UserID: 7, Content: "5.4 = 42", Files: []string{"a.pdf"}}, f.submitter.got)
	assert.Equal(t, "pending_review", decode(t, w)["status"])

	f.submitter.err = model.ErrInvalidInput
	w = f.do(t, http.MethodPost, "/groups/1/milestones/4/submissions", `{}`, 7)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEventStream(t *testing.T) {
	f := newFixture()
	f.events.events = []string{`{"type":"new-message","group_id":1,"data":{"id":3}}`}

	w := f.do(t, http.MethodGet, "/groups/1/events", "", 7)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "event:new-message")
	assert.Contains(t, w.Body.String(), `"group_id":1`)
}

func TestHealth(t *testing.T) {
	f := newFixture()

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", "", 0).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/readyz", "", 0).Code)

	f.ready["db"] = func(context.Context) error { return errors.New("down") }
	w := f.do(t, http.MethodGet, "/readyz", "", 0)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "db_not_ready", decode(t, w)["status"])

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/metrics", "", 0).Code)
}
