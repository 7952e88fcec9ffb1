package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"studyhub/internal/model"
	"studyhub/pkg/util"
)

type recorder struct {
	ids []int64
	err error
}

func (r *recorder) Handle(_ context.Context, id int64) error {
	r.ids = append(r.ids, id)
	return r.err
}

func (r *recorder) Grade(_ context.Context, id int64) error {
	r.ids = append(r.ids, id)
	return r.err
}

func TestChatMessagePostedHandler(t *testing.T) {
	rec := &recorder{}
	h := NewChatMessagePostedHandler(rec, zap.NewNop())

	require.NoError(t, h.Handle(context.Background(), json.RawMessage(`{"message_id": 42, "group_id": 1}`)))
	assert.Equal(t, []int64{42}, rec.ids)

	err := h.Handle(context.Background(), json.RawMessage(`{not json`))
	assert.ErrorIs(t, err, util.ErrPermanent)
	retry, _ := util.IsRetryableError(err)
	assert.False(t, retry)

	assert.ErrorIs(t, h.Handle(context.Background(), json.RawMessage(`{}`)), util.ErrPermanent)
}

func TestHandlersClassifyDownstreamErrors(t *testing.T) {
	missing := &recorder{err: fmt.Errorf("load submission: %w", model.ErrNotFound)}
	err := NewSubmissionCreatedHandler(missing, zap.NewNop()).Handle(context.Background(), json.RawMessage(`{"submission_id": 3}`))
	assert.ErrorIs(t, err, util.ErrPermanent)
	assert.ErrorIs(t, err, model.ErrNotFound)

	transient := &recorder{err: errors.New("connection refused")}
	err = NewChatMessagePostedHandler(transient, zap.NewNop()).Handle(context.Background(), json.RawMessage(`{"message_id": 3}`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, util.ErrPermanent)
	retry, _ := util.IsRetryableError(err)
	assert.True(t, retry)
}
