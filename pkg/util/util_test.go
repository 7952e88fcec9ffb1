package util

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestIsRetryableError(t *testing.T) {
	var syntaxErr error
	{
		var v map[string]any
		syntaxErr = json.Unmarshal([]byte("{"), &v)
	}

	tests := []struct {
		name      string
		err       error
		retryable bool
		errType   string
	}{
		{"nil", nil, false, ""},
		{"permanent wrapper", Permanent(errors.New("milestone 3 not found")), false, "permanent"},
		{"wrapped json", fmt.Errorf("decode: %w", syntaxErr), false, "json_decode_error"},
		{"no rows", fmt.Errorf("load: %w", pgx.ErrNoRows), false, "not_found"},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false, "duplicate_key"},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true, "db_transient"},
		{"deadline", fmt.Errorf("grade: %w", context.DeadlineExceeded), true, "timeout"},
		{"canceled", context.Canceled, false, "context_canceled"},
		{"connection refused", errors.New("dial tcp: connection refused"), true, "connection_error"},
		{"unknown", errors.New("something odd"), false, "unknown_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retryable, errType := IsRetryableError(tt.err)
			assert.Equal(t, tt.retryable, retryable)
			assert.Equal(t, tt.errType, errType)
		})
	}
}

func TestPermanentKeepsCause(t *testing.T) {
	cause := errors.New("bad payload")
	err := Permanent(cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrPermanent)
	assert.Equal(t, "bad payload", err.Error())
	assert.NoError(t, Permanent(nil))
}

func TestDeduperFailsOpen(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	d := NewDeduper(rdb, time.Minute, zap.NewNop())
	assert.True(t, d.AcquireOnce(context.Background(), "intent", 42))
	d.Release(context.Background(), "intent", 42)
}
