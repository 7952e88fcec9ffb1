package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyhub/pkg/trace"
)

func TestAgentClientComplete(t *testing.T) {
	t.Run("posts system and prompt and returns text", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/generate", r.URL.Path)
			assert.Equal(t, "trace-1", r.Header.Get(trace.HeaderName))

			var req generateRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "sys", req.System)
			assert.Equal(t, "hello", req.Prompt)

			_ = json.NewEncoder(w).Encode(generateResponse{Text: `{"shouldRespond":false}`})
		}))
		defer srv.Close()

		c := NewAgentClient(srv.URL+"/", time.Second)
		ctx := trace.WithContext(context.Background(), "trace-1")

		text, err := c.Complete(ctx, "sys", "hello")
		require.NoError(t, err)
		assert.Equal(t, `{"shouldRespond":false}`, text)
		assert.Equal(t, "agent:"+srv.URL, c.Name())
	})

	t.Run("non-200 is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := NewAgentClient(srv.URL, time.Second).Complete(context.Background(), "s", "p")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "503")
	})

	t.Run("empty text is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"text": "  "}`))
		}))
		defer srv.Close()

		_, err := NewAgentClient(srv.URL, time.Second).Complete(context.Background(), "s", "p")
		assert.Error(t, err)
	})
}
