package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBase(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.yaml"), []byte(content), 0o600))
	return dir
}

func TestLoadFromDefaults(t *testing.T) {
	dir := writeBase(t, `
jwt:
  secret: s3cret
llm:
  provider: agent
  agent_url: http://agent:8000
  timeout: 5s
pipeline:
  transcript_limit: 10
`)

	cfg, err := LoadFrom("local", dir)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 10, cfg.Pipeline.TranscriptLimit)
	assert.Equal(t, 7*24*time.Hour, cfg.Pipeline.TranscriptWindow)
	assert.Equal(t, time.Hour, cfg.Pipeline.DedupTTL)
	assert.Equal(t, DispatchMQ, cfg.Dispatch.Mode)
	assert.Equal(t, "studyhub", cfg.OTel.ServiceName)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	dir := writeBase(t, "jwt:\n  secret: s3cret\nllm:\n  provider: genai\n")
	t.Setenv("GEMINI_API_KEY", "key-from-env")
	t.Setenv("DISPATCH_MODE", "local")
	t.Setenv("LLM_TIMEOUT", "2s")

	cfg, err := LoadFrom("local", dir)
	require.NoError(t, err)
	assert.Equal(t, "key-from-env", cfg.LLM.APIKey)
	assert.Equal(t, DispatchLocal, cfg.Dispatch.Mode)
	assert.Equal(t, 2*time.Second, cfg.LLM.Timeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"genai without key", "jwt:\n  secret: x\nllm:\n  provider: genai\n", "api_key"},
		{"agent without url", "jwt:\n  secret: x\nllm:\n  provider: agent\n", "agent_url"},
		{"unknown provider", "jwt:\n  secret: x\nllm:\n  provider: openai\n", "provider"},
		{"unknown dispatch", "jwt:\n  secret: x\nllm:\n  provider: agent\n  agent_url: http://a\ndispatch:\n  mode: kafka\n", "dispatch.mode"},
		{"missing secret", "llm:\n  provider: agent\n  agent_url: http://a\n", "jwt.secret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GEMINI_API_KEY", "")
			t.Setenv("JWT_SECRET", "")
			_, err := LoadFrom("local", writeBase(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
