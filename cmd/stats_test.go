package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const statsBody = `{"totalRequests":3,"totalCost":1.5,"perProvider":{
	"openai":{"successRate":1,"avgLatencyMs":120,"totalRequests":1,"tokens":1500},
	"groq":{"successRate":0,"avgLatencyMs":40,"totalRequests":2,"tokens":0}}}`

func TestPrintStats(t *testing.T) {
	var buf bytes.Buffer
	printStats(&buf, []byte(statsBody))

	out := buf.String()
	assert.Contains(t, out, "requests: 3  cost: 1.5000")
	assert.Regexp(t, `groq\s+2\s+0\.0%\s+40ms\s+0`, out)
	assert.Regexp(t, `openai\s+1\s+100\.0%\s+120ms\s+1500`, out)
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("groq")), bytes.Index(buf.Bytes(), []byte("openai")))
}

func TestRunStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/stats" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(statsBody))
	}))
	defer srv.Close()

	require.Equal(t, 0, runStats([]string{"--addr", srv.URL, "--json"}))
	assert.Equal(t, 1, runStats([]string{"--addr", srv.URL + "/missing"}))
}

func TestResolveConfigPath(t *testing.T) {
	_, err := resolveConfigPath("does/not/exist.yaml")
	assert.Error(t, err)

	path, err := resolveConfigPath("../configs/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "../configs/config.yaml", path)
}
