package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		m := map[string]interface{}{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestVerbosity(t *testing.T) {
	defer SetGlobalOptions(GlobalConfig{V: 0})

	var buf bytes.Buffer
	l := NewWithOptions(Options{Output: &buf})

	SetGlobalOptions(GlobalConfig{V: 0})
	l.Info("info")
	l.V(1).Info("debug")
	l.V(2).Info("trace")
	l.V(1).Error(errors.New("boom"), "error")
	got := lines(t, &buf)
	require.Len(t, got, 2)
	assert.Equal(t, "info", got[0]["level"])
	assert.Equal(t, "error", got[1]["level"])
	assert.Equal(t, "boom", got[1]["error"])

	buf.Reset()
	SetGlobalOptions(GlobalConfig{V: 2})
	l.V(1).Info("debug")
	l.V(2).Info("trace")
	got = lines(t, &buf)
	require.Len(t, got, 2)
	assert.Equal(t, "debug", got[0]["level"])
	assert.Equal(t, "trace", got[1]["level"])
}

func TestNameAndValues(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithOptions(Options{Output: &buf, Name: "sfu"}).
		WithName("session").
		WithValues("session_id", "abc")

	l.Info("hello", "transport_id", "t1")
	l.Info("odd", "dangling")

	got := lines(t, &buf)
	require.Len(t, got, 2)
	assert.Equal(t, "sfu/session", got[0]["name"])
	assert.Equal(t, "abc", got[0]["session_id"])
	assert.Equal(t, "t1", got[0]["transport_id"])
	assert.Contains(t, got[1], "zerologr-err")
}

func TestPionLoggerFactory(t *testing.T) {
	defer SetGlobalOptions(GlobalConfig{V: 0})
	SetGlobalOptions(GlobalConfig{V: 0})

	var buf bytes.Buffer
	f := LoggerFactory{Logger: NewWithOptions(Options{Output: &buf})}
	pl := f.NewLogger("ice")
	pl.Debugf("gathering %d", 1)
	pl.Warnf("candidate %s dropped", "host")
	pl.Error("failed")

	got := lines(t, &buf)
	require.Len(t, got, 2)
	assert.Equal(t, "ice", got[0]["name"])
	assert.Equal(t, "candidate host dropped", got[0]["message"])
	assert.Equal(t, "error", got[1]["level"])
}
