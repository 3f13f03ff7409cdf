package logger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_WritesDailyFile(t *testing.T) {
	prev := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(prev) })

	dir := filepath.Join(t.TempDir(), "logs")
	log, err := New(Options{Dir: dir, Level: "debug"})
	require.NoError(t, err)

	log.Debugw("probe", "k", "v")
	_ = log.Sync()

	b, err := os.ReadFile(filepath.Join(dir, time.Now().Format("2006-01-02")+".log"))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"msg":"logger online"`)
	assert.Contains(t, string(b), `"msg":"probe"`)
	assert.Same(t, log.Desugar(), zap.L())
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	_, err := New(Options{Dir: t.TempDir(), Level: "loud"})
	assert.Error(t, err)
}
