package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_JSONAndText(t *testing.T) {
	var buf bytes.Buffer
	Init(false, &buf)
	WithFields(map[string]interface{}{"jail": "sshd"}).Info("hello")
	assert.Contains(t, buf.String(), `"jail":"sshd"`)

	buf.Reset()
	Init(true, &buf)
	Log().Debug("visible in debug")
	assert.Contains(t, buf.String(), "visible in debug")
}

func TestSetup_WritesRotatedFile(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "logs", "jailkeeper.log")
	var console bytes.Buffer

	closer := Setup(false, &console, logFile)
	Log().Info("to both")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to both")
	assert.Contains(t, console.String(), "to both")
}

func TestSetup_ConsoleOnly(t *testing.T) {
	var console bytes.Buffer
	closer := Setup(false, &console, "")
	Log().Info("console only")
	assert.NoError(t, closer.Close())
	assert.Contains(t, console.String(), "console only")
}
