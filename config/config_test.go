package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkellgren/motionctl"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "machine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const wellFormed = `
port: /dev/ttyACM0
baud: 250000
read_timeout_ms: 50
handshake_timeout_ms: 1000
cpu_affinity: 2
microsteps: [80, 80, 400]
limits:
  v_max: [50, 50, 10]
  a_max: [200, 200, 50]
  junction_speed: 1.0
  junction_deviation: 0.05
`

func TestLoadDecodesAWellFormedDocument(t *testing.T) {
	path := writeFile(t, wellFormed)

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM0", f.Port)
	assert.Equal(t, 250000, f.Baud)
	assert.Equal(t, 2, f.CPUAffinity)
}

func TestLimitsAxisArrayLengthsMatchMicrosteps(t *testing.T) {
	path := writeFile(t, wellFormed)
	f, err := Load(path)
	require.NoError(t, err)

	limits := f.Limits()
	assert.Len(t, limits.VMax, len(f.Microsteps))
	assert.Len(t, limits.AMax, len(f.Microsteps))
	assert.Equal(t, 1.0, limits.JunctionSpeed)
	assert.Equal(t, 0.05, limits.JunctionDeviation)
}

func TestLoadRejectsMismatchedAxisArrayLengths(t *testing.T) {
	path := writeFile(t, `
port: /dev/ttyACM0
baud: 115200
microsteps: [80, 80, 400]
limits:
  v_max: [50, 50]
  a_max: [200, 200, 50]
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, motionctl.IsCode(err, motionctl.CodeConfigInvalid))
}

func TestLoadRejectsANegativeRate(t *testing.T) {
	path := writeFile(t, `
port: /dev/ttyACM0
baud: 115200
microsteps: [80]
limits:
  v_max: [-1]
  a_max: [200]
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, motionctl.IsCode(err, motionctl.CodeConfigInvalid))
}

func TestLoadRejectsAMissingPort(t *testing.T) {
	path := writeFile(t, `
baud: 115200
microsteps: []
limits:
  v_max: []
  a_max: []
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, motionctl.IsCode(err, motionctl.CodeConfigInvalid))
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeFile(t, "port: [unterminated")

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, motionctl.IsCode(err, motionctl.CodeConfigInvalid))
}
