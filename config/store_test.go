package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetFallsBackThroughChain(t *testing.T) {
	s := New()
	s.SetDefault("ftp:passive-mode", true)

	require.True(t, s.GetBool("ftp:passive-mode", ""))
	require.True(t, s.GetBool("ftp:passive-mode", "ftp.example.com"))

	s.SetForClosure("ftp:passive-mode", "ftp.example.com", false)
	require.False(t, s.GetBool("ftp:passive-mode", "ftp.example.com"))
	require.True(t, s.GetBool("ftp:passive-mode", ""), "global default must be unaffected by a closure override")
	require.True(t, s.GetBool("ftp:passive-mode", "other.example.com"), "a different closure must not see another closure's override")
}

func TestSetOverridesGlobalAboveDefault(t *testing.T) {
	s := New()
	s.SetDefault("net:timeout", "30s")
	require.Equal(t, 30*time.Second, s.GetDuration("net:timeout", ""))

	s.Set("net:timeout", "10s")
	require.Equal(t, 10*time.Second, s.GetDuration("net:timeout", ""))
}

func TestGetDurationAcceptsBareNumberAsSeconds(t *testing.T) {
	s := New()
	s.SetDefault("net:idle", 45)
	require.Equal(t, 45*time.Second, s.GetDuration("net:idle", ""))
}

func TestGetIntParsesStringValue(t *testing.T) {
	s := New()
	s.SetForClosure("net:connection-limit", "host", "7")
	require.Equal(t, 7, s.GetInt("net:connection-limit", "host"))
}

func TestUnsetKeyReturnsZeroValue(t *testing.T) {
	s := New()
	require.Equal(t, "", s.GetString("ftp:home", ""))
	require.False(t, s.GetBool("ftp:use-feat", ""))
	require.Equal(t, 0, s.GetInt("ftp:port-range", ""))
	require.Equal(t, time.Duration(0), s.GetDuration("net:timeout", ""))
}

func TestLoadFileAppliesClosureOverrides(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/xfer.yaml"
	const content = `
defaults:
  unused: true
closures:
  ftp.example.com:
    "ftp:passive-mode": false
    "net:timeout": "5s"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s := New()
	s.SetDefault("ftp:passive-mode", true)
	require.NoError(t, s.LoadFile(path))

	require.False(t, s.GetBool("ftp:passive-mode", "ftp.example.com"))
	require.Equal(t, 5*time.Second, s.GetDuration("net:timeout", "ftp.example.com"))
	require.True(t, s.GetBool("ftp:passive-mode", ""), "the global default survives for hosts with no override")
}
