package ftp

import (
	"testing"
	"time"

	"github.com/gonzalop/xfer/config"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettings(t *testing.T) {
	s := defaultSettings()
	require.Equal(t, 30*time.Second, s.timeout)
	require.True(t, s.verifyDataPeer)
	require.True(t, s.useFeat)
	require.False(t, s.activeMode)
}

func TestOptionsApplyInOrder(t *testing.T) {
	s := defaultSettings()
	for _, opt := range []Option{
		WithTimeout(5 * time.Second),
		WithActiveMode(),
		WithDisableEPSV(),
		WithIgnorePasvAddress(),
		WithoutDataPeerVerification(),
		WithSyncMode(),
		WithoutFeat(),
	} {
		opt(&s)
	}
	require.Equal(t, 5*time.Second, s.timeout)
	require.True(t, s.activeMode)
	require.True(t, s.disableEPSV)
	require.True(t, s.ignorePasvAddr)
	require.False(t, s.verifyDataPeer)
	require.True(t, s.syncMode)
	require.False(t, s.useFeat)
}

func TestWithConfigSeedsFromStore(t *testing.T) {
	store := config.New()
	store.SetForClosure("net:timeout", "example.com", 7)
	store.SetForClosure("ftp:active-mode", "example.com", true)
	store.SetForClosure("ftp:sync-mode", "example.com", true)

	s := defaultSettings()
	WithConfig(store, "example.com")(&s)
	require.Equal(t, 7*time.Second, s.timeout)
	require.True(t, s.activeMode)
	require.True(t, s.syncMode)
}

func TestWithConfigThenExplicitOptionWins(t *testing.T) {
	store := config.New()
	store.SetForClosure("ftp:active-mode", "example.com", true)

	s := defaultSettings()
	WithConfig(store, "example.com")(&s)
	WithActiveMode()(&s) // explicit Option after WithConfig still applies
	require.True(t, s.activeMode)
}

func TestWithExplicitTLSDefaultsConfig(t *testing.T) {
	s := defaultSettings()
	WithExplicitTLS(nil)(&s)
	require.True(t, s.explicitTLS)
	require.NotNil(t, s.tlsConfig)
}
