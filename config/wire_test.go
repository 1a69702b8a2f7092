package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultsSeedRetryPolicyFromRetryPackage(t *testing.T) {
	s := New()
	s.Defaults()

	p := s.RetryPolicy("")
	require.Equal(t, 30*time.Second, p.Base)
	require.Equal(t, 1.5, p.Multiplier)
	require.Equal(t, 10*time.Minute, p.Max)
	require.Equal(t, 0, p.MaxRetries)
}

func TestRetryPolicyHonorsClosureOverride(t *testing.T) {
	s := New()
	s.Defaults()
	s.SetForClosure(keyReconnectBase, "flaky.example.com", "5s")
	s.SetForClosure(keyMaxRetries, "flaky.example.com", 3)

	p := s.RetryPolicy("flaky.example.com")
	require.Equal(t, 5*time.Second, p.Base)
	require.Equal(t, 3, p.MaxRetries)

	// an unrelated closure still sees the global defaults
	other := s.RetryPolicy("other.example.com")
	require.Equal(t, 30*time.Second, other.Base)
}

func TestRatePeriodsDefaultMatchesCopyPackageConstruction(t *testing.T) {
	s := New()
	s.Defaults()
	rate, eta := s.RatePeriods("")
	require.Equal(t, time.Second, rate)
	require.Equal(t, 30*time.Second, eta)
}

func TestCacheDisabledReturnsNoCache(t *testing.T) {
	s := New()
	s.Defaults()
	s.Set("cache:enable", false)

	c, ok := s.Cache("")
	require.False(t, ok)
	require.Nil(t, c)
}

func TestCacheEnabledBuildsCache(t *testing.T) {
	s := New()
	s.Defaults()

	c, ok := s.Cache("")
	require.True(t, ok)
	require.NotNil(t, c)
}

func TestMaxRedirectionsAndUsePropfindDefaults(t *testing.T) {
	s := New()
	s.Defaults()
	require.Equal(t, 5, s.MaxRedirections(""))
	require.True(t, s.UsePropfind(""))
}
