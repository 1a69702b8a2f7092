package ratelimit_test

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/gonzalop/xfer/ratelimit"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name           string
		bytesPerSecond int64
		expectNil      bool
	}{
		{"Valid rate", 1024, false},
		{"Zero rate (unlimited)", 0, true},
		{"Negative rate (unlimited)", -1, true},
		{"Very low rate", 1, false},
		{"High rate", 10 * 1024 * 1024, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := ratelimit.New(tt.bytesPerSecond)
			if tt.expectNil {
				require.Nil(t, limiter)
			} else {
				require.NotNil(t, limiter)
			}
		})
	}
}

func TestNewReaderNilPassthrough(t *testing.T) {
	t.Parallel()
	data := []byte("test data")
	reader := bytes.NewReader(data)

	limited := ratelimit.NewReader(context.Background(), reader, nil)
	require.Same(t, io.Reader(reader), limited)
}

func TestNewWriterNilPassthrough(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer

	limited := ratelimit.NewWriter(context.Background(), &buf, nil)
	require.Same(t, io.Writer(&buf), limited)
}

func TestReaderRoundTrip(t *testing.T) {
	t.Parallel()
	data := make([]byte, 1024)
	for i := range data {
		data[i] = byte(i % 256)
	}

	limiter := ratelimit.New(10 * 1024)
	reader := ratelimit.NewReader(context.Background(), bytes.NewReader(data), limiter)

	result, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.Equal(t, data, result)
}

func TestWriterRoundTrip(t *testing.T) {
	t.Parallel()
	data := make([]byte, 1024)
	for i := range data {
		data[i] = byte(i % 256)
	}

	limiter := ratelimit.New(10 * 1024)
	var buf bytes.Buffer
	writer := ratelimit.NewWriter(context.Background(), &buf, limiter)

	n, err := writer.Write(data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.Equal(t, data, buf.Bytes())
}

func TestReaderLargeTransferThrottles(t *testing.T) {
	data := make([]byte, 10*1024)
	limiter := ratelimit.New(5 * 1024)
	reader := ratelimit.NewReader(context.Background(), bytes.NewReader(data), limiter)

	start := time.Now()
	result, err := io.ReadAll(reader)
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Len(t, result, len(data))
	// First 5KB burst is instant; the remaining 5KB takes ~1s at 5KB/s.
	require.Greater(t, elapsed, 500*time.Millisecond)
}

func TestUnlimitedReaderIsFast(t *testing.T) {
	t.Parallel()
	data := make([]byte, 10*1024)
	reader := ratelimit.NewReader(context.Background(), bytes.NewReader(data), nil)

	start := time.Now()
	result, err := io.ReadAll(reader)
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Len(t, result, len(data))
	require.Less(t, elapsed, 100*time.Millisecond)
}

func TestReaderRespectsContextCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	data := make([]byte, 10*1024)
	limiter := ratelimit.New(1024)
	reader := ratelimit.NewReader(ctx, bytes.NewReader(data), limiter)

	buf := make([]byte, len(data))
	_, err := reader.Read(buf)
	require.Error(t, err)
}

func TestGroupHostOverridesGlobal(t *testing.T) {
	t.Parallel()
	g := ratelimit.NewGroup(0, 0)
	g.SetHostLimit("example.com", 2048, 4096)

	global, host := g.Host("example.com")
	require.Nil(t, global.Send)
	require.NotNil(t, host.Send)
	require.NotNil(t, host.Receive)

	_, unconfigured := g.Host("other.example.com")
	require.Nil(t, unconfigured.Send)
	require.Nil(t, unconfigured.Receive)
}

func BenchmarkReader(b *testing.B) {
	data := make([]byte, 1024)
	limiter := ratelimit.New(1024 * 1024)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reader := ratelimit.NewReader(context.Background(), bytes.NewReader(data), limiter)
		if _, err := io.ReadAll(reader); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkWriter(b *testing.B) {
	data := make([]byte, 1024)
	limiter := ratelimit.New(1024 * 1024)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var buf bytes.Buffer
		writer := ratelimit.NewWriter(context.Background(), &buf, limiter)
		if _, err := writer.Write(data); err != nil {
			b.Fatal(err)
		}
	}
}
