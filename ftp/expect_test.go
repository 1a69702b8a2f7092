package ftp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExpectQueueFIFO(t *testing.T) {
	var q expectQueue
	q.push(expectation{kind: expectUser, cmd: "USER a"})
	q.push(expectation{kind: expectPass, cmd: "PASS b"})
	require.Equal(t, 2, q.len())

	head, ok := q.peek()
	require.True(t, ok)
	require.Equal(t, expectUser, head.kind)

	e, ok := q.pop()
	require.True(t, ok)
	require.Equal(t, "USER a", e.cmd)
	require.Equal(t, 1, q.len())

	e, ok = q.pop()
	require.True(t, ok)
	require.Equal(t, "PASS b", e.cmd)

	_, ok = q.pop()
	require.False(t, ok)
}

func TestExpectKindString(t *testing.T) {
	require.Equal(t, "TRANSFER", expectTRANSFER.String())
	require.Equal(t, "IGNORE", expectIgnore.String())
}
