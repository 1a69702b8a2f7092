package ftp

import (
	"errors"
	"testing"

	"github.com/gonzalop/xfer"
	"github.com/stretchr/testify/require"
)

func TestClassifyReplySuccessIsNil(t *testing.T) {
	require.Nil(t, classifyReply("NOOP", &reply{Code: 200, Message: "ok"}))
	require.Nil(t, classifyReply("RETR f", &reply{Code: 350, Message: "ok"}))
}

func TestClassifyReply530LoginFailed(t *testing.T) {
	xe := classifyReply("PASS x", &reply{Code: 530, Message: "Login incorrect."})
	require.NotNil(t, xe)
	require.Equal(t, xfer.LoginFailed, xe.Kind)
	require.False(t, xe.Retryable)
}

func TestClassifyReply530RetryPattern(t *testing.T) {
	xe := classifyReply("PASS x", &reply{Code: 530, Message: "Sorry, too many connections, please try again later."})
	require.NotNil(t, xe)
	require.Equal(t, xfer.LoginFailed, xe.Kind)
	require.True(t, xe.Retryable)
	require.True(t, xe.IsRetryable())
}

func TestClassifyReplyNoFile(t *testing.T) {
	for _, code := range []int{550, 551, 553, 450} {
		xe := classifyReply("RETR f", &reply{Code: code, Message: "no such file"})
		require.NotNil(t, xe)
		require.Equal(t, xfer.NoFile, xe.Kind)
	}
}

func TestClassifyReplyNotSupported(t *testing.T) {
	for _, code := range []int{500, 501, 502} {
		xe := classifyReply("MLSD d", &reply{Code: code, Message: "unknown command"})
		require.NotNil(t, xe)
		require.Equal(t, xfer.NotSupported, xe.Kind)
	}
}

func TestClassifyReplyGeneric4xxRetryable(t *testing.T) {
	xe := classifyReply("RETR f", &reply{Code: 425, Message: "cannot open data connection"})
	require.NotNil(t, xe)
	require.Equal(t, xfer.SeeErrno, xe.Kind)
	require.True(t, xe.Retryable)
}

func TestClassifyReply5xxNetworkDrop(t *testing.T) {
	xe := classifyReply("RETR f", &reply{Code: 554, Message: "Connection reset by peer, service not available"})
	require.NotNil(t, xe)
	require.Equal(t, xfer.Fatal, xe.Kind)
	require.True(t, xe.Retryable)
}

func TestClassifyReply5xxNotANetworkDrop(t *testing.T) {
	xe := classifyReply("SYST", &reply{Code: 521, Message: "you are already logged in"})
	require.NotNil(t, xe)
	require.Equal(t, xfer.Fatal, xe.Kind)
	require.False(t, xe.Retryable)
}

func TestClassifyConnErr(t *testing.T) {
	xe := classifyConnErr("(connect)", errors.New("boom"))
	require.NotNil(t, xe)
	require.Equal(t, xfer.SeeErrno, xe.Kind)
}

func TestEmptyListingIsOK(t *testing.T) {
	require.True(t, emptyListingIsOK(&reply{Code: 550, Message: "no files found"}))
	require.True(t, emptyListingIsOK(&reply{Code: 450, Message: "no files found"}))
	require.False(t, emptyListingIsOK(&reply{Code: 226, Message: "ok"}))
}
