package ftp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReplyAssemblerSingleLine(t *testing.T) {
	var a replyAssembler
	r, err := a.feed("230 logged in")
	require.NoError(t, err)
	require.NotNil(t, r)
	require.Equal(t, 230, r.Code)
	require.Equal(t, "logged in", r.Message)
	require.True(t, r.Is2xx())
}

func TestReplyAssemblerMultiLine(t *testing.T) {
	var a replyAssembler
	r, err := a.feed("211-Features:")
	require.NoError(t, err)
	require.Nil(t, r)

	r, err = a.feed(" REST STREAM")
	require.NoError(t, err)
	require.Nil(t, r)

	r, err = a.feed("211 End")
	require.NoError(t, err)
	require.NotNil(t, r)
	require.Equal(t, 211, r.Code)
	require.Len(t, r.Lines, 3)
}

func TestReplyAssemblerMalformed(t *testing.T) {
	var a replyAssembler
	_, err := a.feed("xy")
	require.Error(t, err)
}

func TestReplyAssemblerResetsAfterComplete(t *testing.T) {
	var a replyAssembler
	r, err := a.feed("220 ready")
	require.NoError(t, err)
	require.NotNil(t, r)

	r, err = a.feed("230 ok")
	require.NoError(t, err)
	require.NotNil(t, r)
	require.Equal(t, 230, r.Code)
}

func TestEncodeCommandFraming(t *testing.T) {
	require.Equal(t, "USER bob\r\n", string(encodeCommand("USER bob")))
}

func TestEncodeCommandEscapesCR(t *testing.T) {
	got := encodeCommand("RETR a\rb")
	require.Equal(t, "RETR a\r\x00b\r\n", string(got))
}

func TestEncodeCommandDoublesIAC(t *testing.T) {
	got := encodeCommand("RETR a\xffb")
	require.Equal(t, "RETR a\xff\xffb\r\n", string(got))
}
