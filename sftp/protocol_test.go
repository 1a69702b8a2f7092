package sftp

import (
	"testing"

	"github.com/gonzalop/xfer"
	"github.com/stretchr/testify/require"
)

func TestStatusToKind(t *testing.T) {
	require.Equal(t, xfer.NoFile, statusToKind(statusNoSuchFile))
	require.Equal(t, xfer.NoFile, statusToKind(statusPermissionDenied))
	require.Equal(t, xfer.NotSupported, statusToKind(statusOpUnsupported))
	require.Equal(t, xfer.SeeErrno, statusToKind(statusConnectionLost))
	require.Equal(t, xfer.Fatal, statusToKind(statusFailure))
}

func TestPacketTypeConstantsMatchProtocolNumbers(t *testing.T) {
	require.EqualValues(t, 1, packetInit)
	require.EqualValues(t, 2, packetVersion)
	require.EqualValues(t, 5, packetRead)
	require.EqualValues(t, 6, packetWrite)
	require.EqualValues(t, 101, packetStatus)
	require.EqualValues(t, 102, packetHandle)
	require.EqualValues(t, 103, packetData)
	require.EqualValues(t, 104, packetName)
	require.EqualValues(t, 105, packetAttrs)
}
