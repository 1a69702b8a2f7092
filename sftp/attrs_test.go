package sftp

import (
	"testing"
	"time"

	"github.com/gonzalop/xfer"
	"github.com/stretchr/testify/require"
)

func TestAttrsRoundTripV3(t *testing.T) {
	a := &attrs{
		haveSize:   true,
		size:       12345,
		haveUIDGID: true,
		uid:        1000,
		gid:        1000,
		havePerms:  true,
		perms:      0100644,
		haveACmodTime: true,
		atime:      time.Unix(1700000000, 0).UTC(),
		mtime:      time.Unix(1700000001, 0).UTC(),
	}
	w := &wireWriter{}
	a.pack(w, 3)
	got := unpackAttrs(newWireReader(w.Bytes()), 3)

	require.True(t, got.haveSize)
	require.Equal(t, uint64(12345), got.size)
	require.True(t, got.haveUIDGID)
	require.Equal(t, uint32(1000), got.uid)
	require.True(t, got.havePerms)
	require.Equal(t, uint32(0100644), got.perms)
	require.True(t, got.haveACmodTime)
	require.Equal(t, a.mtime.Unix(), got.mtime.Unix())
}

func TestAttrsRoundTripV4SplitOwnerAndTimes(t *testing.T) {
	a := &attrs{
		haveSize:       true,
		size:           99,
		haveOwnerGroup: true,
		owner:          "bob",
		group:          "staff",
		haveModifyTime: true,
		mtime:          time.Unix(1700000002, 500000000).UTC(),
	}
	w := &wireWriter{}
	a.pack(w, 4)
	got := unpackAttrs(newWireReader(w.Bytes()), 4)

	require.True(t, got.haveOwnerGroup)
	require.Equal(t, "bob", got.owner)
	require.Equal(t, "staff", got.group)
	require.True(t, got.haveModifyTime)
	require.Equal(t, a.mtime.Unix(), got.mtime.Unix())
}

func TestAttrsRoundTripPreservesUnknownExtension(t *testing.T) {
	a := &attrs{
		haveSize: true,
		size:     1,
		extended: [][2][]byte{{[]byte("vendor-id@example.com"), []byte("opaque-data")}},
	}
	w := &wireWriter{}
	a.pack(w, 3)
	got := unpackAttrs(newWireReader(w.Bytes()), 3)

	require.Len(t, got.extended, 1)
	require.Equal(t, "vendor-id@example.com", string(got.extended[0][0]))
	require.Equal(t, "opaque-data", string(got.extended[0][1]))
}

func TestToFileInfoInfersTypeFromModeBelowV4(t *testing.T) {
	a := &attrs{havePerms: true, perms: 0040755}
	fi := a.toFileInfo("dir")
	require.Equal(t, xfer.TypeDir, fi.Type)
}

func TestToFileInfoUsesExplicitTypeAtV4(t *testing.T) {
	a := &attrs{fileType: fileTypeSymlink}
	fi := a.toFileInfo("link")
	require.Equal(t, xfer.TypeSymlink, fi.Type)
}
