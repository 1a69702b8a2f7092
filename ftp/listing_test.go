package ftp

import (
	"testing"

	"github.com/gonzalop/xfer"
	"github.com/stretchr/testify/require"
)

func TestParseUnixListingWithGroup(t *testing.T) {
	fs := parseUnixListing([]byte("-rw-r--r-- 1 bob staff 1234 Jan 15 10:20 report.txt\r\n"))
	require.Equal(t, 1, fs.Len())
	fi := fs.Get("report.txt")
	require.NotNil(t, fi)
	require.Equal(t, xfer.TypeFile, fi.Type)
	require.True(t, fi.HasSize())
	require.Equal(t, int64(1234), fi.Size())
	require.Equal(t, xfer.PrecisionMinute, fi.ModTimePrecision())
}

func TestParseUnixListingWithoutGroup(t *testing.T) {
	fs := parseUnixListing([]byte("drwxr-xr-x 2 bob 4096 Jan 15 2021 pub\n"))
	fi := fs.Get("pub")
	require.NotNil(t, fi)
	require.Equal(t, xfer.TypeDir, fi.Type)
	require.Equal(t, xfer.PrecisionDay, fi.ModTimePrecision())
}

func TestParseUnixListingSymlink(t *testing.T) {
	fs := parseUnixListing([]byte("lrwxrwxrwx 1 bob staff 4 Jan 15 10:20 cur -> current\n"))
	fi := fs.Get("cur")
	require.NotNil(t, fi)
	require.Equal(t, xfer.TypeSymlink, fi.Type)
	require.True(t, fi.HasSymlinkTarget())
	require.Equal(t, "current", fi.SymlinkTarget())
}

func TestParseUnixListingUnparseableLineKept(t *testing.T) {
	fs := parseUnixListing([]byte("total 8\n-rw-r--r-- 1 bob staff 5 Jan 15 10:20 a\n"))
	require.Equal(t, 2, fs.Len())
	fi := fs.Get("total 8")
	require.NotNil(t, fi)
	require.Equal(t, xfer.TypeUnknown, fi.Type)
}

func TestParseMLSDListingSkipsDirEntries(t *testing.T) {
	raw := "type=cdir;modify=20210115102000; .\r\n" +
		"type=pdir;modify=20210115102000; ..\r\n" +
		"type=file;size=42;modify=20210115102000; report.txt\r\n"
	fs := parseMLSDListing([]byte(raw))
	require.Equal(t, 1, fs.Len())
	fi := fs.Get("report.txt")
	require.NotNil(t, fi)
	require.True(t, fi.HasSize())
	require.Equal(t, int64(42), fi.Size())
	require.True(t, fi.HasModTime())
}

func TestParseMLSDLineUnixMode(t *testing.T) {
	fi, typ, ok := parseMLSDLine("type=file;unix.mode=0644; f.txt")
	require.True(t, ok)
	require.Equal(t, "file", typ)
	require.True(t, fi.HasMode())
	require.EqualValues(t, 0644, fi.Mode())
}

func TestParseMLSDTimeTruncatesFraction(t *testing.T) {
	ti, ok := parseMLSDTime("20210115102000.123")
	require.True(t, ok)
	require.Equal(t, 2021, ti.Year())
}
