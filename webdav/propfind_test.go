package webdav

import (
	"strings"
	"testing"

	"github.com/gonzalop/xfer"
	"github.com/stretchr/testify/require"
)

const multistatusListing = `<?xml version="1.0" encoding="utf-8"?>
<D:multistatus xmlns:D="DAV:">
  <D:response>
    <D:href>/dir/</D:href>
    <D:propstat>
      <D:prop><D:resourcetype><D:collection/></D:resourcetype></D:prop>
      <D:status>HTTP/1.1 200 OK</D:status>
    </D:propstat>
  </D:response>
  <D:response>
    <D:href>/dir/a.txt</D:href>
    <D:propstat>
      <D:prop>
        <D:resourcetype/>
        <D:getcontentlength>42</D:getcontentlength>
        <D:getlastmodified>Tue, 15 Nov 1994 12:45:26 GMT</D:getlastmodified>
      </D:prop>
      <D:status>HTTP/1.1 200 OK</D:status>
    </D:propstat>
  </D:response>
  <D:response>
    <D:href>/dir/sub/</D:href>
    <D:propstat>
      <D:prop><D:resourcetype><D:collection/></D:resourcetype></D:prop>
      <D:status>HTTP/1.1 200 OK</D:status>
    </D:propstat>
  </D:response>
</D:multistatus>`

func TestParsePropfindSkipsSelfAndCollectsChildren(t *testing.T) {
	fs, err := parsePropfind(strings.NewReader(multistatusListing), "/dir")
	require.NoError(t, err)
	require.Equal(t, 2, fs.Len())

	a := fs.Get("a.txt")
	require.NotNil(t, a)
	require.Equal(t, int64(42), a.Size())
	require.True(t, a.HasModTime())

	sub := fs.Get("sub")
	require.NotNil(t, sub)
}

func TestParsePropfindOneReportsCollectionType(t *testing.T) {
	const single = `<?xml version="1.0"?>
<D:multistatus xmlns:D="DAV:">
  <D:response>
    <D:href>/dir/</D:href>
    <D:propstat>
      <D:prop><D:resourcetype><D:collection/></D:resourcetype></D:prop>
      <D:status>HTTP/1.1 200 OK</D:status>
    </D:propstat>
  </D:response>
</D:multistatus>`

	fi, err := parsePropfindOne(strings.NewReader(single))
	require.NoError(t, err)
	require.NotNil(t, fi)
	require.Equal(t, xfer.TypeDir, fi.Type)
}
