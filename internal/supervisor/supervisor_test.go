package supervisor

import (
	"encoding/json"
	"net"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChunkRejectsMalformedSpecs(t *testing.T) {
	_, err := ParseChunk("not-a-chunk-spec-at-all-x")
	assert.Error(t, err)

	_, err = ParseChunk("0-5")
	assert.Error(t, err)

	_, err = ParseChunk("2-0")
	assert.Error(t, err)

	c, err := ParseChunk("")
	require.NoError(t, err)
	assert.Equal(t, Chunk{}, c)

	c, err = ParseChunk("2-50")
	require.NoError(t, err)
	assert.Equal(t, Chunk{Number: 2, Size: 50}, c)
}

func TestChunkBoundsCoversExpectedSlice(t *testing.T) {
	c := Chunk{Number: 2, Size: 10}
	lo, hi := c.Bounds(100)
	assert.Equal(t, 10, lo)
	assert.Equal(t, 20, hi)

	// Last (partial) chunk clamps hi to n.
	c = Chunk{Number: 3, Size: 10}
	lo, hi = c.Bounds(25)
	assert.Equal(t, 20, lo)
	assert.Equal(t, 25, hi)

	// No chunking covers everything.
	lo, hi = Chunk{}.Bounds(25)
	assert.Equal(t, 0, lo)
	assert.Equal(t, 25, hi)
}

func TestFilterKeepsOnlyIdsWithinChunkBounds(t *testing.T) {
	ids := []int64{1, 2, 3, 4, 5, 6}
	// chunk 2-3 of 6 ids -> [3,6) -> ids[3:6] == {4,5,6}
	f := Filter(ids, Chunk{Number: 2, Size: 3})
	assert.True(t, f(4))
	assert.True(t, f(5))
	assert.True(t, f(6))
	assert.False(t, f(1))
	assert.False(t, f(2))
	assert.False(t, f(3))
}

func TestFilterWithNoChunkAcceptsEverything(t *testing.T) {
	ids := []int64{1, 2, 3}
	f := Filter(ids, Chunk{})
	assert.True(t, f(1))
	assert.True(t, f(2))
	assert.True(t, f(3))
}

func TestPortOffsetsByChunkNumber(t *testing.T) {
	assert.Equal(t, 8080, Port(8080, Chunk{}))
	assert.Equal(t, 8080, Port(8080, Chunk{Number: 1, Size: 50}))
	assert.Equal(t, 8082, Port(8080, Chunk{Number: 3, Size: 50}))
}

func TestLockFileNameIncludesChunkNumber(t *testing.T) {
	assert.Equal(t, "monitor_service.lock", lockFileName(Chunk{}))
	assert.Equal(t, "monitor_service_chunk_4.lock", lockFileName(Chunk{Number: 4, Size: 50}))
}

func TestLockWritesAndRemovesLockFile(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(cwd)

	ln, release, err := Lock(0, Chunk{Number: 7, Size: 50})
	require.NoError(t, err)
	defer release()

	assert.NotEmpty(t, ln.Addr().String())

	body, err := os.ReadFile("monitor_service_chunk_7.lock")
	require.NoError(t, err)

	var info LockInfo
	require.NoError(t, json.Unmarshal(body, &info))
	assert.Equal(t, os.Getpid(), info.PID)
	assert.NotZero(t, info.Port)
	assert.NotEmpty(t, info.InstanceID)

	release()
	_, err = os.Stat("monitor_service_chunk_7.lock")
	assert.True(t, os.IsNotExist(err))
}

func TestLockFailsWhenPortAlreadyBound(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(cwd)

	ln, release, err := Lock(0, Chunk{})
	require.NoError(t, err)
	defer release()

	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	realPort, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	_, _, err = Lock(realPort, Chunk{})
	assert.Error(t, err)
}
