package cache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/achuthan-s/oasis-chat-client/internal/domain"
)

func openTestCache(t *testing.T, dir string) *MessageCache {
	t.Helper()
	c, err := Open(dir)
	require.NoError(t, err)
	require.NotNil(t, c)
	t.Cleanup(func() { c.Close() })
	return c
}

func testMsg(text string) domain.Message {
	return domain.Message{UserID: 1, Username: "alice", Message: text, Timestamp: "2026-08-31T10:00:00"}
}

func TestAppendAndRecent(t *testing.T) {
	c := openTestCache(t, t.TempDir())

	require.NoError(t, c.Append("a", testMsg("one")))
	require.NoError(t, c.Append("a", testMsg("two")))
	require.NoError(t, c.Append("a", testMsg("three")))

	msgs, err := c.Recent("a", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "one", msgs[0].Message)
	assert.Equal(t, "three", msgs[2].Message)
}

func TestRecentLimitKeepsNewest(t *testing.T) {
	c := openTestCache(t, t.TempDir())
	for i := 1; i <= 5; i++ {
		require.NoError(t, c.Append("a", testMsg(fmt.Sprintf("m%d", i))))
	}

	msgs, err := c.Recent("a", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m4", msgs[0].Message)
	assert.Equal(t, "m5", msgs[1].Message)
}

func TestRoomsAreIsolated(t *testing.T) {
	c := openTestCache(t, t.TempDir())
	require.NoError(t, c.Append("a", testMsg("for a")))
	require.NoError(t, c.Append("b", testMsg("for b")))

	msgs, err := c.Recent("a", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "for a", msgs[0].Message)

	msgs, err = c.Recent("missing", 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestReopenKeepsMessagesAndSequence(t *testing.T) {
	dir := t.TempDir()

	c, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, c.Append("a", testMsg("before")))
	require.NoError(t, c.Close())

	c = openTestCache(t, dir)
	require.NoError(t, c.Append("a", testMsg("after")))

	msgs, err := c.Recent("a", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "before", msgs[0].Message)
	assert.Equal(t, "after", msgs[1].Message)
}

func TestDisabledCacheIsNoOp(t *testing.T) {
	c, err := Open("")
	require.NoError(t, err)
	require.Nil(t, c)

	assert.NoError(t, c.Append("a", testMsg("dropped")))
	msgs, err := c.Recent("a", 10)
	assert.NoError(t, err)
	assert.Nil(t, msgs)
	assert.NoError(t, c.Close())
}
