package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exhibitor-mesos/framework/server"
)

func TestAddGetRemove(t *testing.T) {
	c := New()
	s1 := server.New("zk1", server.NewConfig(), nil)
	s2 := server.New("zk2", server.NewConfig(), nil)

	require.NoError(t, c.Add(s1))
	require.NoError(t, c.Add(s2))

	assert.Equal(t, s1, c.Get("zk1"))
	assert.Nil(t, c.Get("nope"))

	err := c.Add(server.New("zk1", server.NewConfig(), nil))
	var dup *DuplicateIDError
	assert.ErrorAs(t, err, &dup)

	removed := c.Remove("zk1")
	assert.Equal(t, s1, removed)
	assert.Nil(t, c.Get("zk1"))
	assert.Equal(t, 1, c.Len())
}

func TestInsertionOrderStable(t *testing.T) {
	c := New()
	ids := []string{"c", "a", "b"}
	for _, id := range ids {
		require.NoError(t, c.Add(server.New(id, server.NewConfig(), nil)))
	}

	c.Remove("a")
	require.NoError(t, c.Add(server.New("a", server.NewConfig(), nil)))

	got := make([]string, 0)
	for _, s := range c.All() {
		got = append(got, s.ID)
	}
	// "a" was removed and re-added, so it now sorts last.
	assert.Equal(t, []string{"c", "b", "a"}, got)
}

func TestPeerAttributesSkipsSelfAndAddedServers(t *testing.T) {
	c := New()
	placed := server.New("zk1", server.NewConfig(), nil)
	placed.LastTask = &server.Task{
		Attributes: map[string]string{"hostname": "h1", "rack": "A"},
	}
	unplaced := server.New("zk2", server.NewConfig(), nil)

	require.NoError(t, c.Add(placed))
	require.NoError(t, c.Add(unplaced))

	history := c.PeerAttributes("zk3")
	assert.Equal(t, []string{"A"}, history("rack"))
	assert.Equal(t, []string{"h1"}, history("hostname"))

	self := c.PeerAttributes("zk1")
	assert.Empty(t, self("rack"))
}
