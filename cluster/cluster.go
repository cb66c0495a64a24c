// Package cluster holds the ordered collection of Servers the scheduler
// is responsible for: lookup by id, insertion-order iteration (which
// also defines constraint peer-history order), and attribute
// projection for the constraint package.
package cluster

import (
	"fmt"

	orderedmap "github.com/elliotchance/orderedmap/v2"

	"github.com/exhibitor-mesos/framework/server"
)

// Cluster is an id-keyed, insertion-ordered collection of Servers.
// Insertion order is significant: it defines both the order servers
// are offered resources in and the order their attributes contribute
// to peer constraint history.
type Cluster struct {
	servers *orderedmap.OrderedMap[string, *server.Server]
}

// New returns an empty Cluster.
func New() *Cluster {
	return &Cluster{servers: orderedmap.NewOrderedMap[string, *server.Server]()}
}

// DuplicateIDError is returned by Add when id is already present.
type DuplicateIDError struct{ ID string }

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("cluster: server id %q already exists", e.ID)
}

// Add inserts s, failing if its id collides with an existing server.
func (c *Cluster) Add(s *server.Server) error {
	if _, ok := c.servers.Get(s.ID); ok {
		return &DuplicateIDError{ID: s.ID}
	}
	c.servers.Set(s.ID, s)
	return nil
}

// Remove deletes and returns the server with the given id, or nil if
// none exists.
func (c *Cluster) Remove(id string) *server.Server {
	s, ok := c.servers.Get(id)
	if !ok {
		return nil
	}
	c.servers.Delete(id)
	return s
}

// Get returns the server with the given id, or nil if none exists.
func (c *Cluster) Get(id string) *server.Server {
	s, ok := c.servers.Get(id)
	if !ok {
		return nil
	}
	return s
}

// All returns every server, in insertion order.
func (c *Cluster) All() []*server.Server {
	all := make([]*server.Server, 0, c.servers.Len())
	for el := c.servers.Front(); el != nil; el = el.Next() {
		all = append(all, el.Value)
	}
	return all
}

// Len returns the number of servers currently in the cluster.
func (c *Cluster) Len() int {
	return c.servers.Len()
}

// PeerAttributes projects, for every server other than excludingID
// that has a LastTask, the value it holds for each attribute. Servers
// in Added state (no prior task) contribute nothing. The returned
// function is what Server.Matches expects as its peer-history lookup.
func (c *Cluster) PeerAttributes(excludingID string) func(attr string) []string {
	history := make(map[string][]string)
	for el := c.servers.Front(); el != nil; el = el.Next() {
		s := el.Value
		if s.ID == excludingID || s.LastTask == nil {
			continue
		}
		for attr, value := range s.LastTask.Attributes {
			history[attr] = append(history[attr], value)
		}
	}
	return func(attr string) []string {
		return history[attr]
	}
}
