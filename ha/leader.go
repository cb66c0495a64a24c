// Package ha implements ZooKeeper-based leader election so multiple
// scheduler replicas can run against the same Mesos master for
// availability: only the elected leader drives the Mesos scheduler
// driver. The control API's mutating endpoints are not gated on
// leadership; on a non-leader they act on that replica's local state.
package ha

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/golang/glog"
	"github.com/pkg/errors"
	zkCli "github.com/samuel/go-zookeeper/zk"
)

// Replica identifies one scheduler process for leader-election
// purposes: where its control-plane HTTP API can be reached.
type Replica struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (r Replica) toBytes() ([]byte, error) {
	return json.Marshal(r)
}

func replicaFromBytes(data []byte) (Replica, error) {
	var r Replica
	err := json.Unmarshal(data, &r)
	return r, err
}

// StatusUpdater is notified of leadership changes.
type StatusUpdater interface {
	LeaderElected(leader Replica)
	LeaderLost(previous Replica)
}

// Elector runs the ZooKeeper ephemeral-sequential leader-election
// recipe (see http://zookeeper.apache.org/doc/trunk/recipes.html#sc_leaderElection).
type Elector struct {
	servers     []string
	root        string
	acl         []zkCli.ACL
	conn        *zkCli.Conn
	connTimeout time.Duration
	connChan    <-chan zkCli.Event
	self        Replica
	updater     StatusUpdater
	closeChan   chan struct{}

	mu     sync.Mutex
	leader Replica
}

// Leader returns the last known leader replica. It may be stale by up
// to one watch round-trip after a failover.
func (e *Elector) Leader() Replica {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.leader
}

// IsLeader reports whether self is the last known leader.
func (e *Elector) IsLeader() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.leader == e.self
}

// LeaderAddr returns the last known leader's "host:port", satisfying
// the api package's LeaderInfo interface.
func (e *Elector) LeaderAddr() string {
	l := e.Leader()
	if l.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", l.Host, l.Port)
}

// New connects to ZooKeeper and returns an Elector for self, scoped
// under /exhibitor-mesos/<name>/leader.
func New(servers []string, name string, self Replica, updater StatusUpdater, connTimeout time.Duration) (*Elector, error) {
	conn, connChan, err := zkCli.Connect(servers, connTimeout)
	if err != nil {
		return nil, errors.Wrapf(err, "ha: connecting to %v", servers)
	}

	root := "/exhibitor-mesos/" + name + "/leader"
	acl := zkCli.WorldACL(zkCli.PermAll)
	if err := ensurePath(conn, root, acl); err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "ha: ensuring root path %q", root)
	}

	return &Elector{
		servers:     servers,
		root:        root,
		acl:         acl,
		conn:        conn,
		connTimeout: connTimeout,
		connChan:    connChan,
		self:        self,
		updater:     updater,
		closeChan:   make(chan struct{}),
	}, nil
}

// Close tears down the election session; it does not resign gracefully
// beyond letting the ephemeral znode expire with the session.
func (e *Elector) Close() {
	close(e.closeChan)
	e.conn.Close()
}

// Run registers self and starts watching for leadership changes. It
// returns once the initial leader is known; ongoing changes are
// delivered to updater from a background goroutine.
func (e *Elector) Run() error {
	if err := e.register(); err != nil {
		return err
	}
	log.Infoln("ha: registered replica", e.self)

	leader, leaderChan, err := e.getAndWatchLeader()
	if err != nil {
		return err
	}
	log.Infoln("ha: current leader is", leader)

	go e.monitor(leader, leaderChan)
	return nil
}

func (e *Elector) register() error {
	data, err := e.self.toBytes()
	if err != nil {
		return err
	}
	_, err = e.conn.Create(e.root+"/node-", data, zkCli.FlagEphemeral|zkCli.FlagSequence, e.acl)
	return err
}

func (e *Elector) getAndWatchLeader() (Replica, <-chan zkCli.Event, error) {
	children, _, err := e.conn.Children(e.root)
	if err != nil {
		return Replica{}, nil, err
	}
	leaderNode := minChild(children)
	data, _, watch, err := e.conn.GetW(e.root + "/" + leaderNode)
	if err != nil {
		return Replica{}, nil, err
	}
	leader, err := replicaFromBytes(data)
	if err != nil {
		return Replica{}, nil, err
	}
	e.mu.Lock()
	e.leader = leader
	e.mu.Unlock()
	e.updater.LeaderElected(leader)
	return leader, watch, nil
}

func (e *Elector) monitor(leader Replica, leaderChan <-chan zkCli.Event) {
	for {
		select {
		case ev := <-leaderChan:
			if ev.Type == zkCli.EventNodeDeleted {
				e.updater.LeaderLost(leader)
				if err := e.reelect(); err != nil {
					log.Errorf("ha: re-election failed: %v", err)
				}
				return
			}

		case ev := <-e.connChan:
			if ev.Type == zkCli.EventSession && ev.State == zkCli.StateDisconnected {
				conn, connChan, err := zkCli.Connect(e.servers, e.connTimeout)
				if err != nil {
					log.Errorf("ha: cannot reconnect to zookeeper %v: %v", e.servers, err)
					return
				}
				e.conn = conn
				e.connChan = connChan
				if err := e.reelect(); err != nil {
					log.Errorf("ha: re-election after reconnect failed: %v", err)
				}
				return
			}

		case <-e.closeChan:
			log.Infoln("ha: election stopped for replica", e.self)
			return
		}
	}
}

func (e *Elector) reelect() error {
	if err := e.register(); err != nil {
		return err
	}
	leader, leaderChan, err := e.getAndWatchLeader()
	if err != nil {
		return err
	}
	go e.monitor(leader, leaderChan)
	return nil
}

func minChild(children []string) string {
	sorted := append([]string(nil), children...)
	sort.Strings(sorted)
	return sorted[0]
}

func ensurePath(conn *zkCli.Conn, path string, acl []zkCli.ACL) error {
	if path == "" || path == "/" {
		return nil
	}
	parent := path[:lastSlash(path)]
	if parent != "" {
		if err := ensurePath(conn, parent, acl); err != nil {
			return err
		}
	}
	exists, _, err := conn.Exists(path)
	if err != nil {
		return err
	}
	if !exists {
		if _, err := conn.Create(path, nil, 0, acl); err != nil && err != zkCli.ErrNodeExists {
			return err
		}
	}
	return nil
}

func lastSlash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return i
		}
	}
	return 0
}
