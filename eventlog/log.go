// Package eventlog appends a write-only audit trail of scheduler
// decisions to ZooKeeper: server creation and server state transitions
// (launches among them); config changes and removals are not recorded.
// It is purely an observability side channel — the
// scheduler's authoritative state always remains the in-memory
// Cluster, and nothing here is ever read back to reconstruct state at
// startup (see spec.md's storage Non-goal).
package eventlog

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	zkCli "github.com/samuel/go-zookeeper/zk"
)

// Event is one recorded scheduler decision.
type Event struct {
	TimeUnixMS int64  `json:"ts"`
	ServerID   string `json:"serverId"`
	From       string `json:"from"`
	To         string `json:"to"`
	Reason     string `json:"reason"`
}

// Log appends Events as sequential znodes under a root path. It never
// reads its own children back for anything other than diagnostics.
type Log struct {
	conn    *zkCli.Conn
	rootDir string
	acl     []zkCli.ACL
}

// Open connects to the given ZooKeeper ensemble and ensures rootDir
// exists, creating intermediate znodes as needed.
func Open(servers []string, rootDir string, timeout time.Duration) (*Log, error) {
	if !strings.HasPrefix(rootDir, "/") {
		return nil, fmt.Errorf("eventlog: root dir %q must start with '/'", rootDir)
	}
	rootDir = strings.TrimSuffix(rootDir, "/")

	conn, _, err := zkCli.Connect(servers, timeout)
	if err != nil {
		return nil, errors.Wrapf(err, "eventlog: connecting to %v", servers)
	}

	acl := zkCli.WorldACL(zkCli.PermAll)
	if err := ensureDir(conn, rootDir, acl); err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "eventlog: ensuring root dir %q", rootDir)
	}

	return &Log{conn: conn, rootDir: rootDir, acl: acl}, nil
}

// Close releases the ZooKeeper session. It does not delete any
// recorded events.
func (l *Log) Close() {
	l.conn.Close()
}

// Append writes ev as a new sequential znode under the log's root.
// Failures are the caller's to decide on — the scheduler treats this
// as best-effort and only logs a failure, never blocking on it.
func (l *Log) Append(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "eventlog: marshaling event")
	}
	_, err = l.conn.Create(l.rootDir+"/event-", data, zkCli.FlagSequence, l.acl)
	return errors.Wrapf(err, "eventlog: appending event for %s", ev.ServerID)
}

func ensureDir(conn *zkCli.Conn, dir string, acl []zkCli.ACL) error {
	dir = strings.TrimPrefix(dir, "/")
	parts := strings.Split(dir, "/")
	cur := ""
	for _, p := range parts {
		cur += "/" + p
		exists, _, err := conn.Exists(cur)
		if err != nil {
			return err
		}
		if !exists {
			if _, err := conn.Create(cur, nil, 0, acl); err != nil && err != zkCli.ErrNodeExists {
				return err
			}
		}
	}
	return nil
}
