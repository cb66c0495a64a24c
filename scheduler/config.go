package scheduler

import (
	"time"

	"github.com/exhibitor-mesos/framework/server"
)

// Config is the framework-wide configuration the scheduler is started
// with: how to reach Mesos and ZooKeeper, how to identify the
// framework, and where the artifacts an executor must fetch live.
type Config struct {
	Name  string // framework name
	User  string // framework user
	Role  string // resource role to request, "*" if unset

	MesosMaster string   // "host:port" or "zk://..."
	ZkServers   []string // "host:port" entries for ha/eventlog

	Checkpoint      bool
	FailoverTimeout time.Duration

	ReconcileInterval time.Duration

	Artifacts server.ArtifactURIs
	JDKPath   string // where the JDK archive unpacks on the executor host
}

// DefaultReconcileInterval is how often RunReconcileLoop issues a full
// reconciliation pass when Config.ReconcileInterval is not positive.
const DefaultReconcileInterval = 30 * time.Second
