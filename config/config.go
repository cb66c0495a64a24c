// Package config parses the framework's command-line flags into the
// values every other package needs at startup: how to reach Mesos and
// ZooKeeper, where the control-plane and artifact HTTP servers listen,
// and where artifact files live on disk.
package config

import (
	"flag"
	"fmt"
	"strings"
	"time"
)

// Config is the fully parsed, validated command-line configuration.
type Config struct {
	Master string   // Mesos master "host:port" or "zk://..."
	ZK     []string // ZooKeeper ensemble "host:port" entries

	Name string
	User string
	Role string

	HTTPAddr     string // control-plane API bind address
	APIAddr      string // this replica's externally reachable API address, for HA znode payloads
	ArtifactAddr string // artifact HTTP server bind address
	ArtifactDir  string // root directory holding jar/exhibitor/zookeeper/jdk subdirectories

	Checkpoint        bool
	FailoverTimeout   time.Duration
	ReconcileInterval time.Duration
}

// Parse parses args (typically os.Args[1:]) into a Config and validates
// it. A malformed or incomplete config is a startup-fatal condition per
// spec.md §7; the caller is expected to glog.Fatalf on a non-nil error.
func Parse(args []string) (Config, error) {
	fs := flag.NewFlagSet("exhibitor-mesos-framework", flag.ContinueOnError)

	master := fs.String("master", "", "Mesos master address, host:port or zk://...")
	zk := fs.String("zk", "", "comma-separated ZooKeeper ensemble, host:port,host:port")
	name := fs.String("name", "exhibitor", "framework name")
	user := fs.String("user", "root", "framework user")
	role := fs.String("role", "*", "resource role to request")
	httpAddr := fs.String("http-addr", ":9091", "control-plane API bind address")
	apiAddr := fs.String("api-addr", "", "externally reachable host:port for this replica's API, used in HA leader announcements")
	artifactAddr := fs.String("artifact-addr", ":9092", "artifact HTTP server bind address")
	artifactDir := fs.String("artifact-dir", "./artifacts", "root directory holding jar/exhibitor/zookeeper/jdk subdirectories")
	checkpoint := fs.Bool("checkpoint", true, "enable Mesos framework checkpointing")
	failoverTimeout := fs.Duration("failover-timeout", time.Hour, "Mesos failover timeout")
	reconcileInterval := fs.Duration("reconcile-interval", 30*time.Second, "interval between reconciliation passes")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Master:            *master,
		Name:              *name,
		User:              *user,
		Role:              *role,
		HTTPAddr:          *httpAddr,
		APIAddr:           *apiAddr,
		ArtifactAddr:      *artifactAddr,
		ArtifactDir:       *artifactDir,
		Checkpoint:        *checkpoint,
		FailoverTimeout:   *failoverTimeout,
		ReconcileInterval: *reconcileInterval,
	}
	if *zk != "" {
		cfg.ZK = strings.Split(*zk, ",")
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Master == "" {
		return fmt.Errorf("config: -master is required")
	}
	if len(c.ZK) == 0 {
		return fmt.Errorf("config: -zk is required")
	}
	if c.APIAddr == "" {
		return fmt.Errorf("config: -api-addr is required for HA leader announcements")
	}
	return nil
}
