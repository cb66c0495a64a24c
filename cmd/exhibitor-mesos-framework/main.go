// Command exhibitor-mesos-framework runs the scheduler: it registers
// with a Mesos master, serves the control-plane API and artifact
// files, and participates in ZooKeeper-based leader election alongside
// other replicas, running the Mesos driver only while it leads.
package main

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gogo/protobuf/proto"
	log "github.com/golang/glog"
	mesos "github.com/mesos/mesos-go/api/v0/mesosproto"
	sched "github.com/mesos/mesos-go/api/v0/scheduler"

	"github.com/exhibitor-mesos/framework/api"
	"github.com/exhibitor-mesos/framework/artifact"
	"github.com/exhibitor-mesos/framework/config"
	"github.com/exhibitor-mesos/framework/eventlog"
	"github.com/exhibitor-mesos/framework/ha"
	"github.com/exhibitor-mesos/framework/scheduler"
	"github.com/exhibitor-mesos/framework/server"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	artifactURIs := server.ArtifactURIs{
		FrameworkJar:  "http://" + cfg.ArtifactAddr + "/jar/framework.jar",
		ExhibitorDist: "http://" + cfg.ArtifactAddr + "/exhibitor/exhibitor.jar",
		ZooKeeperDist: "http://" + cfg.ArtifactAddr + "/zookeeper/zookeeper.tar.gz",
		JDK:           "http://" + cfg.ArtifactAddr + "/jdk/jdk.tar.gz",
	}

	artifactSrv, err := artifact.New(artifact.Dirs{
		Jar:       cfg.ArtifactDir + "/jar",
		Exhibitor: cfg.ArtifactDir + "/exhibitor",
		ZooKeeper: cfg.ArtifactDir + "/zookeeper",
		JDK:       cfg.ArtifactDir + "/jdk",
	})
	if err != nil {
		log.Fatalf("artifact: %v", err)
	}
	go func() {
		log.Infoln("artifact: serving", cfg.ArtifactDir, "on", cfg.ArtifactAddr)
		log.Fatal(listenAndServeMux(cfg.ArtifactAddr, artifactSrv.Mux()))
	}()

	events, err := eventlog.Open(cfg.ZK, "/exhibitor-mesos/"+cfg.Name+"/events", 10*time.Second)
	if err != nil {
		log.Fatalf("eventlog: %v", err)
	}
	defer events.Close()

	sc := scheduler.New(scheduler.Config{
		Name:              cfg.Name,
		User:              cfg.User,
		Role:              cfg.Role,
		MesosMaster:       cfg.Master,
		ZkServers:         cfg.ZK,
		Checkpoint:        cfg.Checkpoint,
		FailoverTimeout:   cfg.FailoverTimeout,
		ReconcileInterval: cfg.ReconcileInterval,
		Artifacts:         artifactURIs,
		JDKPath:           "/usr/lib/jvm/default",
	}, events)

	leaderCh := make(chan bool, 1)
	updater := &leadershipUpdater{self: cfg.APIAddr, changes: leaderCh}

	host, port, err := splitHostPort(cfg.APIAddr)
	if err != nil {
		log.Fatalf("config: invalid -api-addr %q: %v", cfg.APIAddr, err)
	}
	elector, err := ha.New(cfg.ZK, cfg.Name, ha.Replica{Host: host, Port: port}, updater, 10*time.Second)
	if err != nil {
		log.Fatalf("ha: %v", err)
	}
	defer elector.Close()

	apiHandler := api.New(sc).WithLeaderInfo(elector)
	go func() {
		log.Infoln("api: control plane listening on", cfg.HTTPAddr)
		log.Fatal(listenAndServeMux(cfg.HTTPAddr, apiHandler.Mux()))
	}()

	if err := elector.Run(); err != nil {
		log.Fatalf("ha: %v", err)
	}

	var (
		driverMu sync.Mutex
		driver   sched.SchedulerDriver
		stop     chan struct{}
	)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-interrupt
		log.Infoln("received interrupt, shutting down")
		driverMu.Lock()
		if driver != nil {
			driver.Stop(false)
		}
		driverMu.Unlock()
		os.Exit(0)
	}()

	for isLeader := range leaderCh {
		driverMu.Lock()
		if !isLeader {
			if driver != nil {
				driver.Stop(false)
				close(stop)
				driver = nil
			}
			driverMu.Unlock()
			continue
		}

		fwinfo := &mesos.FrameworkInfo{
			User:            proto.String(cfg.User),
			Name:            proto.String(cfg.Name),
			Role:            proto.String(cfg.Role),
			Checkpoint:      proto.Bool(cfg.Checkpoint),
			FailoverTimeout: proto.Float64(cfg.FailoverTimeout.Seconds()),
		}

		newDriver, err := sched.NewMesosSchedulerDriver(sched.DriverConfig{
			Scheduler: sc,
			Framework: fwinfo,
			Master:    cfg.Master,
		})
		if err != nil {
			driverMu.Unlock()
			log.Fatalf("scheduler: unable to create driver: %v", err)
		}
		driver = newDriver
		sc.SetDriver(driver)
		stop = make(chan struct{})
		driverMu.Unlock()

		go sc.RunReconcileLoop(stop)
		go func(d sched.SchedulerDriver) {
			if status, err := d.Run(); err != nil {
				log.Fatalf("scheduler: driver stopped with status %s: %v", status.String(), err)
			}
		}(driver)
	}
}

// leadershipUpdater translates ha.StatusUpdater callbacks into a
// leader/not-leader boolean stream for main's driver lifecycle loop.
type leadershipUpdater struct {
	self    string
	changes chan bool
}

func (u *leadershipUpdater) LeaderElected(r ha.Replica) {
	u.changes <- (r.Host+":"+portString(r.Port) == u.self)
}

func (u *leadershipUpdater) LeaderLost(ha.Replica) {
	u.changes <- false
}
