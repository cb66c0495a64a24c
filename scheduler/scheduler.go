// Package scheduler implements the event-driven control loop: it reacts
// to Mesos offers and status updates by mutating Server state in the
// Cluster it owns, and exposes a small set of entry points the control
// API uses to express operator intent (start/stop/remove/config).
package scheduler

import (
	"sync"
	"time"

	"github.com/gogo/protobuf/proto"
	log "github.com/golang/glog"
	mesos "github.com/mesos/mesos-go/api/v0/mesosproto"
	sched "github.com/mesos/mesos-go/api/v0/scheduler"

	"github.com/exhibitor-mesos/framework/cluster"
	"github.com/exhibitor-mesos/framework/constraint"
	"github.com/exhibitor-mesos/framework/eventlog"
	"github.com/exhibitor-mesos/framework/metrics"
	"github.com/exhibitor-mesos/framework/server"
)

// Scheduler is the single logical event handler described in spec.md
// §4.5. A single mutex protects every Server in the Cluster and the
// Scheduler's own bookkeeping; see spec.md §5 for the concurrency
// contract this enforces.
type Scheduler struct {
	mu      sync.Mutex
	cluster *cluster.Cluster
	config  Config
	driver  sched.SchedulerDriver
	events  *eventlog.Log // optional; nil disables the audit trail

	frameworkID string
	connected   bool

	notify chan struct{} // closed and replaced on every state transition
}

// New returns a Scheduler over an empty Cluster. events may be nil.
func New(config Config, events *eventlog.Log) *Scheduler {
	return &Scheduler{
		cluster: cluster.New(),
		config:  config,
		events:  events,
		notify:  make(chan struct{}),
	}
}

// SetDriver installs the Mesos scheduler driver used to emit
// launch/decline/kill/reconcile calls. It must be called before the
// driver's Run loop starts delivering callbacks.
func (s *Scheduler) SetDriver(driver sched.SchedulerDriver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.driver = driver
}

// signalLocked wakes every goroutine blocked in WaitFor. Callers must
// hold s.mu.
func (s *Scheduler) signalLocked() {
	close(s.notify)
	s.notify = make(chan struct{})
}

func (s *Scheduler) record(serverID string, from, to server.State, reason string) {
	if s.events == nil {
		return
	}
	if err := s.events.Append(eventlog.Event{
		TimeUnixMS: time.Now().UnixMilli(),
		ServerID:   serverID,
		From:       from.String(),
		To:         to.String(),
		Reason:     reason,
	}); err != nil {
		log.Errorf("eventlog: failed to append event for %s: %v", serverID, err)
	}
}

func (s *Scheduler) transitionLocked(srv *server.Server, to server.State, reason string) {
	from := srv.State
	srv.State = to
	srv.UpdatedAt = time.Now()
	if reason != "" {
		srv.LastError = reason
	}
	metrics.ServersByState.WithLabelValues(from.String()).Dec()
	metrics.ServersByState.WithLabelValues(to.String()).Inc()
	s.signalLocked()
	go s.record(srv.ID, from, to, reason)
}

// ---- control API entry points ----

// AddServer creates a server in Added state. It fails if id is already
// used.
func (s *Scheduler) AddServer(id string, cfg server.Config, constraints map[string][]constraint.Constraint) (*server.Server, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	srv := server.New(id, cfg, constraints)
	if err := s.cluster.Add(srv); err != nil {
		return nil, err
	}
	metrics.ServersByState.WithLabelValues(server.Added.String()).Inc()
	s.signalLocked()
	go s.record(id, server.Added, server.Added, "created")
	return srv, nil
}

// StartServer flips Added -> Stopped, making the server launchable. It
// is a no-op if the server has already progressed past Added.
func (s *Scheduler) StartServer(id string) *server.Server {
	s.mu.Lock()
	defer s.mu.Unlock()

	srv := s.cluster.Get(id)
	if srv == nil {
		return nil
	}
	if srv.State == server.Added {
		s.transitionLocked(srv, server.Stopped, "")
	}
	return srv
}

// StopServer issues a kill for the server's current task if it has
// one, or is a no-op that still returns the server if it is already
// Added or Stopped.
func (s *Scheduler) StopServer(id string) *server.Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked(id)
}

func (s *Scheduler) stopLocked(id string) *server.Server {
	srv := s.cluster.Get(id)
	if srv == nil {
		return nil
	}

	switch srv.State {
	case server.Added, server.Stopped:
		return srv
	default:
		srv.StopRequested = true
		if srv.LastTask != nil && s.driver != nil {
			if _, err := s.driver.KillTask(&mesos.TaskID{Value: proto.String(srv.LastTask.TaskID)}); err != nil {
				log.Errorf("scheduler: KillTask failed for %s: %v", id, err)
			}
		}
		return srv
	}
}

// RemoveServer stops the server if needed, then deletes it from the
// cluster.
func (s *Scheduler) RemoveServer(id string) *server.Server {
	s.mu.Lock()
	defer s.mu.Unlock()

	srv := s.stopLocked(id)
	if srv == nil {
		return nil
	}
	s.cluster.Remove(id)
	metrics.ServersByState.WithLabelValues(srv.State.String()).Dec()
	s.signalLocked()
	return srv
}

// ConfigureServer merges recognized option keys into the server's
// config, returning the unknown keys the caller should log and ignore.
func (s *Scheduler) ConfigureServer(id string, opts map[string]string) (unknown []string, found bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	srv := s.cluster.Get(id)
	if srv == nil {
		return nil, false
	}
	return srv.Config.MergeOptions(opts), true
}

// Get returns the server with the given id, or nil.
func (s *Scheduler) Get(id string) *server.Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cluster.Get(id)
}

// All returns every server, insertion order.
func (s *Scheduler) All() []*server.Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cluster.All()
}

// WaitFor blocks until the server reaches want or timeout elapses,
// returning whether it was reached. It is a condition-variable style
// wait woken by every state transition, not a sleep-poll.
func (s *Scheduler) WaitFor(id string, want server.State, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		s.mu.Lock()
		srv := s.cluster.Get(id)
		if srv == nil {
			s.mu.Unlock()
			return false
		}
		if srv.State == want {
			s.mu.Unlock()
			return true
		}
		ch := s.notify
		s.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		select {
		case <-ch:
		case <-time.After(remaining):
			return false
		}
	}
}

// ---- Mesos scheduler driver callbacks ----

func (s *Scheduler) Registered(driver sched.SchedulerDriver, frameworkID *mesos.FrameworkID, masterInfo *mesos.MasterInfo) {
	log.Infoln("scheduler: registered with master", masterInfo.GetHostname(), "framework id", frameworkID.GetValue())
	s.mu.Lock()
	s.frameworkID = frameworkID.GetValue()
	s.connected = true
	s.mu.Unlock()

	go s.Reconcile()
}

func (s *Scheduler) Reregistered(driver sched.SchedulerDriver, masterInfo *mesos.MasterInfo) {
	log.Infoln("scheduler: re-registered with master", masterInfo.GetHostname())
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()

	go s.Reconcile()
}

func (s *Scheduler) Disconnected(sched.SchedulerDriver) {
	log.Infoln("scheduler: disconnected from master")
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
}

// ResourceOffers implements spec.md §4.5 onOffers: walk the cluster in
// insertion order for each offer, launching at most one task per
// offer, declining if nothing matched.
func (s *Scheduler) ResourceOffers(driver sched.SchedulerDriver, offers []*mesos.Offer) {
	for _, offer := range offers {
		metrics.OffersReceived.Inc()
		launched := s.tryLaunch(driver, offer)
		if !launched {
			metrics.OffersDeclined.Inc()
			if _, err := driver.DeclineOffer(offer.Id, &mesos.Filters{RefuseSeconds: proto.Float64(5)}); err != nil {
				log.Errorf("scheduler: DeclineOffer failed: %v", err)
			}
		}
	}
}

func (s *Scheduler) tryLaunch(driver sched.SchedulerDriver, offer *mesos.Offer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, candidate := range s.cluster.All() {
		if candidate.State != server.Stopped {
			continue
		}

		peerAttr := s.cluster.PeerAttributes(candidate.ID)
		reason, ok := candidate.Matches(offer, peerAttr)
		if !ok {
			log.V(1).Infof("scheduler: offer %s rejected for %s: %s", offer.GetId().GetValue(), candidate.ID, reason)
			continue
		}

		taskInfo, task, err := candidate.BuildTask(offer, s.config.Artifacts, s.config.JDKPath)
		if err != nil {
			log.Errorf("scheduler: failed to build task for %s: %v", candidate.ID, err)
			continue
		}

		candidate.LastTask = &task
		s.transitionLocked(candidate, server.Staging, "")

		if _, err := driver.LaunchTasks([]*mesos.OfferID{offer.Id}, []*mesos.TaskInfo{taskInfo}, &mesos.Filters{RefuseSeconds: proto.Float64(1)}); err != nil {
			log.Errorf("scheduler: LaunchTasks failed for %s: %v", candidate.ID, err)
			candidate.LastTask = nil
			s.transitionLocked(candidate, server.Stopped, "launch failed")
			return false
		}

		metrics.OffersAccepted.Inc()
		metrics.TasksLaunched.Inc()
		log.Infof("scheduler: launched %s as task %s on %s", candidate.ID, task.TaskID, offer.GetHostname())
		return true
	}

	return false
}

// StatusUpdate implements spec.md §4.5 onStatus.
func (s *Scheduler) StatusUpdate(driver sched.SchedulerDriver, status *mesos.TaskStatus) {
	metrics.StatusUpdates.WithLabelValues(status.GetState().String()).Inc()

	id, ok := server.IDFromTaskID(status.GetTaskId().GetValue())
	if !ok {
		log.Errorf("scheduler: status update for unparsable task id %s", status.GetTaskId().GetValue())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	srv := s.cluster.Get(id)
	if srv == nil {
		if status.GetState() == mesos.TaskState_TASK_RUNNING {
			log.Infof("scheduler: unknown server %s still running, killing task %s", id, status.GetTaskId().GetValue())
			if s.driver != nil {
				s.driver.KillTask(status.GetTaskId())
			}
		}
		return
	}

	switch status.GetState() {
	case mesos.TaskState_TASK_RUNNING:
		if srv.LastTask == nil {
			srv.LastTask = &server.Task{
				TaskID:     status.GetTaskId().GetValue(),
				SlaveID:    status.GetSlaveId().GetValue(),
				ExecutorID: status.GetExecutorId().GetValue(),
				Attributes: map[string]string{},
			}
		}
		if srv.State != server.Running {
			s.transitionLocked(srv, server.Running, "")
		}

	case mesos.TaskState_TASK_STAGING, mesos.TaskState_TASK_STARTING:
		// no state change: Staging/Reconciling already cover this.

	case mesos.TaskState_TASK_FINISHED, mesos.TaskState_TASK_FAILED,
		mesos.TaskState_TASK_KILLED, mesos.TaskState_TASK_LOST, mesos.TaskState_TASK_ERROR:
		next := server.Stopped
		if srv.StopRequested {
			next = server.Added
			srv.StopRequested = false
		}
		srv.LastTask = nil
		s.transitionLocked(srv, next, status.GetMessage())
	}
}

func (s *Scheduler) OfferRescinded(driver sched.SchedulerDriver, id *mesos.OfferID) {
	log.Infof("scheduler: offer %s rescinded", id.GetValue())
}

func (s *Scheduler) FrameworkMessage(driver sched.SchedulerDriver, executorID *mesos.ExecutorID, slaveID *mesos.SlaveID, msg string) {
	log.Infof("scheduler: framework message from executor %s on slave %s: %s", executorID.GetValue(), slaveID.GetValue(), msg)
}

func (s *Scheduler) SlaveLost(driver sched.SchedulerDriver, id *mesos.SlaveID) {
	log.Infof("scheduler: slave %s lost", id.GetValue())
}

func (s *Scheduler) ExecutorLost(driver sched.SchedulerDriver, executorID *mesos.ExecutorID, slaveID *mesos.SlaveID, status int) {
	log.Infof("scheduler: executor %s lost on slave %s, status %d", executorID.GetValue(), slaveID.GetValue(), status)
}

func (s *Scheduler) Error(driver sched.SchedulerDriver, msg string) {
	log.Errorln("scheduler: received error from master:", msg)
}

// Reconcile implements spec.md §4.5 reconcile(): every non-Added/
// Stopped server transitions to Reconciling and its last known task is
// submitted to Mesos for status reconciliation.
func (s *Scheduler) Reconcile() {
	s.mu.Lock()
	statuses := make([]*mesos.TaskStatus, 0)
	for _, srv := range s.cluster.All() {
		if srv.State == server.Added || srv.State == server.Stopped {
			continue
		}
		if srv.LastTask == nil {
			continue
		}
		statuses = append(statuses, &mesos.TaskStatus{
			TaskId:  &mesos.TaskID{Value: proto.String(srv.LastTask.TaskID)},
			SlaveId: &mesos.SlaveID{Value: proto.String(srv.LastTask.SlaveID)},
			State:   mesos.TaskState_TASK_STAGING.Enum(),
		})
		s.transitionLocked(srv, server.Reconciling, "")
	}
	driver := s.driver
	s.mu.Unlock()

	if driver == nil || len(statuses) == 0 {
		return
	}
	if _, err := driver.ReconcileTasks(statuses); err != nil {
		log.Errorf("scheduler: ReconcileTasks failed: %v", err)
	}
}

// RunReconcileLoop periodically re-issues Reconcile while stop is open,
// at config.ReconcileInterval (or DefaultReconcileInterval).
func (s *Scheduler) RunReconcileLoop(stop <-chan struct{}) {
	interval := s.config.ReconcileInterval
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Reconcile()
		case <-stop:
			return
		}
	}
}

// FrameworkID returns the framework id assigned at registration, or ""
// before registration has happened. It is held in memory only.
func (s *Scheduler) FrameworkID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameworkID
}

// Connected reports whether the driver is currently connected to a
// Mesos master.
func (s *Scheduler) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}
