// Package server models a single supervised ZooKeeper+Exhibitor server:
// its lifecycle, desired configuration, placement constraints, and the
// logic to match it against a Mesos offer and build the resulting task.
package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/gogo/protobuf/proto"
	"github.com/google/uuid"
	mesos "github.com/mesos/mesos-go/api/v0/mesosproto"
	util "github.com/mesos/mesos-go/api/v0/mesosutil"

	"github.com/exhibitor-mesos/framework/constraint"
	"github.com/exhibitor-mesos/framework/rng"
)

// State is a Server's position in the lifecycle described in spec.md
// §3: Added -> Stopped -> Staging -> Running, with Reconciling
// interposed during reconciliation and Unknown reserved for the
// control API's synthetic response to unrecognized ids.
type State int

const (
	Added State = iota
	Stopped
	Staging
	Running
	Reconciling
	Unknown
)

func (s State) String() string {
	switch s {
	case Added:
		return "Added"
	case Stopped:
		return "Stopped"
	case Staging:
		return "Staging"
	case Running:
		return "Running"
	case Reconciling:
		return "Reconciling"
	case Unknown:
		return "Unknown"
	default:
		return "Unknown"
	}
}

// Server is one operator-declared, supervised ZooKeeper node.
type Server struct {
	ID          string
	State       State
	Config      Config
	Constraints map[string][]constraint.Constraint
	LastTask    *Task

	// LastError is the reason attached to the most recent state
	// transition that carried one (a terminal status update's message or
	// a failed launch), surfaced only for operator diagnosis; it never
	// drives a state transition. Placement rejections are only logged.
	LastError string

	// StopRequested marks that an operator-initiated stop is pending a
	// terminal status update; it decides whether that terminal update
	// resolves to Added (operator stop) or Stopped (eligible for the
	// next offer cycle to relaunch).
	StopRequested bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New returns a Server in state Added with the documented defaults:
// hostname=unique constraints and a default Config.
func New(id string, cfg Config, constraints map[string][]constraint.Constraint) *Server {
	if constraints == nil {
		constraints = constraint.Default()
	}
	now := time.Now()
	return &Server{
		ID:          id,
		State:       Added,
		Config:      cfg,
		Constraints: constraints,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// ArtifactURIs are the download locations the executor fetches before
// it can launch: the framework jar, the Exhibitor and ZooKeeper
// distributions, a JDK, and optionally an S3 credentials file and a
// default Exhibitor config, when configured.
type ArtifactURIs struct {
	FrameworkJar  string
	ExhibitorDist string
	ZooKeeperDist string
	JDK           string
	S3Credentials string
	DefaultConfig string
}

// Matches decides whether offer satisfies this server, in the fixed
// order specified: port, cpu, mem, then attribute constraints. It
// returns a human-readable rejection reason and false on the first
// failing check, or ("", true) on success. peerAttr must return the
// ordered history of values other servers have bound to attr,
// excluding this server.
func (s *Server) Matches(offer *mesos.Offer, peerAttr func(attr string) []string) (string, bool) {
	cpus, mem, portRanges := offerScalars(offer)

	if _, ok := rng.FirstFit(s.Config.Ports, portRanges); !ok {
		return fmt.Sprintf("no port available in %s", rng.Format(portRanges)), false
	}

	if cpus < s.Config.CPUs {
		return fmt.Sprintf("cpus %.2f < required %.2f", cpus, s.Config.CPUs), false
	}
	if mem < s.Config.MemMB {
		return fmt.Sprintf("mem %.2f < required %.2f", mem, s.Config.MemMB), false
	}

	attrs := offerAttributes(offer)
	for attr, cs := range s.Constraints {
		value, present := attrs[attr]
		if !present {
			return fmt.Sprintf("attribute %s not offered", attr), false
		}
		history := peerAttr(attr)
		for _, c := range cs {
			if !c.Matches(value, history) {
				return fmt.Sprintf("%s doesn't match %s", attr, c.String()), false
			}
		}
	}

	return "", true
}

// chosenPort re-derives the port picked by Matches; kept separate so
// BuildTask does not need Matches to thread state through a shared
// variable.
func (s *Server) chosenPort(offer *mesos.Offer) (int64, bool) {
	_, _, portRanges := offerScalars(offer)
	return rng.FirstFit(s.Config.Ports, portRanges)
}

// BuildTask mints a task for offer, presupposing Matches already
// succeeded. It mutates s.Config (injecting the chosen port and
// hostname) and returns the Mesos task descriptor plus the Task record
// the scheduler should attach as s.LastTask once the launch is
// submitted.
func (s *Server) BuildTask(offer *mesos.Offer, artifacts ArtifactURIs, jdkOnPath string) (*mesos.TaskInfo, Task, error) {
	port, ok := s.chosenPort(offer)
	if !ok {
		return nil, Task{}, fmt.Errorf("BuildTask called without a matching port")
	}

	taskID := NextTaskID(s.ID)

	s.Config.Hostname = offer.GetHostname()
	s.Config.ExhibitorOptions["port"] = fmt.Sprintf("%d", port)

	payload, err := NewPayload(s.ID, s.Config, port).ToBytes()
	if err != nil {
		return nil, Task{}, err
	}

	uris := []*mesos.CommandInfo_URI{
		newURI(artifacts.FrameworkJar),
		newURI(artifacts.ExhibitorDist),
		newURI(artifacts.ZooKeeperDist),
		newURI(artifacts.JDK),
	}
	if artifacts.S3Credentials != "" {
		uris = append(uris, newURI(artifacts.S3Credentials))
	}
	if artifacts.DefaultConfig != "" {
		uris = append(uris, newURI(artifacts.DefaultConfig))
	}

	executor := &mesos.ExecutorInfo{
		ExecutorId: &mesos.ExecutorID{Value: proto.String(s.ID)},
		Name:       proto.String("exhibitor-" + s.ID),
		Command: &mesos.CommandInfo{
			Shell: proto.Bool(true),
			Value: proto.String(fmt.Sprintf("export PATH=%s/bin:$PATH && ./executor", jdkOnPath)),
			Uris:  uris,
		},
	}

	taskInfo := &mesos.TaskInfo{
		Name:    proto.String("exhibitor-" + s.ID),
		TaskId:  &mesos.TaskID{Value: proto.String(taskID)},
		SlaveId: offer.GetSlaveId(),
		Resources: []*mesos.Resource{
			util.NewScalarResource("cpus", s.Config.CPUs),
			util.NewScalarResource("mem", s.Config.MemMB),
			util.NewRangesResource("ports", []*mesos.Value_Range{util.NewValueRange(uint64(port), uint64(port))}),
		},
		Executor: executor,
		Data:     payload,
	}

	attrs := offerAttributes(offer)
	task := Task{
		TaskID:     taskID,
		SlaveID:    offer.GetSlaveId().GetValue(),
		ExecutorID: s.ID,
		Attributes: attrs,
	}

	return taskInfo, task, nil
}

// NextTaskID mints a fresh task id of the form
// "exhibitor-<serverId>-<uuid>". id must not contain '-'.
func NextTaskID(id string) string {
	return fmt.Sprintf("exhibitor-%s-%s", id, uuid.New().String())
}

// IDFromTaskID recovers the server id from a task id minted by
// NextTaskID; it is the authoritative back-link from task to server.
func IDFromTaskID(taskID string) (string, bool) {
	parts := strings.SplitN(taskID, "-", 3)
	if len(parts) != 3 || parts[0] != "exhibitor" {
		return "", false
	}
	return parts[1], true
}

func newURI(value string) *mesos.CommandInfo_URI {
	return &mesos.CommandInfo_URI{Value: proto.String(value)}
}

func offerScalars(offer *mesos.Offer) (cpus, mem float64, ports []rng.Range) {
	ports = make([]rng.Range, 0)
	for _, res := range offer.GetResources() {
		switch res.GetName() {
		case "cpus":
			cpus = res.GetScalar().GetValue()
		case "mem":
			mem = res.GetScalar().GetValue()
		case "ports":
			for _, r := range res.GetRanges().GetRange() {
				ports = append(ports, rng.New(int64(r.GetBegin()), int64(r.GetEnd())))
			}
		}
	}
	return cpus, mem, ports
}

func offerAttributes(offer *mesos.Offer) map[string]string {
	attrs := map[string]string{"hostname": offer.GetHostname()}
	for _, a := range offer.GetAttributes() {
		if a.GetType() == mesos.Value_TEXT {
			attrs[a.GetName()] = a.GetText().GetValue()
		}
	}
	return attrs
}
