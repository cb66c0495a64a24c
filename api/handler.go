// Package api implements the control-plane HTTP surface: GET-only
// endpoints that let an operator add, start, stop, remove, and
// reconfigure servers, plus a status dump and the ambient /metrics and
// /healthz probes.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	log "github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/exhibitor-mesos/framework/constraint"
	"github.com/exhibitor-mesos/framework/metrics"
	"github.com/exhibitor-mesos/framework/server"
)

// Scheduler is the subset of *scheduler.Scheduler the API depends on;
// declared here so this package never imports scheduler directly.
type Scheduler interface {
	AddServer(id string, cfg server.Config, constraints map[string][]constraint.Constraint) (*server.Server, error)
	StartServer(id string) *server.Server
	StopServer(id string) *server.Server
	RemoveServer(id string) *server.Server
	ConfigureServer(id string, opts map[string]string) (unknown []string, found bool)
	Get(id string) *server.Server
	All() []*server.Server
}

// LeaderInfo lets the API tell whether this replica is the elected
// leader and, if not, where the leader can be reached. It is satisfied
// by *ha.Elector. A nil LeaderInfo means this replica always answers
// as leader (single-replica deployments, and tests).
type LeaderInfo interface {
	IsLeader() bool
	LeaderAddr() string // "host:port" of the last known leader
}

// Handler serves the control-plane API described in spec.md §6, plus
// /metrics and /healthz.
type Handler struct {
	scheduler Scheduler
	leader    LeaderInfo
	client    *http.Client
}

// New returns a Handler over the given Scheduler, always answering as
// leader. Use WithLeaderInfo to enable read-only proxying on
// non-leader replicas.
func New(s Scheduler) *Handler {
	return &Handler{scheduler: s, client: &http.Client{Timeout: 5 * time.Second}}
}

// WithLeaderInfo attaches HA leadership awareness: on a non-leader
// replica, /api/status proxies to the leader instead of answering
// from (potentially stale) local state.
func (h *Handler) WithLeaderInfo(li LeaderInfo) *Handler {
	h.leader = li
	return h
}

// Mux builds the net/http.ServeMux the caller listens with.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/add", h.handle("add", h.Add))
	mux.HandleFunc("/api/start", h.handle("start", h.Start))
	mux.HandleFunc("/api/stop", h.handle("stop", h.Stop))
	mux.HandleFunc("/api/remove", h.handle("remove", h.Remove))
	mux.HandleFunc("/api/config", h.handle("config", h.Config))
	mux.HandleFunc("/api/status", h.handle("status", h.Status))
	mux.HandleFunc("/healthz", h.healthz)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	return mux
}

func (h *Handler) handle(path string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metrics.APIRequests.WithLabelValues(path).Inc()
		fn(w, r)
	}
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

// serverView is the JSON shape returned for a single server; id-only
// lookups against an unrecognized id synthesize state "Unknown"
// instead of erroring, per spec.md §7.
type serverView struct {
	ID            string            `json:"id"`
	State         string            `json:"state"`
	Hostname      string            `json:"hostname,omitempty"`
	LastError     string            `json:"lastError,omitempty"`
	StopRequested bool              `json:"stopRequested,omitempty"`
	Constraints   map[string]string `json:"constraints,omitempty"`
}

func viewOf(s *server.Server) serverView {
	if s == nil {
		return serverView{State: server.Unknown.String()}
	}
	v := serverView{
		ID:            s.ID,
		State:         s.State.String(),
		Hostname:      s.Config.Hostname,
		LastError:     s.LastError,
		StopRequested: s.StopRequested,
	}
	if len(s.Constraints) > 0 {
		v.Constraints = make(map[string]string, len(s.Constraints))
		for attr, cs := range s.Constraints {
			for _, c := range cs {
				v.Constraints[attr] = c.String()
			}
		}
	}
	return v
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("api: failed to encode response: %v", err)
	}
}

func badRequest(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func requireID(r *http.Request) (string, bool) {
	id := r.URL.Query().Get("id")
	return id, id != ""
}

// Add handles GET /api/add?id=&cpu=&mem=&constraints=&configchangebackoff=
func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(r)
	if !ok {
		badRequest(w, fmt.Errorf("api: missing required parameter id"))
		return
	}

	cfg := server.NewConfig()
	q := r.URL.Query()

	if v := q.Get("cpu"); v != "" {
		cpus, err := strconv.ParseFloat(v, 64)
		if err != nil {
			badRequest(w, fmt.Errorf("api: invalid cpu %q", v))
			return
		}
		cfg.CPUs = cpus
	}
	if v := q.Get("mem"); v != "" {
		mem, err := strconv.ParseFloat(v, 64)
		if err != nil {
			badRequest(w, fmt.Errorf("api: invalid mem %q", v))
			return
		}
		cfg.MemMB = mem
	}
	if v := q.Get("configchangebackoff"); v != "" {
		backoff, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			badRequest(w, fmt.Errorf("api: invalid configchangebackoff %q", v))
			return
		}
		cfg.SharedConfigChangeBackoffMS = backoff
	}

	var constraints map[string][]constraint.Constraint
	if v := q.Get("constraints"); v != "" {
		parsed, err := constraint.Parse(v)
		if err != nil {
			badRequest(w, err)
			return
		}
		constraints = parsed
	}

	srv, err := h.scheduler.AddServer(id, cfg, constraints)
	if err != nil {
		badRequest(w, err)
		return
	}
	writeJSON(w, viewOf(srv))
}

// Start handles GET /api/start?id=
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(r)
	if !ok {
		badRequest(w, fmt.Errorf("api: missing required parameter id"))
		return
	}
	writeJSON(w, viewOf(h.scheduler.StartServer(id)))
}

// Stop handles GET /api/stop?id=
func (h *Handler) Stop(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(r)
	if !ok {
		badRequest(w, fmt.Errorf("api: missing required parameter id"))
		return
	}
	writeJSON(w, viewOf(h.scheduler.StopServer(id)))
}

// Remove handles GET /api/remove?id=
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(r)
	if !ok {
		badRequest(w, fmt.Errorf("api: missing required parameter id"))
		return
	}
	writeJSON(w, viewOf(h.scheduler.RemoveServer(id)))
}

// Config handles GET /api/config?id=&<recognized option keys>
func (h *Handler) Config(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(r)
	if !ok {
		badRequest(w, fmt.Errorf("api: missing required parameter id"))
		return
	}

	opts := make(map[string]string)
	for k, vs := range r.URL.Query() {
		if k == "id" || len(vs) == 0 {
			continue
		}
		opts[k] = vs[0]
	}

	unknown, found := h.scheduler.ConfigureServer(id, opts)
	if len(unknown) > 0 {
		log.Infof("api: ignoring unrecognized config keys for %s: %v", id, unknown)
	}
	if !found {
		writeJSON(w, viewOf(nil))
		return
	}
	writeJSON(w, viewOf(h.scheduler.Get(id)))
}

// Status handles GET /api/status, returning every known server. On a
// non-leader HA replica it proxies the request to the elected leader
// instead of answering from local state, per spec.md §4.8.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if h.leader != nil && !h.leader.IsLeader() {
		h.proxyStatus(w)
		return
	}

	all := h.scheduler.All()
	views := make([]serverView, 0, len(all))
	for _, s := range all {
		views = append(views, viewOf(s))
	}
	writeJSON(w, views)
}

func (h *Handler) proxyStatus(w http.ResponseWriter) {
	addr := h.leader.LeaderAddr()
	if addr == "" {
		http.Error(w, "api: no leader known", http.StatusServiceUnavailable)
		return
	}

	resp, err := h.client.Get("http://" + addr + "/api/status")
	if err != nil {
		log.Errorf("api: proxying /api/status to leader %s failed: %v", addr, err)
		http.Error(w, "api: leader unreachable", http.StatusServiceUnavailable)
		return
	}
	defer resp.Body.Close()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Proxied-From-Leader", addr)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		log.Errorf("api: copying proxied /api/status body: %v", err)
	}
}
