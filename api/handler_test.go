package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exhibitor-mesos/framework/constraint"
	"github.com/exhibitor-mesos/framework/server"
)

// fakeScheduler is a minimal in-memory stand-in satisfying Scheduler,
// so this package's tests never depend on the real driver/cluster.
type fakeScheduler struct {
	servers map[string]*server.Server
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{servers: make(map[string]*server.Server)}
}

func (f *fakeScheduler) AddServer(id string, cfg server.Config, constraints map[string][]constraint.Constraint) (*server.Server, error) {
	if _, exists := f.servers[id]; exists {
		return nil, assert.AnError
	}
	s := server.New(id, cfg, constraints)
	f.servers[id] = s
	return s, nil
}

func (f *fakeScheduler) StartServer(id string) *server.Server {
	s := f.servers[id]
	if s != nil && s.State == server.Added {
		s.State = server.Stopped
	}
	return s
}

func (f *fakeScheduler) StopServer(id string) *server.Server {
	s := f.servers[id]
	if s != nil {
		s.StopRequested = true
	}
	return s
}

func (f *fakeScheduler) RemoveServer(id string) *server.Server {
	s := f.servers[id]
	delete(f.servers, id)
	return s
}

func (f *fakeScheduler) ConfigureServer(id string, opts map[string]string) ([]string, bool) {
	s := f.servers[id]
	if s == nil {
		return nil, false
	}
	return s.Config.MergeOptions(opts), true
}

func (f *fakeScheduler) Get(id string) *server.Server { return f.servers[id] }

func (f *fakeScheduler) All() []*server.Server {
	all := make([]*server.Server, 0, len(f.servers))
	for _, s := range f.servers {
		all = append(all, s)
	}
	return all
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) serverView {
	t.Helper()
	var v serverView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestAddThenStatus(t *testing.T) {
	h := New(newFakeScheduler())
	mux := h.Mux()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/add?id=zk1&cpu=0.5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeView(t, rec)
	assert.Equal(t, "zk1", view.ID)
	assert.Equal(t, "Added", view.State)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var all []serverView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 1)
	assert.Equal(t, "zk1", all[0].ID)
}

func TestAddMissingIDIsBadRequest(t *testing.T) {
	h := New(newFakeScheduler())
	rec := httptest.NewRecorder()
	h.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/add", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStopOnUnknownIDReturnsSyntheticUnknown(t *testing.T) {
	h := New(newFakeScheduler())
	rec := httptest.NewRecorder()
	h.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stop?id=nope", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeView(t, rec)
	assert.Equal(t, "Unknown", view.State)
}

func TestStartFlipsAddedToStopped(t *testing.T) {
	fs := newFakeScheduler()
	h := New(fs)
	mux := h.Mux()

	mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/add?id=zk1", nil))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/start?id=zk1", nil))
	view := decodeView(t, rec)
	assert.Equal(t, "Stopped", view.State)
}

func TestConfigMergesRecognizedKeys(t *testing.T) {
	fs := newFakeScheduler()
	h := New(fs)
	mux := h.Mux()

	mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/add?id=zk1", nil))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/config?id=zk1&configtype=s3", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "s3", fs.servers["zk1"].Config.ExhibitorOptions["configtype"])
}

type fakeLeaderInfo struct {
	isLeader bool
	addr     string
}

func (f fakeLeaderInfo) IsLeader() bool    { return f.isLeader }
func (f fakeLeaderInfo) LeaderAddr() string { return f.addr }

func TestStatusProxiesToLeaderWhenNotLeader(t *testing.T) {
	leaderMux := http.NewServeMux()
	leaderMux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"zk1","state":"Running"}]`))
	})
	leader := httptest.NewServer(leaderMux)
	defer leader.Close()

	h := New(newFakeScheduler()).WithLeaderInfo(fakeLeaderInfo{isLeader: false, addr: leader.Listener.Addr().String()})

	rec := httptest.NewRecorder()
	h.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "zk1")
	assert.NotEmpty(t, rec.Header().Get("X-Proxied-From-Leader"))
}

func TestStatusAnswersLocallyWhenLeader(t *testing.T) {
	fs := newFakeScheduler()
	h := New(fs).WithLeaderInfo(fakeLeaderInfo{isLeader: true})
	fs.AddServer("zk1", server.NewConfig(), nil)

	rec := httptest.NewRecorder()
	h.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Proxied-From-Leader"))
}

func TestHealthz(t *testing.T) {
	h := New(newFakeScheduler())
	rec := httptest.NewRecorder()
	h.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
