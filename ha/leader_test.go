package ha

import (
	"log"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusUpdater struct {
	current           Replica
	leaderElectedCall int
	leaderLostCall    int
}

func (u *statusUpdater) LeaderElected(r Replica) {
	u.current = r
	u.leaderElectedCall++
}

func (u *statusUpdater) LeaderLost(Replica) {
	u.current = Replica{}
	u.leaderLostCall++
}

func zkAvailable() bool {
	out, err := exec.Command("bash", "-c", "echo ruok | nc -w1 localhost 2181").Output()
	return err == nil && string(out) == "imok"
}

func TestElectorPromotesFirstReplica(t *testing.T) {
	if !zkAvailable() {
		log.Println("zookeeper is not running on localhost:2181, skipping")
		return
	}

	updater := &statusUpdater{}
	leader := Replica{Host: "leader", Port: 3333}

	elector, err := New([]string{"localhost:2181"}, "test-cluster", leader, updater, 3*time.Second)
	require.NoError(t, err)
	defer elector.Close()

	require.NoError(t, elector.Run())
	time.Sleep(500 * time.Millisecond)

	assert.Equal(t, leader, updater.current)
	assert.Equal(t, 1, updater.leaderElectedCall)
}

func TestLeaderAddrAndIsLeaderReflectCachedState(t *testing.T) {
	self := Replica{Host: "h1", Port: 9091}
	e := &Elector{self: self}

	assert.False(t, e.IsLeader())
	assert.Equal(t, "", e.LeaderAddr())

	e.leader = self
	assert.True(t, e.IsLeader())
	assert.Equal(t, "h1:9091", e.LeaderAddr())

	e.leader = Replica{Host: "h2", Port: 9091}
	assert.False(t, e.IsLeader())
	assert.Equal(t, "h2:9091", e.LeaderAddr())
}

func TestElectorFollowerObservesExistingLeader(t *testing.T) {
	if !zkAvailable() {
		log.Println("zookeeper is not running on localhost:2181, skipping")
		return
	}

	updater := &statusUpdater{}
	leader := Replica{Host: "leader", Port: 3333}
	le, err := New([]string{"localhost:2181"}, "test-cluster-2", leader, updater, 3*time.Second)
	require.NoError(t, err)
	defer le.Close()
	require.NoError(t, le.Run())
	time.Sleep(200 * time.Millisecond)

	follower := Replica{Host: "follower", Port: 3334}
	le2, err := New([]string{"localhost:2181"}, "test-cluster-2", follower, updater, 3*time.Second)
	require.NoError(t, err)
	defer le2.Close()
	require.NoError(t, le2.Run())

	assert.Equal(t, leader, updater.current)
	assert.Equal(t, 2, updater.leaderElectedCall)
}
