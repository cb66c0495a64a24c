package eventlog

import (
	"fmt"
	"log"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zkAvailable() bool {
	out, err := exec.Command("bash", "-c", "echo ruok | nc -w1 localhost 2181").Output()
	return err == nil && string(out) == "imok"
}

func TestOpenEnsuresRootDirAndAppendsEvents(t *testing.T) {
	if !zkAvailable() {
		log.Println("zookeeper is not running on localhost:2181, skipping")
		return
	}

	root := fmt.Sprintf("/exhibitor-mesos-test/%d/events", time.Now().UnixNano())
	l, err := Open([]string{"localhost:2181"}, root, 3*time.Second)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Append(Event{
		TimeUnixMS: 1,
		ServerID:   "zk1",
		From:       "Added",
		To:         "Stopped",
		Reason:     "",
	}))
	require.NoError(t, l.Append(Event{
		TimeUnixMS: 2,
		ServerID:   "zk1",
		From:       "Stopped",
		To:         "Staging",
		Reason:     "",
	}))

	children, _, err := l.conn.Children(l.rootDir)
	require.NoError(t, err)
	assert.Len(t, children, 2)
}

func TestOpenRejectsRootDirWithoutLeadingSlash(t *testing.T) {
	// Validated before any ZooKeeper connection is attempted, so this
	// runs regardless of whether a server is available.
	_, err := Open([]string{"localhost:2181"}, "no-leading-slash", 3*time.Second)
	require.Error(t, err)
}
