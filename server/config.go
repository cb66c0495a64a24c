package server

import "github.com/exhibitor-mesos/framework/rng"

const (
	// DefaultCPUs is the CPU share reserved for a server when the
	// operator does not specify one.
	DefaultCPUs = 0.2
	// DefaultMemMB is the memory, in MiB, reserved for a server when
	// the operator does not specify one.
	DefaultMemMB = 256.0
	// DefaultSharedConfigChangeBackoffMS is how long the executor
	// should wait, in milliseconds, between successive shared-config
	// pushes when the operator does not specify a backoff.
	DefaultSharedConfigChangeBackoffMS = int64(10000)
)

// Config is a single server's desired configuration: resources, ports,
// and the passthrough options forwarded to the Exhibitor supervisor
// running inside the executor.
type Config struct {
	// ExhibitorOptions is forwarded verbatim to the supervised
	// Exhibitor process (configtype, zkconfigconnect, ...).
	ExhibitorOptions map[string]string `json:"exhibitorOptions"`
	// SharedOverride is merged into the ensemble-wide shared config the
	// executor pushes once its Exhibitor instance is up.
	SharedOverride map[string]string `json:"sharedOverride"`

	CPUs float64     `json:"cpus"`
	MemMB float64    `json:"mem"`
	Ports []rng.Range `json:"ports"`

	SharedConfigChangeBackoffMS int64 `json:"sharedConfigChangeBackoff"`

	// Hostname is unset until the server is placed; buildTask fills it
	// in from the accepted offer.
	Hostname string `json:"hostname"`
}

// NewConfig returns a Config populated with the documented defaults:
// cpus=0.2, mem=256, an empty (any-port) port list, and a 10s shared
// config change backoff.
func NewConfig() Config {
	return Config{
		ExhibitorOptions:            make(map[string]string),
		SharedOverride:              make(map[string]string),
		CPUs:                        DefaultCPUs,
		MemMB:                       DefaultMemMB,
		Ports:                       make([]rng.Range, 0),
		SharedConfigChangeBackoffMS: DefaultSharedConfigChangeBackoffMS,
	}
}

// Clone returns a deep-enough copy of c so that a builder mutating the
// returned value (e.g. injecting the chosen port) never aliases the
// caller's maps.
func (c Config) Clone() Config {
	clone := c
	clone.ExhibitorOptions = make(map[string]string, len(c.ExhibitorOptions))
	for k, v := range c.ExhibitorOptions {
		clone.ExhibitorOptions[k] = v
	}
	clone.SharedOverride = make(map[string]string, len(c.SharedOverride))
	for k, v := range c.SharedOverride {
		clone.SharedOverride[k] = v
	}
	clone.Ports = append([]rng.Range(nil), c.Ports...)
	return clone
}

// recognizedExhibitorKeys is the set of exhibitor option keys the
// control API accepts through /api/config.
var recognizedExhibitorKeys = map[string]bool{
	"configtype":       true,
	"zkconfigconnect":  true,
	"zkconfigzpath":    true,
	"s3credentials":    true,
	"s3region":         true,
	"s3config":         true,
	"s3configprefix":   true,
}

// recognizedSharedOverrideKeys is the set of shared-config override
// keys the control API accepts through /api/config.
var recognizedSharedOverrideKeys = map[string]bool{
	"zookeeper-install-directory": true,
	"zookeeper-data-directory":    true,
}

// MergeOptions merges recognized keys from opts into the matching map
// (ExhibitorOptions or SharedOverride) and returns the keys that were
// not recognized, so the caller can log-and-ignore them.
func (c *Config) MergeOptions(opts map[string]string) (unknown []string) {
	for k, v := range opts {
		switch {
		case recognizedExhibitorKeys[k]:
			c.ExhibitorOptions[k] = v
		case recognizedSharedOverrideKeys[k]:
			c.SharedOverride[k] = v
		default:
			unknown = append(unknown, k)
		}
	}
	return unknown
}
