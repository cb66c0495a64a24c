package server

import (
	"encoding/json"

	"github.com/exhibitor-mesos/framework/rng"
)

// Payload is the opaque-to-Mesos JSON document carried as a task's
// Data field; the executor decodes it to know how to configure the
// Exhibitor process it supervises.
type Payload struct {
	ExhibitorConfig           map[string]string `json:"exhibitorConfig"`
	SharedConfigOverride      map[string]string `json:"sharedConfigOverride"`
	ID                        string            `json:"id"`
	Hostname                  string            `json:"hostname"`
	SharedConfigChangeBackoff int64             `json:"sharedConfigChangeBackoff"`
	CPU                       float64           `json:"cpu"`
	Mem                       float64           `json:"mem"`
	Ports                     string            `json:"ports"`
}

// NewPayload builds the wire payload for a server about to be launched
// with the given chosen port.
func NewPayload(id string, cfg Config, port int64) Payload {
	ports := cfg.Ports
	if len(ports) == 0 {
		ports = []rng.Range{rng.Point(port)}
	}
	return Payload{
		ExhibitorConfig:           cfg.ExhibitorOptions,
		SharedConfigOverride:      cfg.SharedOverride,
		ID:                        id,
		Hostname:                  cfg.Hostname,
		SharedConfigChangeBackoff: cfg.SharedConfigChangeBackoffMS,
		CPU:                       cfg.CPUs,
		Mem:                       cfg.MemMB,
		Ports:                     rng.Format(ports),
	}
}

// ToBytes JSON-encodes the payload for use as a TaskInfo's Data field.
func (p Payload) ToBytes() ([]byte, error) {
	return json.Marshal(p)
}
