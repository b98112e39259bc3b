// Package qos turns bandwidth estimates into platform QoS requests.
package qos

import (
	"github.com/smazurov/decon/internal/bandwidth"
)

// Requester abstracts the platform QoS interface across boards.
// Demands are tracked per owner so several pipelines can share one
// interconnect.
type Requester interface {
	// Request replaces owner's demand with est.
	Request(owner string, est bandwidth.Estimate) error

	// Clear drops owner's demand.
	Clear(owner string) error

	// Name identifies the backend.
	Name() string
}
