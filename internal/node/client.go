package node

import (
	"time"

	nodepkg "github.com/rmacdonaldsmith/quasar-go/pkg/node"
	"github.com/rmacdonaldsmith/quasar-go/pkg/routingtable"
)

// LocalClient is a control API session. Authentication happens in front of
// the node (the JWT layer), so every LocalClient reports as authenticated.
type LocalClient struct {
	*routingtable.LocalSubscriber
	connectedAt time.Time
}

// NewLocalClient creates a client with the default delivery buffer
func NewLocalClient(id string) *LocalClient {
	return &LocalClient{
		LocalSubscriber: routingtable.NewLocalSubscriber(id),
		connectedAt:     time.Now(),
	}
}

// IsAuthenticated always returns true
func (c *LocalClient) IsAuthenticated() bool {
	return true
}

// ConnectedAt returns when this client connected
func (c *LocalClient) ConnectedAt() time.Time {
	return c.connectedAt
}

var _ nodepkg.Client = (*LocalClient)(nil)
