package channel

import (
	"liqfeed/internal/channel/liq"
)

// Channels groups the buffers shared between the registry and its consumers.
type Channels struct {
	Liq *liq.Channels
}

func NewChannels(tradeBufferSize int) *Channels {
	return &Channels{
		Liq: liq.NewChannels(tradeBufferSize),
	}
}

func (c *Channels) Close() {
	if c.Liq != nil {
		c.Liq.Close()
	}
}
