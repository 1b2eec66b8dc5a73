package ports

import "framecast/internal/core/domain"

// MetricsSink decouples the relay core from the metrics backend.
type MetricsSink interface {
	FramePushed(channelID domain.ChannelID, kind domain.ChannelKind, bytes int)
	FrameEvicted(channelID domain.ChannelID)
	FrameDelivered(channelID domain.ChannelID, peers int)
	SendFailure(channelID domain.ChannelID)
	QueueDepth(channelID domain.ChannelID, depth int)
	KeyframeRequested()
	PeerAdded()
	PeerRemoved()
}

// NopMetrics is a MetricsSink that discards everything. Used by tests and
// as the default when monitoring is disabled.
type NopMetrics struct{}

func (NopMetrics) FramePushed(domain.ChannelID, domain.ChannelKind, int) {}
func (NopMetrics) FrameEvicted(domain.ChannelID)                         {}
func (NopMetrics) FrameDelivered(domain.ChannelID, int)                  {}
func (NopMetrics) SendFailure(domain.ChannelID)                          {}
func (NopMetrics) QueueDepth(domain.ChannelID, int)                      {}
func (NopMetrics) KeyframeRequested()                                    {}
func (NopMetrics) PeerAdded()                                            {}
func (NopMetrics) PeerRemoved()                                          {}
