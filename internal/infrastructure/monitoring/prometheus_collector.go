package monitoring

import (
	"framecast/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector implements ports.MetricsSink on promauto metrics.
type PrometheusCollector struct {
	peersConnected    prometheus.Gauge
	keyframeRequests  prometheus.Counter
	framesPushedTotal *prometheus.CounterVec
	framesEvicted     *prometheus.CounterVec
	framesDelivered   *prometheus.CounterVec
	sendFailures      *prometheus.CounterVec
	pushedBytes       *prometheus.CounterVec
	queueDepth        *prometheus.GaugeVec
	fanoutSize        *prometheus.HistogramVec
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		peersConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "framecast_peers_connected",
			Help: "Number of currently connected peers",
		}),

		keyframeRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "framecast_keyframe_requests_total",
			Help: "Total number of PLI keyframe requests received from peers",
		}),

		framesPushedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "framecast_frames_pushed_total",
			Help: "Total number of frames pushed by the producer",
		}, []string{"channel_id", "kind"}),

		framesEvicted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "framecast_frames_evicted_total",
			Help: "Total number of frames dropped by the drop-oldest policy",
		}, []string{"channel_id"}),

		framesDelivered: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "framecast_frames_delivered_total",
			Help: "Total number of frames delivered to at least one peer",
		}, []string{"channel_id"}),

		sendFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "framecast_send_failures_total",
			Help: "Total number of per-peer transport send failures",
		}, []string{"channel_id"}),

		pushedBytes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "framecast_pushed_bytes_total",
			Help: "Total payload bytes pushed by the producer",
		}, []string{"channel_id"}),

		queueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "framecast_channel_queue_depth",
			Help: "Current number of frames buffered per channel",
		}, []string{"channel_id"}),

		fanoutSize: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "framecast_delivery_fanout_peers",
			Help:    "Number of peers reached per delivered frame",
			Buckets: []float64{1, 2, 4, 8, 16, 32},
		}, []string{"channel_id"}),
	}
}

func (c *PrometheusCollector) FramePushed(channelID domain.ChannelID, kind domain.ChannelKind, bytes int) {
	c.framesPushedTotal.WithLabelValues(string(channelID), string(kind)).Inc()
	c.pushedBytes.WithLabelValues(string(channelID)).Add(float64(bytes))
}

func (c *PrometheusCollector) FrameEvicted(channelID domain.ChannelID) {
	c.framesEvicted.WithLabelValues(string(channelID)).Inc()
}

func (c *PrometheusCollector) FrameDelivered(channelID domain.ChannelID, peers int) {
	c.framesDelivered.WithLabelValues(string(channelID)).Inc()
	c.fanoutSize.WithLabelValues(string(channelID)).Observe(float64(peers))
}

func (c *PrometheusCollector) SendFailure(channelID domain.ChannelID) {
	c.sendFailures.WithLabelValues(string(channelID)).Inc()
}

func (c *PrometheusCollector) QueueDepth(channelID domain.ChannelID, depth int) {
	c.queueDepth.WithLabelValues(string(channelID)).Set(float64(depth))
}

func (c *PrometheusCollector) KeyframeRequested() {
	c.keyframeRequests.Inc()
}

func (c *PrometheusCollector) PeerAdded() {
	c.peersConnected.Inc()
}

func (c *PrometheusCollector) PeerRemoved() {
	c.peersConnected.Dec()
}
