package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"framecast/internal/core/domain"
	"framecast/internal/core/relay"
	"framecast/pkg/tracing"

	"github.com/gin-gonic/gin"
)

// RelayHandler exposes the relay's control and ingest surface over HTTP.
// The producer is trusted; frames arrive as raw request bodies.
type RelayHandler struct {
	relay *relay.Service
}

func NewRelayHandler(relayService *relay.Service) *RelayHandler {
	return &RelayHandler{relay: relayService}
}

func (h *RelayHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.POST("/channels", h.CreateChannel)
		api.GET("/channels", h.ListChannels)
		api.POST("/channels/:id/frames", h.PushFrame)

		api.POST("/peers", h.CreatePeer)
		api.POST("/peers/:id/offer", h.HandleOffer)
		api.POST("/peers/:id/candidate", h.HandleCandidate)
		api.DELETE("/peers/:id", h.RemovePeer)
	}
}

func (h *RelayHandler) CreateChannel(c *gin.Context) {
	var req struct {
		ID        string `json:"id" binding:"required,min=1,max=100"`
		Kind      string `json:"kind" binding:"required"`
		Codec     string `json:"codec"`
		MaxFrames int    `json:"max_frames" binding:"min=0,max=100000"`
	}

	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.relay.AddChannel(domain.ChannelID(req.ID), domain.ChannelKind(req.Kind), req.Codec, req.MaxFrames)
	switch {
	case errors.Is(err, domain.ErrDuplicateChannel):
		c.JSON(http.StatusConflict, gin.H{"error": "channel already exists"})
	case errors.Is(err, domain.ErrInvalidKind):
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be video, audio or data"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusCreated, gin.H{"channel_id": req.ID})
	}
}

func (h *RelayHandler) ListChannels(c *gin.Context) {
	type channelInfo struct {
		ID         string `json:"id"`
		Kind       string `json:"kind"`
		Codec      string `json:"codec"`
		MaxFrames  int    `json:"max_frames"`
		QueueDepth int    `json:"queue_depth"`
		SSRC       uint32 `json:"ssrc"`
	}

	channels := h.relay.Channels()
	out := make([]channelInfo, 0, len(channels))
	for _, ch := range channels {
		out = append(out, channelInfo{
			ID:         string(ch.ID()),
			Kind:       string(ch.Kind()),
			Codec:      ch.Codec(),
			MaxFrames:  ch.MaxFrames(),
			QueueDepth: ch.Len(),
			SSRC:       ch.SSRC(),
		})
	}

	c.JSON(http.StatusOK, gin.H{"channels": out})
}

// PushFrame ingests one encoded frame: raw payload in the body, keyframe
// flag and capture timestamp (microseconds) as query parameters. Unknown
// channels are accepted and dropped, matching the push-always-succeeds
// contract toward the producer.
func (h *RelayHandler) PushFrame(c *gin.Context) {
	channelID := domain.ChannelID(c.Param("id"))

	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	keyframe := c.Query("keyframe") == "true"
	timestampUs, _ := strconv.ParseUint(c.Query("ts"), 10, 64)

	h.relay.PushFrame(channelID, data, keyframe, timestampUs)
	c.JSON(http.StatusAccepted, gin.H{"channel_id": channelID})
}

func (h *RelayHandler) CreatePeer(c *gin.Context) {
	ctx, span := tracing.TraceSignaling(c.Request.Context(), "create_peer", "")
	defer span.End()

	peerID, err := h.relay.CreatePeer(ctx)
	if err != nil {
		tracing.RecordError(ctx, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"peer_id": peerID})
}

// HandleOffer applies a remote offer and returns the answer SDP in the
// response, the synchronous variant of the event-driven flow.
func (h *RelayHandler) HandleOffer(c *gin.Context) {
	peerID := domain.PeerID(c.Param("id"))

	var req struct {
		SDP string `json:"sdp" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, span := tracing.TraceSignaling(c.Request.Context(), "offer", string(peerID))
	defer span.End()

	answer, err := h.relay.HandleOfferSync(ctx, peerID, req.SDP)
	if err != nil {
		tracing.RecordError(ctx, err)
		if errors.Is(err, domain.ErrPeerNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "peer not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"sdp_type": "answer", "sdp": answer})
}

func (h *RelayHandler) HandleCandidate(c *gin.Context) {
	peerID := domain.PeerID(c.Param("id"))

	var req struct {
		Candidate string `json:"candidate" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.relay.HandleCandidate(peerID, req.Candidate); err != nil {
		if errors.Is(err, domain.ErrPeerNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "peer not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"peer_id": peerID})
}

func (h *RelayHandler) RemovePeer(c *gin.Context) {
	peerID := domain.PeerID(c.Param("id"))

	if err := h.relay.RemovePeer(peerID); err != nil {
		if errors.Is(err, domain.ErrPeerNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "peer not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"peer_id": peerID})
}

// Health reports liveness plus basic relay state.
func (h *RelayHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"channels": len(h.relay.Channels()),
		"peers":    len(h.relay.Peers()),
	})
}
