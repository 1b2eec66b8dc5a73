package relay

import (
	"context"
	"testing"
	"time"

	"framecast/internal/core/domain"
	"framecast/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (*Service, *fakeTransport) {
	t.Helper()
	transport := &fakeTransport{}
	svc := NewService(DefaultServiceConfig(), transport, ports.NopMetrics{}, zap.NewNop().Sugar())
	return svc, transport
}

func TestServiceAddChannel(t *testing.T) {
	svc, _ := newTestService(t)

	require.NoError(t, svc.AddChannel("v1", domain.KindVideo, "H264", 100))
	require.NoError(t, svc.AddChannel("a1", domain.KindAudio, "opus", 0))

	err := svc.AddChannel("v1", domain.KindVideo, "H264", 100)
	assert.ErrorIs(t, err, domain.ErrDuplicateChannel)

	err = svc.AddChannel("x1", domain.ChannelKind("subtitle"), "", 10)
	assert.ErrorIs(t, err, domain.ErrInvalidKind)

	channels := svc.Channels()
	require.Len(t, channels, 2)
	assert.Equal(t, 100, channels[0].MaxFrames())
	assert.Equal(t, DefaultServiceConfig().DefaultMaxFrames, channels[1].MaxFrames(), "maxFrames <= 0 falls back to the default")
	assert.Equal(t, DefaultServiceConfig().VideoPayloadType, channels[0].PayloadType())
	assert.Equal(t, DefaultServiceConfig().AudioPayloadType, channels[1].PayloadType())
}

func TestServiceCreatePeerWiresExistingChannels(t *testing.T) {
	svc, transport := newTestService(t)

	require.NoError(t, svc.AddChannel("v1", domain.KindVideo, "H264", 10))
	require.NoError(t, svc.AddChannel("d1", domain.KindData, "", 10))

	peerID, err := svc.CreatePeer(context.Background())
	require.NoError(t, err)
	assert.Contains(t, svc.Peers(), peerID)

	session := transport.lastSession()
	require.NotNil(t, session)
	assert.NotNil(t, session.endpoint("v1"))
	assert.NotNil(t, session.endpoint("d1"))

	// Channels added after the peer are not wired retroactively.
	require.NoError(t, svc.AddChannel("a1", domain.KindAudio, "opus", 10))
	assert.Nil(t, session.endpoint("a1"))
}

func TestServiceOfferProducesAnswerAndEvent(t *testing.T) {
	svc, _ := newTestService(t)

	peerID, err := svc.CreatePeer(context.Background())
	require.NoError(t, err)

	answer, err := svc.HandleOfferSync(context.Background(), peerID, "remote-offer-sdp")
	require.NoError(t, err)
	assert.Equal(t, "fake-answer-sdp", answer)

	select {
	case ev := <-svc.Events():
		assert.Equal(t, peerID, ev.PeerID)
		assert.Equal(t, domain.EventLocalDescription, ev.Kind)
		assert.Equal(t, "answer", ev.SDPType)
		assert.Equal(t, "fake-answer-sdp", ev.SDP)
	case <-time.After(time.Second):
		t.Fatal("no local description event emitted")
	}
}

func TestServiceUnknownPeer(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.HandleOfferSync(context.Background(), "peer_missing", "sdp")
	assert.ErrorIs(t, err, domain.ErrPeerNotFound)

	err = svc.HandleCandidate("peer_missing", "candidate:1")
	assert.ErrorIs(t, err, domain.ErrPeerNotFound)

	err = svc.RemovePeer("peer_missing")
	assert.ErrorIs(t, err, domain.ErrPeerNotFound)
}

func TestServiceHandleCandidate(t *testing.T) {
	svc, transport := newTestService(t)

	peerID, err := svc.CreatePeer(context.Background())
	require.NoError(t, err)

	require.NoError(t, svc.HandleCandidate(peerID, "candidate:1 1 udp"))
	require.NoError(t, svc.HandleCandidate(peerID, "candidate:2 1 udp"))

	session := transport.lastSession()
	assert.Equal(t, []string{"candidate:1 1 udp", "candidate:2 1 udp"}, session.candidates)
}

func TestServiceRemovePeerClosesSession(t *testing.T) {
	svc, transport := newTestService(t)

	peerID, err := svc.CreatePeer(context.Background())
	require.NoError(t, err)

	require.NoError(t, svc.RemovePeer(peerID))
	assert.Empty(t, svc.Peers())
	assert.True(t, transport.lastSession().isClosed())
}

func TestServiceCreatePeerTransportFailure(t *testing.T) {
	svc, transport := newTestService(t)
	require.NoError(t, svc.AddChannel("v1", domain.KindVideo, "H264", 10))

	transport.failCreate = true
	_, err := svc.CreatePeer(context.Background())
	require.Error(t, err)
	assert.Empty(t, svc.Peers())
}

func TestServiceCreatePeerAttachFailureClosesSession(t *testing.T) {
	svc, transport := newTestService(t)
	require.NoError(t, svc.AddChannel("v1", domain.KindVideo, "H264", 10))

	transport.failAttach = true
	_, err := svc.CreatePeer(context.Background())
	require.Error(t, err)
	assert.Empty(t, svc.Peers())
	assert.True(t, transport.lastSession().isClosed(), "half-wired session must be torn down")
}

func TestServicePushFrameUnknownChannel(t *testing.T) {
	svc, _ := newTestService(t)

	// Producer-side no-op; must not panic or error.
	svc.PushFrame("ghost", []byte{0x01}, false, 0)
}

func TestServiceEndToEndDelivery(t *testing.T) {
	svc, transport := newTestService(t)
	svc.Start()
	defer svc.Close()

	require.NoError(t, svc.AddChannel("d1", domain.KindData, "", 10))

	_, err := svc.CreatePeer(context.Background())
	require.NoError(t, err)

	ep := transport.lastSession().endpoint("d1")
	require.NotNil(t, ep)
	ep.setOpen(true)

	svc.PushFrame("d1", []byte("live"), false, 1000)

	require.Eventually(t, func() bool {
		pkts := ep.packets()
		return len(pkts) == 1 && string(pkts[0]) == "live"
	}, time.Second, 5*time.Millisecond)
}

func TestServiceCloseIsIdempotent(t *testing.T) {
	svc, transport := newTestService(t)
	svc.Start()

	_, err := svc.CreatePeer(context.Background())
	require.NoError(t, err)

	svc.Close()
	svc.Close()

	assert.Empty(t, svc.Peers())
	assert.True(t, transport.lastSession().isClosed())
}
