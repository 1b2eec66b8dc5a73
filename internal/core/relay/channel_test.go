package relay

import (
	"testing"

	"framecast/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func videoFrame(nalType uint8, rest ...byte) domain.EncodedFrame {
	data := append([]byte{nalType & 0x1F}, rest...)
	return domain.EncodedFrame{Data: data}
}

func TestChannelBufferDropOldest(t *testing.T) {
	ch := newChannelBuffer("v1", domain.KindVideo, "H264", 3, 109, 1)

	// Push N+k frames, no consumer draining.
	var pushed []domain.EncodedFrame
	for i := 0; i < 5; i++ {
		f := videoFrame(1, byte(i))
		pushed = append(pushed, f)
		ch.Push(f)
	}

	assert.Equal(t, 3, ch.Len())

	// Buffer holds exactly the 3 most recent frames, oldest first.
	for i := 2; i < 5; i++ {
		frame, seq, ok := ch.Front()
		require.True(t, ok)
		assert.Equal(t, pushed[i].Data, frame.Data)
		require.True(t, ch.PopIfFront(seq))
	}
	_, _, ok := ch.Front()
	assert.False(t, ok)
}

func TestChannelBufferEvictionScenario(t *testing.T) {
	// addChannel("v1","video","H264",2); push A, B, C -> buffer [B, C].
	ch := newChannelBuffer("v1", domain.KindVideo, "H264", 2, 109, 1)

	a := videoFrame(1, 'A')
	b := videoFrame(1, 'B')
	c := videoFrame(1, 'C')

	assert.False(t, ch.Push(a))
	assert.False(t, ch.Push(b))
	assert.True(t, ch.Push(c), "third push must evict A")

	front, seq, ok := ch.Front()
	require.True(t, ok)
	assert.Equal(t, b.Data, front.Data)
	require.True(t, ch.PopIfFront(seq))

	front, _, ok = ch.Front()
	require.True(t, ok)
	assert.Equal(t, c.Data, front.Data)
}

func TestChannelBufferParameterSetCaches(t *testing.T) {
	ch := newChannelBuffer("v1", domain.KindVideo, "H264", 2, 109, 1)

	sps := videoFrame(domain.NALTypeSPS, 0x42)
	pps := videoFrame(domain.NALTypePPS, 0x43)

	ch.Push(sps)
	ch.Push(pps)
	assert.False(t, ch.SeenKeyframe())

	// Evict both queued parameter frames with fresh data.
	ch.Push(videoFrame(1, 0x01))
	ch.Push(videoFrame(1, 0x02))

	gotSPS, gotPPS := ch.ParameterSets()
	assert.Equal(t, sps.Data, gotSPS, "SPS cache must survive queue eviction")
	assert.Equal(t, pps.Data, gotPPS, "PPS cache must survive queue eviction")

	ch.Push(videoFrame(domain.NALTypeIDR, 0x99))
	assert.True(t, ch.SeenKeyframe())
}

func TestChannelBufferCacheOverwrite(t *testing.T) {
	ch := newChannelBuffer("v1", domain.KindVideo, "H264", 10, 109, 1)

	ch.Push(videoFrame(domain.NALTypeSPS, 0x01))
	ch.Push(videoFrame(domain.NALTypeSPS, 0x02))

	gotSPS, gotPPS := ch.ParameterSets()
	assert.Equal(t, []byte{domain.NALTypeSPS, 0x02}, gotSPS)
	assert.Nil(t, gotPPS)
}

func TestChannelBufferNoCachesForNonVideo(t *testing.T) {
	ch := newChannelBuffer("a1", domain.KindAudio, "opus", 10, 111, 1)

	// First byte happens to look like an SPS NAL header; audio channels
	// must not interpret it.
	ch.Push(domain.EncodedFrame{Data: []byte{domain.NALTypeSPS, 0xFF}})

	sps, pps := ch.ParameterSets()
	assert.Nil(t, sps)
	assert.Nil(t, pps)
	assert.False(t, ch.SeenKeyframe())
}

func TestChannelBufferPopIfFrontGuardsAgainstEviction(t *testing.T) {
	ch := newChannelBuffer("v1", domain.KindVideo, "H264", 2, 109, 1)

	ch.Push(videoFrame(1, 'A'))
	ch.Push(videoFrame(1, 'B'))

	_, seq, ok := ch.Front()
	require.True(t, ok)

	// Eviction slides the queue under the reader.
	ch.Push(videoFrame(1, 'C'))

	assert.False(t, ch.PopIfFront(seq), "stale sequence must not pop the new front")
	assert.Equal(t, 2, ch.Len())

	front, seq2, ok := ch.Front()
	require.True(t, ok)
	assert.Equal(t, videoFrame(1, 'B').Data, front.Data)
	assert.True(t, ch.PopIfFront(seq2))
}

func TestChannelRegistryDuplicate(t *testing.T) {
	reg := NewChannelRegistry()

	_, err := reg.Create("v1", domain.KindVideo, "H264", 10, 109)
	require.NoError(t, err)

	_, err = reg.Create("v1", domain.KindVideo, "H264", 10, 109)
	assert.ErrorIs(t, err, domain.ErrDuplicateChannel)
}

func TestChannelRegistrySnapshotOrderAndSSRC(t *testing.T) {
	reg := NewChannelRegistry()

	ids := []domain.ChannelID{"video_main", "audio_eng", "d1"}
	kinds := []domain.ChannelKind{domain.KindVideo, domain.KindAudio, domain.KindData}
	for i, id := range ids {
		_, err := reg.Create(id, kinds[i], "", 10, 100)
		require.NoError(t, err)
	}

	snapshot := reg.Snapshot()
	require.Len(t, snapshot, 3)

	seen := make(map[uint32]bool)
	for i, ch := range snapshot {
		assert.Equal(t, ids[i], ch.ID(), "snapshot must keep insertion order")
		assert.False(t, seen[ch.SSRC()], "SSRCs must be unique per channel")
		seen[ch.SSRC()] = true
	}
}
