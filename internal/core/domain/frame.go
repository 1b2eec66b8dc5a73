package domain

type ChannelID string
type PeerID string

// ChannelKind is fixed at channel creation and decides the delivery path:
// media kinds go through the repacketizer, data goes out verbatim.
type ChannelKind string

const (
	KindVideo ChannelKind = "video"
	KindAudio ChannelKind = "audio"
	KindData  ChannelKind = "data"
)

// IsMedia reports whether frames on this kind are sent as RTP.
func (k ChannelKind) IsMedia() bool {
	return k == KindVideo || k == KindAudio
}

// Valid reports whether k is one of the three supported kinds.
func (k ChannelKind) Valid() bool {
	return k == KindVideo || k == KindAudio || k == KindData
}

// EncodedFrame is one already-encoded media or data frame as pushed by the
// producer. The payload is treated as immutable once pushed.
type EncodedFrame struct {
	Data        []byte
	Keyframe    bool
	TimestampUs uint64
}

// H.264 NAL unit types relevant to the keyframe cache.
const (
	NALTypeIDR uint8 = 5
	NALTypeSPS uint8 = 7
	NALTypePPS uint8 = 8
)

// NALType extracts the H.264 NAL unit type from the first payload byte.
// Returns 0 for an empty payload.
func NALType(payload []byte) uint8 {
	if len(payload) == 0 {
		return 0
	}
	return payload[0] & 0x1F
}
