package relay

import (
	"encoding/binary"

	"framecast/internal/core/domain"
)

const rtpHeaderSize = 12

// Repacketize turns one encoded frame into the wire packets sent to every
// subscribed peer. Frames arrive already carrying the RTP header shape;
// this only corrects the negotiated payload type (preserving the inbound
// marker bit) and stamps the channel's fixed SSRC. For an IDR frame with
// both parameter sets cached it prepends SPS and PPS as their own packets,
// since there is no out-of-band signaling path and decoders need in-band
// parameter sets ahead of each keyframe.
//
// Pure transform: inputs are never mutated, every packet is a fresh copy,
// and identical inputs yield identical output.
func Repacketize(frame domain.EncodedFrame, sps, pps []byte, payloadType uint8, ssrc uint32) [][]byte {
	if domain.NALType(frame.Data) == domain.NALTypeIDR && sps != nil && pps != nil {
		return [][]byte{
			patchPacket(sps, payloadType, ssrc),
			patchPacket(pps, payloadType, ssrc),
			patchPacket(frame.Data, payloadType, ssrc),
		}
	}
	return [][]byte{patchPacket(frame.Data, payloadType, ssrc)}
}

// patchPacket rewrites byte 1 to (marker | payloadType), keeping bit 7
// exactly as received, and writes the SSRC at bytes 8..11. Packets too
// short for a field are passed through with that field untouched.
func patchPacket(src []byte, payloadType uint8, ssrc uint32) []byte {
	out := make([]byte, len(src))
	copy(out, src)
	if len(out) >= 2 {
		out[1] = out[1]&0x80 | payloadType&0x7F
	}
	if len(out) >= rtpHeaderSize {
		binary.BigEndian.PutUint32(out[8:12], ssrc)
	}
	return out
}
