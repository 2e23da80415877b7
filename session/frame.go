package session

import "encoding/binary"

// FrameHeaderSize is the size of the outbound frame length prefix in bytes.
//
// The wire is deliberately asymmetric: the server emits length-prefixed
// frames so clients can split the stream cheaply, while the client sends
// headerless concatenated values whose boundaries the reassembler discovers
// by decoding.
const FrameHeaderSize = 4

// encodeFrame serializes message with the codec and wraps it in a frame: a
// 4-byte unsigned big-endian length followed by the encoded payload. The
// frame is returned as one contiguous slice so it can be written atomically.
func encodeFrame(c Codec, message any) ([]byte, error) {
	payload, err := c.Encode(message)
	if err != nil {
		return nil, err
	}

	frame := make([]byte, FrameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(frame[:FrameHeaderSize], uint32(len(payload)))
	copy(frame[FrameHeaderSize:], payload)

	return frame, nil
}
