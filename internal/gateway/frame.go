package gateway

import (
	"bytes"
	"fmt"

	"go-voicechat/internal/bus"
)

// FrameSeparator joins the channel name and the JSON body of a server frame.
const FrameSeparator = "---"

// EncodeFrame renders "<channel>---<payload>".
func EncodeFrame(channel bus.Channel, payload []byte) []byte {
	out := make([]byte, 0, len(channel)+len(FrameSeparator)+len(payload))
	out = append(out, channel...)
	out = append(out, FrameSeparator...)
	return append(out, payload...)
}

// DecodeFrame splits a server frame at the first separator.
func DecodeFrame(frame []byte) (bus.Channel, []byte, error) {
	i := bytes.Index(frame, []byte(FrameSeparator))
	if i < 0 {
		return "", nil, fmt.Errorf("frame without separator: %q", frame)
	}
	ch := bus.Channel(frame[:i])
	if !ch.Valid() {
		return "", nil, fmt.Errorf("frame on unknown channel %q", ch)
	}
	return ch, frame[i+len(FrameSeparator):], nil
}
