package heartbeat

import (
	"encoding/binary"
	"fmt"
	"io"

	"howett.net/plist"
)

// Commands understood on the heartbeat channel.
const (
	CommandMarco      = "Marco"
	CommandPolo       = "Polo"
	CommandSleepyTime = "SleepyTime"
)

// MaxFrameSize bounds a single property list frame.
const MaxFrameSize = 64 * 1024

// Message is one heartbeat property list.
type Message struct {
	Command            string `plist:"Command"`
	Interval           int    `plist:"Interval,omitempty"`
	SupportsSleepyTime bool   `plist:"SupportsSleepyTime,omitempty"`
}

// Polo returns the reply to a ping.
func Polo() Message {
	return Message{Command: CommandPolo}
}

// Marco returns a ping announcing the given interval in seconds.
func Marco(interval int) Message {
	return Message{Command: CommandMarco, Interval: interval}
}

// WriteFrame encodes msg as a binary property list and writes it with its
// length prefix.
func WriteFrame(w io.Writer, msg Message) error {
	body, err := plist.Marshal(msg, plist.BinaryFormat)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Command, err)
	}
	if len(body) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(body))
	}

	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(body))) //nolint:gosec // bounded by MaxFrameSize
	copy(frame[4:], body)

	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed property list from r.
// An oversized length is fatal for the stream: the frame cannot be skipped
// without risking desync.
func ReadFrame(r io.Reader) (Message, error) {
	var size [4]byte
	if _, err := io.ReadFull(r, size[:]); err != nil {
		return Message{}, fmt.Errorf("read size: %w", err)
	}

	n := binary.BigEndian.Uint32(size[:])
	if n == 0 {
		return Message{}, fmt.Errorf("%w: empty frame", ErrUnexpectedMessage)
	}
	if n > MaxFrameSize {
		return Message{}, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Message{}, fmt.Errorf("read body: %w", err)
	}

	var msg Message
	if _, err := plist.Unmarshal(body, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: decode: %w", ErrUnexpectedMessage, err)
	}
	return msg, nil
}
