// Package bus is the process-wide publish/subscribe channel between the
// HTTP write path and the WebSocket gateway.
//
// Delivery is fire-and-forget: subscribers that are not connected at publish
// time never see the message, and there is no ordering across subscribers.
package bus

import (
	"context"
	"errors"
)

// Channel identifies a topic on the bus.
type Channel string

const (
	ChannelUser    Channel = "application:users"
	ChannelMessage Channel = "application:messages"
)

// Channels lists every topic the application uses.
var Channels = []Channel{ChannelUser, ChannelMessage}

// Valid reports whether c is one of the known topics.
func (c Channel) Valid() bool {
	return c == ChannelUser || c == ChannelMessage
}

func (c Channel) String() string {
	return string(c)
}

// ErrClosed is returned by operations on a closed bus.
var ErrClosed = errors.New("bus closed")

// Message is one delivery on a subscription stream.
type Message struct {
	Channel Channel
	Payload []byte
}

// Publisher publishes payloads to a channel.
type Publisher interface {
	Publish(ctx context.Context, channel Channel, payload []byte) error
}

// Subscriber opens a stream of deliveries for the given channels. The stream
// is closed when ctx is done or the bus is closed.
type Subscriber interface {
	Subscribe(ctx context.Context, channels ...Channel) (<-chan Message, error)
}

// Bus combines Publisher and Subscriber.
type Bus interface {
	Publisher
	Subscriber
	Close() error
}

// streamBuffer is the capacity of every subscription stream.
const streamBuffer = 256
