// Package gochannel provides the in-memory pub/sub used for local runs and tests.
package gochannel

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type Config struct {
	// Buffer is the size of each subscriber's output channel.
	Buffer int64
	// Persistent keeps published messages for subscribers that join later.
	Persistent bool
	// Blocking makes Publish wait until every subscriber acked the message.
	Blocking bool
}

// DefaultConfig suits a single process streaming run events to local handlers.
func DefaultConfig() Config {
	return Config{Buffer: 1000}
}

// CreateChannel returns one GoChannel instance serving as both publisher and subscriber.
func CreateChannel(logger watermill.LoggerAdapter, cfg Config) (*gochannel.GoChannel, *gochannel.GoChannel, error) {
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            cfg.Buffer,
			Persistent:                     cfg.Persistent,
			BlockPublishUntilSubscriberAck: cfg.Blocking,
		},
		logger,
	)

	return pubSub, pubSub, nil
}
