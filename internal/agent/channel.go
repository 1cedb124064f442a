package agent

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrChannelClosed is returned by Send once the channel has been closed.
	ErrChannelClosed = errors.New("agent channel closed")
	// ErrUnsupportedMessage is returned when the receiver does not handle a message kind.
	ErrUnsupportedMessage = errors.New("unsupported message")
)

// Message is the closed set of messages an agent channel carries.
type Message interface {
	isMessage()
}

// Correction tells an analyst to adjust the next prompt it builds.
type Correction struct {
	Text string
}

// Chat is a follow-up question about a request's results.
type Chat struct {
	RequestID string
	Query     string
}

func (Correction) isMessage() {}
func (Chat) isMessage()       {}

// Reply is the closed set of replies to a Message.
type Reply interface {
	isReply()
}

// Ack confirms a Correction has been stored.
type Ack struct{}

// ChatAnswer answers a Chat.
type ChatAnswer struct {
	Answer string
}

func (Ack) isReply()        {}
func (ChatAnswer) isReply() {}

type envelope struct {
	msg   Message
	reply chan result
}

type result struct {
	reply Reply
	err   error
}

// Channel is a request/reply mailbox owned by one receiver goroutine.
type Channel struct {
	inbox     chan envelope
	done      chan struct{}
	closeOnce sync.Once
}

func newChannel() *Channel {
	return &Channel{
		inbox: make(chan envelope),
		done:  make(chan struct{}),
	}
}

// Send delivers msg and waits for the receiver's reply.
func (c *Channel) Send(ctx context.Context, msg Message) (Reply, error) {
	if c.Closed() {
		return nil, ErrChannelClosed
	}
	env := envelope{msg: msg, reply: make(chan result, 1)}

	select {
	case c.inbox <- env:
	case <-c.done:
		return nil, ErrChannelClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-env.reply:
		return r.reply, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the channel. Pending and future sends fail with ErrChannelClosed.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *Channel) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// serve runs handle for each message until the channel is closed.
func (c *Channel) serve(handle func(Message) (Reply, error)) {
	for {
		select {
		case <-c.done:
			return
		case env := <-c.inbox:
			// Close may have raced the receive
			if c.Closed() {
				env.reply <- result{err: ErrChannelClosed}
				return
			}
			reply, err := handle(env.msg)
			env.reply <- result{reply: reply, err: err}
		}
	}
}
