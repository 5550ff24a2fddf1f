package transport

import "context"

// Pipe is an in-memory Channel. The tracker side uses it as a Channel; the
// other side injects inbound messages with Deliver and reads what the
// tracker sent from Sent.
type Pipe struct {
	in  *inbox
	out chan Message
}

// NewPipe creates a pipe with the given buffer size in each direction.
func NewPipe(buffer int) *Pipe {
	return &Pipe{
		in:  newInbox(buffer),
		out: make(chan Message, buffer),
	}
}

// Messages implements Channel.
func (p *Pipe) Messages() <-chan Message {
	return p.in.ch
}

// Send implements Channel.
func (p *Pipe) Send(ctx context.Context, m Message) error {
	if p.in.isClosed() {
		return ErrClosed
	}
	select {
	case p.out <- m:
		return nil
	case <-p.in.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements Channel.
func (p *Pipe) Close() error {
	p.in.close()
	return nil
}

// Deliver pushes an inbound message as if the server had sent it.
func (p *Pipe) Deliver(ctx context.Context, m Message) error {
	if !p.in.deliver(ctx, m) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrClosed
	}
	return nil
}

// Sent exposes the messages written with Send.
func (p *Pipe) Sent() <-chan Message {
	return p.out
}
