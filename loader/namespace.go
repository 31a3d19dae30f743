package loader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/tickhost"
	"github.com/wippyai/tickhost/engine"
	"github.com/wippyai/tickhost/errors"
)

// Namespace is a loaded module's entry points.
// Calls are serialized; the underlying instance is single-threaded.
type Namespace struct {
	engine       *engine.WazeroEngine
	instance     *engine.WazeroInstance
	abi          *abi
	logger       *zap.Logger
	source       string
	exports      []string
	pollInterval time.Duration
	mu           sync.Mutex
	closed       bool
}

// Source describes where the module was loaded from.
func (n *Namespace) Source() string {
	return n.source
}

// ExportNames returns the sorted names of the module's exported functions.
func (n *Namespace) ExportNames() []string {
	return n.exports
}

// Polling reports whether creation goes through the poll export.
func (n *Namespace) Polling() bool {
	return n.abi.hasPolling
}

func (n *Namespace) call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil, fmt.Errorf("call %s: namespace closed", name)
	}
	return n.instance.Call(ctx, name, params...)
}

// CreateApplication calls the create export. Modules exporting the poll
// entry point get a Deferred creation settled by polling.
func (n *Namespace) CreateApplication(ctx context.Context) (tickhost.Creation, error) {
	name := n.abi.exports.Create
	res, err := n.call(ctx, name)
	if err != nil {
		return tickhost.Creation{}, errors.Startup(errors.KindCreateFailed, "call "+name, err)
	}

	value := n.abi.decodeCreate(res[0])
	if !n.abi.hasPolling {
		n.logger.Debug("application created", zap.Uint64("handle", value))
		return tickhost.Ready(tickhost.Handle(value)), nil
	}

	n.logger.Debug("application creation pending", zap.Uint64("ticket", value))
	return tickhost.Deferred(&pollPending{ns: n, ticket: value}), nil
}

// Advance calls the advance export with h.
func (n *Namespace) Advance(ctx context.Context, h tickhost.Handle) error {
	name := n.abi.exports.Advance
	if _, err := n.call(ctx, name, n.abi.encodeHandle(uint64(h))); err != nil {
		return fmt.Errorf("call %s: %w", name, err)
	}
	return nil
}

// Close releases the instance and the engine. Safe to call more than once.
func (n *Namespace) Close(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}
	n.closed = true

	err := n.instance.Close(ctx)
	if cerr := n.engine.Close(ctx); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// pollPending settles a creation ticket through the poll export.
type pollPending struct {
	err     error
	ns      *Namespace
	ticket  uint64
	handle  tickhost.Handle
	mu      sync.Mutex
	settled bool
}

func (p *pollPending) Await(ctx context.Context) (tickhost.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.settled {
		return p.handle, p.err
	}

	ticker := time.NewTicker(p.ns.pollInterval)
	defer ticker.Stop()

	name := p.ns.abi.exports.Poll
	for polls := 1; ; polls++ {
		res, err := p.ns.call(ctx, name, p.ns.abi.encodeTicket(p.ticket))
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return 0, errors.Startup(errors.KindCanceled, "await application", ctxErr)
			}
			return p.settle(0, errors.Startup(errors.KindCreateFailed, "call "+name, err))
		}

		status, value := decodePoll(res[0])
		switch status {
		case PollPending:
		case PollReady:
			p.ns.logger.Debug("application creation resolved",
				zap.Uint32("handle", value),
				zap.Int("polls", polls))
			return p.settle(tickhost.Handle(value), nil)
		case PollRejected:
			return p.settle(0, errors.Rejected(value))
		default:
			return p.settle(0, errors.New(errors.PhaseStartup, errors.KindRejected).
				Export(name).
				Value(uint32(status)).
				Detail("unknown poll status %d", status).
				Build())
		}

		select {
		case <-ctx.Done():
			return 0, errors.Startup(errors.KindCanceled, "await application", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (p *pollPending) settle(h tickhost.Handle, err error) (tickhost.Handle, error) {
	p.handle, p.err, p.settled = h, err, true
	return h, err
}

var (
	_ tickhost.Namespace = (*Namespace)(nil)
	_ tickhost.Pending   = (*pollPending)(nil)
)
