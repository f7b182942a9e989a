package runtimebridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/slighter12/maya-livelink-go/registry"
)

const defaultCommandTimeout = 8 * time.Second

var (
	ErrBridgeStopped  = errors.New("bridge loop is not running")
	ErrCommandTimeout = errors.New("command timed out waiting for the bridge loop")
)

type commandResult struct {
	value any
	err   error
}

type pendingCommand struct {
	ctx      context.Context
	name     string
	run      func(*registry.Registry) (any, error)
	resultCh chan commandResult
}

// CommandBroker hands closures to the bridge loop and waits for their
// result, so registry access stays on one goroutine.
type CommandBroker struct {
	defaultTimeout time.Duration
	queue          chan pendingCommand
	done           <-chan struct{}
}

func NewCommandBroker(defaultTimeout time.Duration, done <-chan struct{}) *CommandBroker {
	if defaultTimeout <= 0 {
		defaultTimeout = defaultCommandTimeout
	}
	return &CommandBroker{
		defaultTimeout: defaultTimeout,
		queue:          make(chan pendingCommand),
		done:           done,
	}
}

// DispatchAndWait runs fn on the loop. A ctx without a deadline gets the
// broker's default timeout.
func (b *CommandBroker) DispatchAndWait(ctx context.Context, name string, fn func(*registry.Registry) (any, error)) (any, error) {
	if b == nil {
		return nil, ErrBridgeStopped
	}
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("command name missing")
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.defaultTimeout)
		defer cancel()
	}

	cmd := pendingCommand{
		ctx:      ctx,
		name:     name,
		run:      fn,
		resultCh: make(chan commandResult, 1),
	}

	select {
	case b.queue <- cmd:
	case <-b.done:
		return nil, ErrBridgeStopped
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", name, ErrCommandTimeout)
	}

	select {
	case res := <-cmd.resultCh:
		return res.value, res.err
	case <-b.done:
		return nil, ErrBridgeStopped
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", name, ErrCommandTimeout)
	}
}

// execute runs one command on the loop and returns the function that hands
// the result back to the caller. Commands whose caller already gave up are
// skipped.
func (cmd pendingCommand) execute(reg *registry.Registry) (reply func()) {
	if cmd.ctx.Err() != nil {
		return func() {}
	}
	value, err := cmd.run(reg)
	return func() { cmd.resultCh <- commandResult{value: value, err: err} }
}

// Call runs fn on the bridge loop and returns its typed result.
func Call[T any](ctx context.Context, b *Bridge, name string, fn func(*registry.Registry) (T, error)) (T, error) {
	var zero T
	value, err := b.broker.DispatchAndWait(ctx, name, func(reg *registry.Registry) (any, error) {
		return fn(reg)
	})
	if err != nil {
		return zero, err
	}
	typed, ok := value.(T)
	if !ok {
		return zero, nil
	}
	return typed, nil
}
