package broker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"memit/internal/logging"
)

var (
	// ErrNoReply means the request ended without an answer: no handler, the
	// handler stayed silent, or ctx ended first.
	ErrNoReply = errors.New("no reply")
	// ErrNoHandler is logged (and wrapped in ErrNoReply) for unknown kinds.
	ErrNoHandler = errors.New("no handler registered")
)

// Handler answers one message. Returning nil means no reply is sent.
type Handler func(ctx context.Context, msg Message) *Reply

// Broker routes requests from the UI side to background handlers and fans out
// unsolicited pushes. It imposes no timeout of its own.
type Broker struct {
	pool *WorkerPool
	log  *zap.Logger

	mu       sync.RWMutex
	handlers map[Kind]Handler
	subs     map[uint64]func(Message)
	nextSub  uint64
}

func New(workers, queue int) *Broker {
	b := &Broker{
		pool:     NewWorkerPool(workers, queue),
		log:      logging.Named("broker"),
		handlers: make(map[Kind]Handler),
		subs:     make(map[uint64]func(Message)),
	}
	b.pool.OnError = func(err error) {
		b.log.Error("handler failed", zap.Error(err))
	}
	return b
}

// Handle registers h for kind, replacing any previous handler.
func (b *Broker) Handle(kind Kind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = h
}

func (b *Broker) Start(ctx context.Context) {
	b.pool.Start(ctx)
}

// Close stops accepting messages and waits for running handlers.
func (b *Broker) Close() {
	b.pool.Close()
}

// Send delivers msg to its handler on a worker goroutine. onReply is called at
// most once, on that goroutine; it is never called if the handler is silent or
// no handler exists.
func (b *Broker) Send(ctx context.Context, msg Message, onReply func(Reply)) {
	if err := b.dispatch(ctx, msg, onReply, nil); err != nil {
		b.log.Warn("message dropped", zap.String("type", string(msg.Type)), zap.Error(err))
	}
}

// Request is the blocking form of Send.
func (b *Broker) Request(ctx context.Context, msg Message) (Reply, error) {
	replies := make(chan Reply, 1)
	silent := make(chan struct{})

	err := b.dispatch(ctx, msg,
		func(r Reply) { replies <- r },
		func() { close(silent) },
	)
	if err != nil {
		return Reply{}, fmt.Errorf("%w: %v", ErrNoReply, err)
	}

	select {
	case r := <-replies:
		return r, nil
	case <-silent:
		return Reply{}, ErrNoReply
	case <-ctx.Done():
		return Reply{}, fmt.Errorf("%w: %v", ErrNoReply, ctx.Err())
	}
}

func (b *Broker) dispatch(ctx context.Context, msg Message, onReply func(Reply), onSilence func()) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	b.mu.RLock()
	h, ok := b.handlers[msg.Type]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w for %s", ErrNoHandler, msg.Type)
	}

	b.log.Debug("dispatch", zap.String("id", msg.ID), zap.String("type", string(msg.Type)))

	return b.pool.Submit(ctx, func(context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s handler panicked: %v", msg.Type, r)
				if onSilence != nil {
					onSilence()
				}
			}
		}()

		reply := h(ctx, msg)
		if reply == nil {
			if onSilence != nil {
				onSilence()
			}
			return nil
		}
		if onReply != nil {
			onReply(*reply)
		}
		return nil
	})
}

// Subscribe registers fn for pushed messages and returns its unsubscribe func.
func (b *Broker) Subscribe(fn func(Message)) func() {
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Push delivers an unsolicited message to every subscriber, in subscription
// order, on the caller's goroutine.
func (b *Broker) Push(msg Message) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	b.mu.RLock()
	ids := make([]uint64, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(Message), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, b.subs[id])
	}
	b.mu.RUnlock()

	b.log.Debug("push", zap.String("type", string(msg.Type)), zap.Int("subscribers", len(fns)))
	for _, fn := range fns {
		fn(msg)
	}
}
