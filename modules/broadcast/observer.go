package broadcast

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"
)

// Conn is the write side of an observer's connection. *websocket.Conn satisfies it.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// writeTimeout bounds a single write to a peer that has stopped reading.
const writeTimeout = 10 * time.Second

// deadlineConn is implemented by connections that support write deadlines,
// *websocket.Conn among them.
type deadlineConn interface {
	SetWriteDeadline(t time.Time) error
}

// State is an observer's lifecycle state.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Observer is one live push-channel connection. Messages are queued on a
// bounded outbox and written by the observer's own goroutine.
type Observer struct {
	ID string

	conn      Conn
	outbox    chan []byte
	state     atomic.Int32
	stop      chan struct{}
	done      chan struct{}
	openOnce  sync.Once
	closeOnce sync.Once
	logger    *zap.Logger
}

// NewObserver creates an observer in the connecting state.
func NewObserver(id string, conn Conn, buffer int, logger *zap.Logger) *Observer {
	if buffer <= 0 {
		buffer = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Observer{
		ID:     id,
		conn:   conn,
		outbox: make(chan []byte, buffer),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger.With(zap.String("observer", id)),
	}
}

// State returns the current lifecycle state.
func (o *Observer) State() State {
	return State(o.state.Load())
}

// Open starts the writer and marks the observer ready to receive events.
func (o *Observer) Open() {
	o.openOnce.Do(func() {
		if !o.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen)) {
			return
		}
		go o.writeLoop()
	})
}

// Close stops the writer and waits for it to exit. Queued messages are discarded.
// The connection itself is left to its owner; a write in flight finishes,
// fails on the closed connection or hits its deadline.
func (o *Observer) Close() {
	o.closeOnce.Do(func() {
		prev := State(o.state.Swap(int32(StateClosing)))
		close(o.stop)
		if prev == StateOpen {
			<-o.done
		}
		o.state.Store(int32(StateClosed))
	})
}

// enqueue queues data without blocking. It reports false when the outbox is full.
func (o *Observer) enqueue(data []byte) bool {
	select {
	case o.outbox <- data:
		return true
	default:
		return false
	}
}

func (o *Observer) writeLoop() {
	defer close(o.done)
	for {
		select {
		case <-o.stop:
			return
		case data := <-o.outbox:
			if dc, ok := o.conn.(deadlineConn); ok {
				_ = dc.SetWriteDeadline(time.Now().Add(writeTimeout))
			}
			if err := o.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				o.logger.Warn("delivery failed", zap.Error(err))
			}
		}
	}
}
