package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"

	"palaver/internal/models"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

type wsConnection interface {
	Close() error
	WriteJSON(v interface{}) error
	ReadJSON(v interface{}) error
}

type frameHandler interface {
	HandleFrame(s *Session, f models.Frame)
	Disconnect(s *Session)
}

type ConnectionOptions struct {
	// SendBuffer is the outbound queue size. Events beyond it are dropped.
	SendBuffer int
	EventRate  rate.Limit
	EventBurst int
	OnDrop     func()
}

// Connection runs one websocket: a read pump feeding client frames to the
// main loop, which handles them one at a time and writes queued server events.
type Connection struct {
	id         string
	ws         wsConnection
	handler    frameHandler
	session    *Session
	limiter    *rate.Limiter
	onDrop     func()
	fromClient chan models.Frame
	fromServer chan models.ServerEvent
	errorCh    chan error
	done       chan struct{}
}

func NewConnection(
	handler frameHandler,
	ws wsConnection,
	opts ConnectionOptions,
) *Connection {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 100
	}
	if opts.EventRate <= 0 {
		opts.EventRate = rate.Inf
	}
	c := &Connection{
		id:         uuid.NewString(),
		ws:         ws,
		handler:    handler,
		limiter:    rate.NewLimiter(opts.EventRate, opts.EventBurst),
		onDrop:     opts.OnDrop,
		fromClient: make(chan models.Frame),
		fromServer: make(chan models.ServerEvent, opts.SendBuffer),
		errorCh:    make(chan error, 2),
		done:       make(chan struct{}),
	}
	c.session = NewSession(c)
	return c
}

func (c *Connection) ID() string {
	return c.id
}

// Send implements Peer. It never blocks: when the queue is full the event is dropped.
func (c *Connection) Send(ev models.ServerEvent) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.fromServer <- ev:
		return true
	default:
		slog.Warn("outbound queue full, dropping event", "conn_id", c.id, "event", ev.Event)
		if c.onDrop != nil {
			c.onDrop()
		}
		return false
	}
}

func (c *Connection) Handle(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		close(c.done)
		close(c.fromClient)
		close(c.errorCh)
		c.handler.Disconnect(c.session)
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		c.errorCh <- c.pumpMessages(ctx)
		cancel()
	})

	wg.Go(func() {
		c.errorCh <- c.mainLoop(ctx)
		cancel()
	})

	var err error
	select {
	case err = <-c.errorCh:
	case <-ctx.Done():
	}
	c.ws.Close()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func (c *Connection) pumpMessages(ctx context.Context) error {
	for {
		var frame models.Frame
		if err := c.ws.ReadJSON(&frame); err != nil {
			if isMalformed(err) {
				c.Send(event(models.ServerEventError, models.ErrorPayload{Message: "Malformed frame", Code: string(KindValidation)}))
				continue
			}
			return err
		}
		select {
		case c.fromClient <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Connection) mainLoop(ctx context.Context) error {
	for {
		select {
		case frame := <-c.fromClient:
			if !c.limiter.Allow() {
				c.Send(event(models.ServerEventError, models.ErrorPayload{Message: "Too many events", Code: string(KindRateLimited)}))
				continue
			}
			c.handler.HandleFrame(c.session, frame)
		case ev := <-c.fromServer:
			if err := c.ws.WriteJSON(ev); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// isMalformed tells decode failures from transport failures. gorilla reports
// an empty or truncated message as io.ErrUnexpectedEOF; a connection lost
// mid-frame surfaces as a *websocket.CloseError instead.
func isMalformed(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) ||
		errors.As(err, &typeErr) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}
