package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ALCHACAS2/Dots-Boxes/pkg/types"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

const (
	writeTimeout = 3 * time.Second
	readLimit    = 1 << 20
)

// Conn is a Channel over one websocket connection. The application root owns
// it: views receive it as a Channel and never close it.
type Conn struct {
	ws     *websocket.Conn
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	dispatcher

	errMu sync.Mutex
	err   error
}

var _ Channel = (*Conn)(nil)

func Dial(ctx context.Context, url string, logger *zap.Logger) (*Conn, error) {
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	ws.SetReadLimit(readLimit)

	cctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		ws:     ws,
		log:    logger.Named("channel"),
		ctx:    cctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Conn) Emit(ctx context.Context, event string, payload any) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	env, err := Encode(event, payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := c.ws.Write(wctx, websocket.MessageText, frame); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}

func (c *Conn) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.ws.Read(c.ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				c.log.Debug("connection closed")
			default:
				if c.ctx.Err() == nil {
					c.log.Warn("read failed", zap.Error(err))
				}
			}
			c.setErr(err)
			return
		}

		var env types.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		if !c.dispatch(env) {
			c.log.Debug("no subscriber", zap.String("event", env.Event))
		}
	}
}

// Done is closed once the read loop has stopped.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Conn) setErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

func (c *Conn) Close() error {
	err := c.ws.Close(websocket.StatusNormalClosure, "bye")
	c.cancel()
	<-c.done
	return err
}
