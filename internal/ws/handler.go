package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ALCHACAS2/Dots-Boxes/internal/hub"
	"github.com/ALCHACAS2/Dots-Boxes/internal/room"
	"github.com/ALCHACAS2/Dots-Boxes/pkg/types"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeTimeout = 3 * time.Second
	readLimit    = 1 << 20
	joinAttempts = 3
)

type Options struct {
	// OriginPatterns is passed to websocket.Accept; empty means same origin only.
	OriginPatterns    []string
	MessagesPerSecond float64
	Burst             int
	Logger            *zap.Logger
}

func (o Options) limiter() *rate.Limiter {
	if o.MessagesPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := o.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(o.MessagesPerSecond), burst)
}

// conn is one client socket. Events from the room arrive on out; replies
// generated here go through local so only the writer touches the socket.
type conn struct {
	id    string
	ws    *websocket.Conn
	log   *zap.Logger
	out   chan types.Envelope
	local chan types.Envelope
	room  *room.Room
}

func Handler(h *hub.Hub, opts Options) http.HandlerFunc {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("ws")

	return func(w http.ResponseWriter, r *http.Request) {
		wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			logger.Debug("accept", zap.Error(err))
			return
		}
		defer wsConn.Close(websocket.StatusNormalClosure, "bye")
		wsConn.SetReadLimit(readLimit)

		c := &conn{
			id:    uuid.NewString(),
			ws:    wsConn,
			out:   make(chan types.Envelope, 32),
			local: make(chan types.Envelope, 8),
		}
		c.log = logger.With(zap.String("client", c.id))
		c.log.Debug("connected", zap.String("remote", r.RemoteAddr))

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go c.writeLoop(ctx, cancel)
		defer func() {
			if c.room != nil {
				c.room.Leave(c.id)
			}
		}()

		limiter := opts.limiter()
		for {
			_, data, err := wsConn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					c.log.Debug("closed by client")
				default:
					if !errors.Is(err, context.Canceled) {
						c.log.Debug("read", zap.Error(err))
					}
				}
				return
			}

			if !limiter.Allow() {
				c.reply(types.EventError, types.Error{Message: "rate limited"})
				continue
			}

			var env types.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				c.reply(types.EventError, types.Error{Message: "bad json"})
				continue
			}
			c.dispatch(ctx, h, env)
		}
	}
}

func (c *conn) dispatch(ctx context.Context, h *hub.Hub, env types.Envelope) {
	switch env.Event {
	case types.EventJoinRoom:
		c.join(ctx, h, env.Data)

	case types.EventMakeMove, types.EventSignal, types.EventRestartGame, types.EventTicTacToeMove:
		if c.room == nil {
			c.reply(types.EventError, types.Error{Message: "join a room first"})
			return
		}
		if !c.room.Send(room.FromClient{ClientID: c.id, Event: env.Event, Data: env.Data}) {
			c.room = nil
			c.reply(types.EventError, types.Error{Message: "room closed"})
		}

	default:
		c.reply(types.EventError, types.Error{Message: "unknown event"})
	}
}

func (c *conn) join(ctx context.Context, h *hub.Hub, data json.RawMessage) {
	if c.room != nil {
		c.reply(types.EventError, types.Error{Message: "already in a room"})
		return
	}
	var jr types.JoinRoom
	if err := json.Unmarshal(data, &jr); err != nil {
		c.reply(types.EventError, types.Error{Message: "bad joinRoom"})
		return
	}
	code, name := types.NormalizeRoomCode(jr.RoomCode), strings.TrimSpace(jr.Name)
	if code == "" || name == "" {
		c.reply(types.EventError, types.Error{Message: "name and room code are required"})
		return
	}

	settings := room.Settings{GridSize: jr.GridSize, GameType: jr.GameType}
	for range joinAttempts {
		rm := h.Ensure(ctx, code, settings)
		if rm == nil {
			return
		}
		err := rm.Join(c.id, name, c.out)
		switch {
		case err == nil:
			c.room = rm
			c.log.Info("joined", zap.String("room", code), zap.String("name", name))
			return
		case errors.Is(err, room.ErrRoomFull):
			return
		}
		// The room emptied and stopped between lookup and join.
	}
	c.reply(types.EventError, types.Error{Message: "room unavailable"})
}

func (c *conn) reply(event string, payload any) {
	env := types.Envelope{Event: event}
	data, err := json.Marshal(payload)
	if err != nil {
		c.log.Error("encode reply", zap.Error(err))
		return
	}
	env.Data = data
	select {
	case c.local <- env:
	default:
		c.log.Warn("dropping reply, writer behind", zap.String("event", event))
	}
}

func (c *conn) writeLoop(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	for {
		var env types.Envelope
		select {
		case <-ctx.Done():
			return
		case env = <-c.local:
		case e, ok := <-c.out:
			if !ok {
				// The room dropped us.
				c.ws.Close(websocket.StatusPolicyViolation, "too slow")
				return
			}
			env = e
		}

		payload, err := json.Marshal(env)
		if err != nil {
			c.log.Error("encode", zap.Error(err))
			continue
		}
		wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
		err = c.ws.Write(wctx, websocket.MessageText, payload)
		wcancel()
		if err != nil {
			c.log.Debug("write", zap.Error(err))
			return
		}
	}
}
