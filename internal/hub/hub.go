package hub

import (
	"context"
	"slices"

	"github.com/ALCHACAS2/Dots-Boxes/internal/room"
	"github.com/ALCHACAS2/Dots-Boxes/internal/store"
	"go.uber.org/zap"
)

type HubMsg interface{ isHubMsg() }

type GetRoom struct {
	Code  string
	Reply chan *room.Room
}

// EnsureRoom returns the room for Code, creating it with Settings if needed.
type EnsureRoom struct {
	Code     string
	Settings room.Settings // only used if creation happens
	Reply    chan *room.Room
}

// RemoveRoom forgets Room if it is still the one registered under Code.
type RemoveRoom struct {
	Code string
	Room *room.Room
}

type ListRooms struct {
	Reply chan []string
}

type ShutdownHub struct {
	Done chan struct{}
}

func (GetRoom) isHubMsg()     {}
func (EnsureRoom) isHubMsg()  {}
func (RemoveRoom) isHubMsg()  {}
func (ListRooms) isHubMsg()   {}
func (ShutdownHub) isHubMsg() {}

type Hub struct {
	inbox  chan HubMsg
	rooms  map[string]*room.Room
	store  store.Store
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(parent context.Context, st store.Store, logger *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if logger == nil {
		logger = zap.NewNop()
	}
	if st == nil {
		st = store.NewMemory()
	}
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*room.Room),
		store:  st,
		log:    logger,
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case GetRoom:
				msg.Reply <- h.rooms[msg.Code] // May be nil

			case EnsureRoom:
				if rm := h.rooms[msg.Code]; rm != nil {
					msg.Reply <- rm
					break
				}
				rm := room.NewRoom(h.ctx, msg.Code, msg.Settings, h.store, h.log, h.removeLater)
				h.rooms[msg.Code] = rm
				h.log.Info("room created", zap.String("room", msg.Code))
				msg.Reply <- rm

			case RemoveRoom:
				if h.rooms[msg.Code] == msg.Room {
					delete(h.rooms, msg.Code)
					h.log.Info("room removed", zap.String("room", msg.Code))
				}

			case ListRooms:
				codes := make([]string, 0, len(h.rooms))
				for code := range h.rooms {
					codes = append(codes, code)
				}
				slices.Sort(codes)
				msg.Reply <- codes

			case ShutdownHub:
				h.shutdown()
				h.cancel()
				close(msg.Done)
				return
			}
		}
	}
}

// removeLater runs on a room goroutine, so it must not wait on the hub.
func (h *Hub) removeLater(rm *room.Room) {
	go func() {
		select {
		case h.inbox <- RemoveRoom{Code: rm.Code(), Room: rm}:
		case <-h.ctx.Done():
		}
	}()
}

func (h *Hub) shutdown() {
	for _, rm := range h.rooms {
		select {
		case rm.Inbox() <- room.Shutdown{}:
		case <-rm.Done():
		}
	}
	clear(h.rooms)
}

// Get returns the room for code, or nil.
func (h *Hub) Get(ctx context.Context, code string) *room.Room {
	reply := make(chan *room.Room, 1)
	select {
	case h.inbox <- GetRoom{Code: code, Reply: reply}:
	case <-ctx.Done():
		return nil
	}
	select {
	case rm := <-reply:
		return rm
	case <-ctx.Done():
		return nil
	}
}

func (h *Hub) Ensure(ctx context.Context, code string, s room.Settings) *room.Room {
	reply := make(chan *room.Room, 1)
	select {
	case h.inbox <- EnsureRoom{Code: code, Settings: s, Reply: reply}:
	case <-ctx.Done():
		return nil
	}
	select {
	case rm := <-reply:
		return rm
	case <-ctx.Done():
		return nil
	}
}

// List returns the registered room codes in order.
func (h *Hub) List(ctx context.Context) []string {
	reply := make(chan []string, 1)
	select {
	case h.inbox <- ListRooms{Reply: reply}:
	case <-ctx.Done():
		return nil
	}
	select {
	case codes := <-reply:
		return codes
	case <-ctx.Done():
		return nil
	}
}

// Shutdown stops every room and the hub itself.
func (h *Hub) Shutdown() {
	done := make(chan struct{})
	select {
	case h.inbox <- ShutdownHub{Done: done}:
	case <-h.ctx.Done():
		return
	}
	select {
	case <-done:
	case <-h.ctx.Done():
	}
}
