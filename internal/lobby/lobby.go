package lobby

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ALCHACAS2/Dots-Boxes/internal/channel"
	"github.com/ALCHACAS2/Dots-Boxes/pkg/types"
	"go.uber.org/zap"
)

var ErrEmptyField = errors.New("name and room code are required")
var ErrGridSizeRange = errors.New("grid size out of range")
var ErrUnknownGame = errors.New("unknown game type")
var ErrClosed = errors.New("lobby closed")

const RoomFullNotice = "The room is full or the name is already in use."

// Request is what the player typed.
type Request struct {
	Name     string
	RoomCode string
	GridSize int
	GameType types.GameType
}

// Validate trims the input, lower-cases the room code and turns it into a
// joinRoom payload.
func Validate(r Request) (types.JoinRoom, error) {
	name, code := strings.TrimSpace(r.Name), types.NormalizeRoomCode(r.RoomCode)
	if name == "" || code == "" {
		return types.JoinRoom{}, ErrEmptyField
	}

	game := r.GameType
	if game == "" {
		game = types.GameDotsBoxes
	}
	if !game.Valid() {
		return types.JoinRoom{}, fmt.Errorf("%w: %q", ErrUnknownGame, game)
	}

	size := r.GridSize
	switch {
	case game == types.GameTicTacToe:
		size = 3
	case size == 0:
		size = types.DefaultGridSize
	case size < types.MinGridSize || size > types.MaxGridSize:
		return types.JoinRoom{}, fmt.Errorf("%w: %d (want %d-%d)", ErrGridSizeRange, size, types.MinGridSize, types.MaxGridSize)
	}

	return types.JoinRoom{RoomCode: code, Name: name, GridSize: size, GameType: game}, nil
}

type Status string

const (
	StatusIdle    Status = "idle"
	StatusWaiting Status = "waiting"
	StatusStarted Status = "started"
)

// Start carries everything a game view needs.
type Start struct {
	Self     string
	RoomCode string
	Players  []types.Player
	GridSize int
	GameType types.GameType
}

type View struct {
	Status       Status
	Players      []types.Player
	RoomGridSize int // 0 until the room reports one
	RoomGameType types.GameType
	Notice       string
}

type Msg interface{ isLobbyMsg() }

type Join struct {
	Ctx   context.Context
	Req   Request
	Reply chan error
}

func (Join) isLobbyMsg() {}

// Back leaves the waiting screen.
type Back struct{}

func (Back) isLobbyMsg() {}

type FromServer struct {
	Event string
	Data  json.RawMessage
	// Handled, when set, is closed once the event has been applied.
	Handled chan struct{}
}

func (FromServer) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type Lobby struct {
	inbox  chan Msg
	ch     channel.Channel
	log    *zap.Logger
	starts chan Start
	offs   []func()
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	pending *types.JoinRoom
	view    View
	hooks   Hooks
}

// Hooks are optional callbacks run on the lobby goroutine.
type Hooks struct {
	OnChange func(View)
	// OnStart runs before the channel delivers the event after startGame,
	// so a game view created here sees every later event.
	OnStart func(Start)
}

// NewLobby subscribes to the room roster events on ch.
func NewLobby(parent context.Context, ch channel.Channel, logger *zap.Logger, hooks Hooks) *Lobby {
	ctx, cancel := context.WithCancel(parent)
	if logger == nil {
		logger = zap.NewNop()
	}

	l := &Lobby{
		inbox:  make(chan Msg, 64),
		ch:     ch,
		log:    logger.Named("lobby"),
		starts: make(chan Start, 1),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		view:   View{Status: StatusIdle},
		hooks:  hooks,
	}

	for _, ev := range []string{types.EventPlayersUpdate, types.EventRoomFull} {
		l.offs = append(l.offs, ch.On(ev, func(data json.RawMessage) {
			l.post(FromServer{Event: ev, Data: data})
		}))
	}
	l.offs = append(l.offs, ch.On(types.EventStartGame, func(data json.RawMessage) {
		handled := make(chan struct{})
		if !l.post(FromServer{Event: types.EventStartGame, Data: data, Handled: handled}) {
			return
		}
		select {
		case <-handled:
		case <-l.done:
		}
	}))

	go l.loop()
	return l
}

func (l *Lobby) post(m Msg) bool {
	select {
	case l.inbox <- m:
		return true
	case <-l.done:
		return false
	}
}

func (l *Lobby) loop() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				msg.Reply <- l.join(msg.Ctx, msg.Req)

			case Back:
				l.pending = nil
				l.view = View{Status: StatusIdle}

			case FromServer:
				changed := l.handle(msg)
				if msg.Handled != nil {
					close(msg.Handled)
				}
				if !changed {
					continue
				}

			case GetState:
				msg.Reply <- l.snapshot()
				continue

			case Shutdown:
				l.shutdown()
				return
			}
			if l.hooks.OnChange != nil {
				l.hooks.OnChange(l.snapshot())
			}
		}
	}
}

func (l *Lobby) join(ctx context.Context, req Request) error {
	jr, err := Validate(req)
	if err != nil {
		return err
	}
	if err := l.ch.Emit(ctx, types.EventJoinRoom, jr); err != nil {
		return err
	}
	l.pending = &jr
	l.view.Status = StatusWaiting
	l.view.Notice = ""
	l.log.Info("joining", zap.String("room", jr.RoomCode), zap.String("name", jr.Name), zap.Int("grid", jr.GridSize))
	return nil
}

// handle reports whether the view changed.
func (l *Lobby) handle(msg FromServer) bool {
	switch msg.Event {
	case types.EventPlayersUpdate:
		var u types.PlayersUpdate
		if err := json.Unmarshal(msg.Data, &u); err != nil {
			l.log.Warn("bad playersUpdate", zap.Error(err))
			return false
		}
		l.view.Players = u.Players
		if u.GridSize > 0 {
			l.view.RoomGridSize = u.GridSize
		}
		if u.GameType != "" {
			l.view.RoomGameType = u.GameType
		}
		if len(u.Players) > 0 && l.view.Status == StatusIdle && l.pending != nil {
			l.view.Status = StatusWaiting
		}

	case types.EventRoomFull:
		l.log.Info("room full")
		l.pending = nil
		l.view = View{Status: StatusIdle, Notice: RoomFullNotice}

	case types.EventStartGame:
		if l.pending == nil {
			l.log.Debug("startGame without a pending join")
			return false
		}
		var sg types.StartGame
		if err := json.Unmarshal(msg.Data, &sg); err != nil {
			l.log.Warn("bad startGame", zap.Error(err))
			return false
		}
		st := Start{
			Self:     l.pending.Name,
			RoomCode: l.pending.RoomCode,
			Players:  sg.Players,
			GridSize: sg.GridSize,
			GameType: sg.GameType,
		}
		if st.GameType == "" {
			st.GameType = l.pending.GameType
		}
		if st.GridSize == 0 {
			st.GridSize = l.pending.GridSize
		}
		l.view.Status = StatusStarted
		l.view.Players = sg.Players
		if l.hooks.OnStart != nil {
			l.hooks.OnStart(st)
		}
		select {
		case l.starts <- st:
		default:
			l.log.Warn("dropping startGame, previous one not consumed")
		}

	default:
		return false
	}
	return true
}

func (l *Lobby) snapshot() View {
	v := l.view
	v.Players = append([]types.Player(nil), l.view.Players...)
	return v
}

func (l *Lobby) shutdown() {
	for _, off := range l.offs {
		off()
	}
	l.cancel()
}

// Expose the inbox so tests or a UI loop can send messages.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

// Started delivers the game parameters once the room fills.
func (l *Lobby) Started() <-chan Start { return l.starts }

func (l *Lobby) Join(ctx context.Context, req Request) error {
	reply := make(chan error, 1)
	if !l.post(Join{Ctx: ctx, Req: req, Reply: reply}) {
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-l.done:
		return ErrClosed
	}
}

func (l *Lobby) State() View {
	reply := make(chan View, 1)
	if !l.post(GetState{Reply: reply}) {
		return View{Status: StatusIdle}
	}
	select {
	case v := <-reply:
		return v
	case <-l.done:
		return View{Status: StatusIdle}
	}
}

func (l *Lobby) Close() {
	if l.post(Shutdown{}) {
		<-l.done
	}
}
