// Package room is the relay's per-room actor: two seats, the latest game
// state, and forwarding between the seated connections.
package room

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ALCHACAS2/Dots-Boxes/internal/engine"
	"github.com/ALCHACAS2/Dots-Boxes/internal/grid"
	"github.com/ALCHACAS2/Dots-Boxes/internal/reconcile"
	"github.com/ALCHACAS2/Dots-Boxes/internal/store"
	"github.com/ALCHACAS2/Dots-Boxes/pkg/types"
	"go.uber.org/zap"
)

var ErrRoomFull = errors.New("room full or name in use")
var ErrClosed = errors.New("room closed")

const storeTimeout = 2 * time.Second

// idleTimeout closes a room that nobody is connected to, such as one reserved
// over HTTP and never joined.
var idleTimeout = 5 * time.Minute

type Msg interface{ isRoomMsg() }

type Join struct {
	ClientID string
	Name     string
	Outbox   chan types.Envelope // where this client wants to receive events
	Reply    chan error
}

func (Join) isRoomMsg() {}

type Leave struct{ ClientID string }

func (Leave) isRoomMsg() {}

type FromClient struct {
	ClientID string
	Event    string
	Data     json.RawMessage
}

func (FromClient) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

type View struct {
	Code     string         `json:"code"`
	GameType types.GameType `json:"gameType"`
	GridSize int            `json:"gridSize"`
	Players  []types.Player `json:"players"`
	Clients  int            `json:"clients"`
}

type Settings struct {
	GridSize int
	GameType types.GameType
}

// Normalize fills defaults and clamps nonsense.
func (s Settings) Normalize() Settings {
	if !s.GameType.Valid() {
		s.GameType = types.GameDotsBoxes
	}
	if s.GameType == types.GameTicTacToe {
		s.GridSize = 3
	}
	if s.GridSize < types.MinGridSize || s.GridSize > types.MaxGridSize {
		s.GridSize = types.DefaultGridSize
	}
	return s
}

type seat struct {
	name     string
	clientID string // empty while vacated
	out      chan types.Envelope
}

type Room struct {
	code     string
	settings Settings
	inbox    chan Msg
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	store    store.Store
	log      *zap.Logger
	onEmpty  func(*Room)

	seats   [engine.Seats]*seat
	started bool
	// vacated is set when a seat empties and cleared once the roster has
	// been broadcast.
	vacated bool

	// box game
	snapshot types.GameState

	// three in a row
	board  engine.Board
	turn   int
	ended  bool
	winner string
	draw   bool
}

// NewRoom starts the room actor. onEmpty runs on the room goroutine when the
// last connection leaves or the room sat idle with nobody connected; the room
// stops right after.
func NewRoom(parent context.Context, code string, settings Settings, st store.Store, logger *zap.Logger, onEmpty func(*Room)) *Room {
	ctx, cancel := context.WithCancel(parent)
	if logger == nil {
		logger = zap.NewNop()
	}
	if st == nil {
		st = store.NewMemory()
	}

	r := &Room{
		code:     code,
		settings: settings.Normalize(),
		inbox:    make(chan Msg, 64),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		store:    st,
		log:      logger.Named("room").With(zap.String("room", code)),
		onEmpty:  onEmpty,
	}
	r.reset()
	r.restore()

	go r.loop()
	return r
}

func (r *Room) Code() string { return r.code }

// Expose the inbox so tests or the WS layer can send messages.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

func (r *Room) Done() <-chan struct{} { return r.done }

func (r *Room) post(m Msg) bool {
	select {
	case r.inbox <- m:
		return true
	case <-r.done:
		return false
	}
}

// Join seats the client or answers roomFull on its outbox.
func (r *Room) Join(clientID, name string, out chan types.Envelope) error {
	reply := make(chan error, 1)
	if !r.post(Join{ClientID: clientID, Name: name, Outbox: out, Reply: reply}) {
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-r.done:
		return ErrClosed
	}
}

func (r *Room) Leave(clientID string) { r.post(Leave{ClientID: clientID}) }

func (r *Room) Send(m FromClient) bool { return r.post(m) }

func (r *Room) State() (View, bool) {
	reply := make(chan View, 1)
	if !r.post(GetState{Reply: reply}) {
		return View{}, false
	}
	select {
	case v := <-reply:
		return v, true
	case <-r.done:
		return View{}, false
	}
}

func (r *Room) loop() {
	defer close(r.done)
	idle := time.NewTimer(idleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case <-idle.C:
			if len(r.players()) == 0 {
				r.log.Info("room idle")
				r.close()
				return
			}
			idle.Reset(idleTimeout)

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				msg.Reply <- r.join(msg)

			case Leave:
				r.leave(msg.ClientID)

			case FromClient:
				r.handle(msg)

			case GetState:
				msg.Reply <- r.view()

			case Shutdown:
				r.shutdown()
				return
			}
			if r.settle() {
				r.log.Info("room empty")
				r.close()
				return
			}
		}
	}
}

// close ends a room nobody is connected to.
func (r *Room) close() {
	r.finish()
	if r.onEmpty != nil {
		r.onEmpty(r)
	}
	r.shutdown()
}

func (r *Room) shutdown() {
	for _, s := range r.seats {
		if s != nil && s.clientID != "" {
			close(s.out) // Tell client no more events
			s.clientID = ""
		}
	}
	r.cancel()
}

func (r *Room) view() View {
	clients := 0
	for _, s := range r.seats {
		if s != nil && s.clientID != "" {
			clients++
		}
	}
	return View{
		Code:     r.code,
		GameType: r.settings.GameType,
		GridSize: r.settings.GridSize,
		Players:  r.players(),
		Clients:  clients,
	}
}

// players lists connected seats in seat order.
func (r *Room) players() []types.Player {
	out := []types.Player{}
	for _, s := range r.seats {
		if s != nil && s.clientID != "" {
			out = append(out, types.Player{Name: s.name})
		}
	}
	return out
}

func (r *Room) full() bool {
	for _, s := range r.seats {
		if s == nil || s.clientID == "" {
			return false
		}
	}
	return true
}

func (r *Room) seatOf(clientID string) int {
	for i, s := range r.seats {
		if s != nil && s.clientID == clientID {
			return i
		}
	}
	return -1
}

func (r *Room) join(msg Join) error {
	idx, resume := r.pickSeat(msg.Name)
	if idx < 0 {
		r.log.Info("join rejected", zap.String("name", msg.Name))
		sendTo(msg.Outbox, types.EventRoomFull, nil)
		return ErrRoomFull
	}

	r.seats[idx] = &seat{name: msg.Name, clientID: msg.ClientID, out: msg.Outbox}
	r.log.Info("seated", zap.String("name", msg.Name), zap.Int("seat", idx), zap.Bool("resume", resume))

	r.broadcast(types.EventPlayersUpdate, types.PlayersUpdate{
		Players:  r.players(),
		GridSize: r.settings.GridSize,
		GameType: r.settings.GameType,
	})

	if !r.full() {
		r.started = false
		return nil
	}
	if !r.started {
		r.started = true
		r.syncScores()
		r.broadcast(types.EventStartGame, types.StartGame{
			Players:  r.players(),
			GridSize: r.settings.GridSize,
			GameType: r.settings.GameType,
		})
		if r.inProgress() {
			r.broadcast(types.EventGameState, r.gameState())
		}
	}
	return nil
}

func (r *Room) inProgress() bool {
	if r.settings.GameType == types.GameTicTacToe {
		return r.board != engine.Board{}
	}
	for _, m := range [][][]bool{r.snapshot.HorizontalLines, r.snapshot.VerticalLines} {
		for _, row := range m {
			for _, claimed := range row {
				if claimed {
					return true
				}
			}
		}
	}
	return false
}

// pickSeat prefers the vacated seat holding name, then an empty seat, then
// any vacated seat.
func (r *Room) pickSeat(name string) (idx int, resume bool) {
	for _, s := range r.seats {
		if s != nil && s.clientID != "" && s.name == name {
			return -1, false
		}
	}
	for i, s := range r.seats {
		if s != nil && s.clientID == "" && s.name == name {
			return i, true
		}
	}
	for i, s := range r.seats {
		if s == nil {
			return i, false
		}
	}
	for i, s := range r.seats {
		if s.clientID == "" {
			return i, false
		}
	}
	return -1, false
}

func (r *Room) leave(clientID string) {
	idx := r.seatOf(clientID)
	if idx < 0 {
		// Already dropped as a slow client.
		return
	}
	r.log.Info("left", zap.String("name", r.seats[idx].name))
	r.vacate(idx)
}

// vacate frees a seat but keeps its name for a resume. The roster goes out
// from settle, after the current message is done.
func (r *Room) vacate(idx int) {
	r.seats[idx].clientID = ""
	r.seats[idx].out = nil
	r.started = false
	r.vacated = true
}

// settle tells the remaining seat about vacated ones and reports whether
// nobody is connected any more. Broadcasting can drop another slow client,
// hence the loop.
func (r *Room) settle() bool {
	for r.vacated {
		r.vacated = false
		if len(r.players()) == 0 {
			return true
		}
		r.broadcast(types.EventPlayersUpdate, types.PlayersUpdate{
			Players:  r.players(),
			GridSize: r.settings.GridSize,
			GameType: r.settings.GameType,
		})
	}
	return false
}

func (r *Room) handle(msg FromClient) {
	from := r.seatOf(msg.ClientID)
	if from < 0 {
		r.log.Debug("event from unseated client", zap.String("event", msg.Event))
		return
	}

	switch msg.Event {
	case types.EventMakeMove:
		r.makeMove(from, msg.Data)
	case types.EventSignal:
		r.sendRaw(1-from, types.EventSignal, msg.Data)
	case types.EventTicTacToeMove:
		r.ticTacToeMove(from, msg.Data)
	case types.EventRestartGame:
		r.restart()
	default:
		r.send(from, types.EventError, types.Error{Message: "unknown event"})
	}
}

func (r *Room) makeMove(from int, data json.RawMessage) {
	if r.settings.GameType != types.GameDotsBoxes {
		r.send(from, types.EventError, types.Error{Message: "not a box game"})
		return
	}
	var mm types.MakeMove
	if err := json.Unmarshal(data, &mm); err != nil {
		r.send(from, types.EventError, types.Error{Message: "bad move"})
		return
	}
	g, err := grid.FromMatrices(mm.HorizontalLines, mm.VerticalLines, mm.Boxes)
	if err != nil || g.Size() != r.settings.GridSize {
		r.log.Warn("move with wrong grid shape", zap.Error(err))
		r.send(from, types.EventError, types.Error{Message: "grid does not match room"})
		return
	}

	next, err := reconcile.ApplyRemoteSnapshot(r.stateFromSnapshot(), mm.Snapshot())
	if err != nil {
		r.send(from, types.EventError, types.Error{Message: err.Error()})
		return
	}
	r.snapshot = next.Snapshot()
	r.persist()
	r.send(1-from, types.EventOpponentMove, mm)
}

func (r *Room) ticTacToeMove(from int, data json.RawMessage) {
	if r.settings.GameType != types.GameTicTacToe {
		r.send(from, types.EventError, types.Error{Message: "not a three-in-a-row game"})
		return
	}
	var mv types.TicTacToeMove
	if err := json.Unmarshal(data, &mv); err != nil {
		r.send(from, types.EventError, types.Error{Message: "bad move"})
		return
	}
	if r.ended || !r.full() || from != r.turn {
		r.send(from, types.EventError, types.Error{Message: "not your turn"})
		return
	}

	board, err := engine.Mark(r.board, mv.Position, engine.SymbolFor(from))
	if err != nil {
		r.send(from, types.EventInvalidMove, types.InvalidMove{Position: mv.Position})
		return
	}
	r.board = board
	r.turn = 1 - r.turn
	r.broadcast(types.EventTicTacToeMoveMade, types.TicTacToeMoveMade{Board: r.board.Wire(), TurnIndex: r.turn})

	if sym, won := r.board.Winner(); won {
		r.ended, r.winner = true, r.nameFor(sym)
		r.broadcast(types.EventTicTacToeGameEnded, types.TicTacToeGameEnded{Result: "win", Winner: r.winner})
	} else if r.board.Draw() {
		r.ended, r.draw = true, true
		r.broadcast(types.EventTicTacToeGameEnded, types.TicTacToeGameEnded{Result: "draw"})
	}
	r.persist()
}

func (r *Room) nameFor(symbol string) string {
	for i, s := range r.seats {
		if s != nil && engine.SymbolFor(i) == symbol {
			return s.name
		}
	}
	return symbol
}

func (r *Room) restart() {
	r.log.Info("restart")
	r.reset()
	r.syncScores()
	r.persist()
	if r.settings.GameType == types.GameTicTacToe {
		r.broadcast(types.EventGameRestarted, types.GameRestarted{Board: r.board.Wire()})
		return
	}
	r.broadcast(types.EventGameState, r.gameState())
}

func (r *Room) reset() {
	r.board, r.turn, r.ended, r.winner, r.draw = engine.Board{}, 0, false, "", false
	st, err := reconcile.New(r.settings.GridSize, nil)
	if err != nil {
		// Normalize keeps the size valid.
		panic(err)
	}
	r.snapshot = st.Snapshot()
}

// syncScores gives every seated name a score entry.
func (r *Room) syncScores() {
	if r.snapshot.Scores == nil {
		r.snapshot.Scores = map[string]int{}
	}
	for _, s := range r.seats {
		if s == nil {
			continue
		}
		if _, ok := r.snapshot.Scores[s.name]; !ok {
			r.snapshot.Scores[s.name] = 0
		}
	}
}

func (r *Room) stateFromSnapshot() reconcile.State {
	st, _ := reconcile.New(r.settings.GridSize, nil)
	next, err := reconcile.ApplyRemoteSnapshot(st, r.snapshot)
	if err != nil {
		return st
	}
	return next
}

func (r *Room) gameState() types.GameState {
	if r.settings.GameType == types.GameTicTacToe {
		turn := r.turn
		return types.GameState{
			GameType:  types.GameTicTacToe,
			Board:     r.board.Wire(),
			TurnIndex: &turn,
			GameEnded: r.ended,
			Winner:    r.winner,
			IsDraw:    r.draw,
		}
	}
	gs := r.snapshot
	gs.GameType = types.GameDotsBoxes
	gs.GridSize = r.settings.GridSize
	return gs
}

func (r *Room) persist() {
	ctx, cancel := context.WithTimeout(r.ctx, storeTimeout)
	defer cancel()
	if err := r.store.Save(ctx, r.code, r.gameState()); err != nil {
		r.log.Warn("save snapshot", zap.Error(err))
	}
}

// restore picks up a persisted game for this code if it fits the settings.
func (r *Room) restore() {
	ctx, cancel := context.WithTimeout(r.ctx, storeTimeout)
	defer cancel()
	gs, err := r.store.Load(ctx, r.code)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			r.log.Warn("load snapshot", zap.Error(err))
		}
		return
	}
	if gs.GameType != r.settings.GameType {
		return
	}

	switch gs.GameType {
	case types.GameTicTacToe:
		b, err := engine.BoardFromWire(gs.Board)
		if err != nil {
			return
		}
		r.board, r.ended, r.winner, r.draw = b, gs.GameEnded, gs.Winner, gs.IsDraw
		if gs.TurnIndex != nil {
			r.turn = *gs.TurnIndex
		}
	default:
		if gs.GridSize != r.settings.GridSize {
			return
		}
		r.snapshot = gs
	}
	r.log.Info("restored snapshot")
}

// finish drops the persisted game once it is over.
func (r *Room) finish() {
	over := r.ended
	if r.settings.GameType == types.GameDotsBoxes {
		over = r.stateFromSnapshot().Grid.OwnedCount() == r.settings.GridSize*r.settings.GridSize
	}
	if !over {
		return
	}
	ctx, cancel := context.WithTimeout(r.ctx, storeTimeout)
	defer cancel()
	if err := r.store.Delete(ctx, r.code); err != nil {
		r.log.Warn("delete snapshot", zap.Error(err))
	}
}

func (r *Room) broadcast(event string, payload any) {
	for i := range r.seats {
		r.send(i, event, payload)
	}
}

func (r *Room) send(idx int, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		r.log.Error("encode", zap.String("event", event), zap.Error(err))
		return
	}
	r.sendRaw(idx, event, data)
}

func (r *Room) sendRaw(idx int, event string, data json.RawMessage) {
	if idx < 0 || idx >= len(r.seats) {
		return
	}
	s := r.seats[idx]
	if s == nil || s.clientID == "" {
		return
	}
	select {
	case s.out <- types.Envelope{Event: event, Data: data}:
		// ok
	default:
		// Client is slow/full - drop them.
		r.log.Warn("dropping slow client", zap.String("name", s.name))
		close(s.out)
		r.vacate(idx)
	}
}

func sendTo(out chan types.Envelope, event string, payload any) {
	env := types.Envelope{Event: event}
	if payload != nil {
		env.Data, _ = json.Marshal(payload)
	}
	select {
	case out <- env:
	default:
	}
}
