package game

import (
	"context"
	"errors"
	"maps"

	"github.com/ALCHACAS2/Dots-Boxes/internal/channel"
	"github.com/ALCHACAS2/Dots-Boxes/internal/grid"
	"github.com/ALCHACAS2/Dots-Boxes/internal/reconcile"
	"github.com/ALCHACAS2/Dots-Boxes/internal/voice"
	"github.com/ALCHACAS2/Dots-Boxes/pkg/types"
	"go.uber.org/zap"
)

type DotsBoxConfig struct {
	RoomCode string
	Self     string
	Players  []string
	GridSize int
}

type Deps struct {
	Channel  channel.Channel
	Voice    *voice.Session // optional, closed with the view
	Logger   *zap.Logger    // optional
	OnChange func()         // optional, called on the view goroutine
}

type DotsBoxView struct {
	Self      string
	Players   []string
	TurnIndex int
	Current   string
	MyTurn    bool
	Scores    map[string]int
	Grid      grid.Grid
	Outcome   reconcile.Outcome
}

type dotsMsg interface{ isDotsMsg() }

type claimMsg struct {
	ctx   context.Context
	o     grid.Orientation
	row   int
	col   int
	reply chan claimResult
}
type claimResult struct {
	completed []grid.Box
	err       error
}
type snapshotMsg struct {
	snap   types.GameState
	source string
}
type rosterMsg struct{ players []types.Player }
type restartMsg struct {
	ctx   context.Context
	reply chan error
}
type dotsViewMsg struct{ reply chan DotsBoxView }
type dotsCloseMsg struct{ reply chan error }

func (claimMsg) isDotsMsg()     {}
func (snapshotMsg) isDotsMsg()  {}
func (rosterMsg) isDotsMsg()    {}
func (restartMsg) isDotsMsg()   {}
func (dotsViewMsg) isDotsMsg()  {}
func (dotsCloseMsg) isDotsMsg() {}

// DotsBox is the box-game view: local moves are applied optimistically and
// pushed as full state; whatever state arrives from the network replaces ours.
type DotsBox struct {
	cfg  DotsBoxConfig
	deps Deps
	log  *zap.Logger

	inbox chan dotsMsg
	ctx   context.Context
	done  chan struct{}
	offs  []func()

	state reconcile.State
}

func NewDotsBox(ctx context.Context, cfg DotsBoxConfig, deps Deps) (*DotsBox, error) {
	if deps.Channel == nil {
		return nil, errors.New("game: channel is required")
	}
	if cfg.GridSize == 0 {
		cfg.GridSize = types.DefaultGridSize
	}
	st, err := reconcile.New(cfg.GridSize, cfg.Players)
	if err != nil {
		return nil, err
	}

	d := &DotsBox{
		cfg:   cfg,
		deps:  deps,
		log:   namedLogger(deps.Logger, "dotsbox", cfg.RoomCode, cfg.Self),
		inbox: make(chan dotsMsg, 64),
		ctx:   ctx,
		done:  make(chan struct{}),
		state: st,
	}

	d.offs = []func(){
		subscribe(deps.Channel, d.log, types.EventOpponentMove, func(m types.MakeMove) {
			d.post(snapshotMsg{snap: m.Snapshot(), source: types.EventOpponentMove})
		}),
		subscribe(deps.Channel, d.log, types.EventGameState, func(gs types.GameState) {
			if gs.GameType != "" && gs.GameType != types.GameDotsBoxes {
				return
			}
			d.post(snapshotMsg{snap: gs, source: types.EventGameState})
		}),
		subscribe(deps.Channel, d.log, types.EventPlayersUpdate, func(u types.PlayersUpdate) {
			d.post(rosterMsg{players: u.Players})
		}),
	}

	go d.loop()
	return d, nil
}

func (d *DotsBox) post(m dotsMsg) bool {
	select {
	case d.inbox <- m:
		return true
	case <-d.done:
		return false
	}
}

func (d *DotsBox) loop() {
	defer close(d.done)
	for {
		select {
		case <-d.ctx.Done():
			if err := release(d.offs, d.deps.Voice); err != nil {
				d.log.Warn("release", zap.Error(err))
			}
			return

		case m := <-d.inbox:
			switch msg := m.(type) {
			case claimMsg:
				completed, err := d.claim(msg.ctx, msg.o, msg.row, msg.col)
				msg.reply <- claimResult{completed: completed, err: err}
				if err != nil {
					continue
				}

			case snapshotMsg:
				next, err := reconcile.ApplyRemoteSnapshot(d.state, msg.snap)
				if err != nil {
					d.log.Warn("rejecting snapshot", zap.String("source", msg.source), zap.Error(err))
					continue
				}
				d.state = next

			case rosterMsg:
				if len(msg.players) == 0 {
					continue
				}
				scores := maps.Clone(d.state.Scores)
				if scores == nil {
					scores = map[string]int{}
				}
				for _, p := range msg.players {
					if _, ok := scores[p.Name]; !ok {
						scores[p.Name] = 0
					}
				}
				d.state.Players = types.Names(msg.players)
				d.state.Scores = scores

			case restartMsg:
				msg.reply <- d.deps.Channel.Emit(msg.ctx, types.EventRestartGame,
					types.RestartGame{RoomCode: types.NormalizeRoomCode(d.cfg.RoomCode)})
				continue

			case dotsViewMsg:
				msg.reply <- d.view()
				continue

			case dotsCloseMsg:
				msg.reply <- release(d.offs, d.deps.Voice)
				return
			}
			if d.deps.OnChange != nil {
				d.deps.OnChange()
			}
		}
	}
}

func (d *DotsBox) claim(ctx context.Context, o grid.Orientation, row, col int) ([]grid.Box, error) {
	if !o.Valid() || !d.state.Grid.InBounds(o, row, col) {
		return nil, ErrOutOfBounds
	}
	next, completed, err := reconcile.ApplyLocalMove(d.state, d.cfg.Self, o, row, col)
	if err != nil {
		d.log.Debug("move rejected", zap.String("orientation", string(o)), zap.Int("row", row), zap.Int("col", col), zap.Error(err))
		return nil, err
	}
	d.state = next
	if err := d.deps.Channel.Emit(ctx, types.EventMakeMove, next.MoveMessage(d.cfg.RoomCode, o, row, col)); err != nil {
		d.log.Warn("emit move", zap.Error(err))
	}
	return completed, nil
}

func (d *DotsBox) view() DotsBoxView {
	cur := d.state.Current()
	return DotsBoxView{
		Self:      d.cfg.Self,
		Players:   append([]string(nil), d.state.Players...),
		TurnIndex: d.state.TurnIndex,
		Current:   cur,
		MyTurn:    cur != "" && cur == d.cfg.Self,
		Scores:    maps.Clone(d.state.Scores),
		Grid:      d.state.Grid.Clone(),
		Outcome:   d.state.Outcome(),
	}
}

// Claim applies the local player's edge claim and pushes the resulting state.
// A rejected claim changes nothing and sends nothing.
func (d *DotsBox) Claim(ctx context.Context, o grid.Orientation, row, col int) ([]grid.Box, error) {
	reply := make(chan claimResult, 1)
	if !d.post(claimMsg{ctx: ctx, o: o, row: row, col: col, reply: reply}) {
		return nil, ErrClosed
	}
	select {
	case r := <-reply:
		return r.completed, r.err
	case <-d.done:
		return nil, ErrClosed
	}
}

// Restart asks the room to reset the game. The reset arrives as a snapshot.
func (d *DotsBox) Restart(ctx context.Context) error {
	reply := make(chan error, 1)
	if !d.post(restartMsg{ctx: ctx, reply: reply}) {
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-d.done:
		return ErrClosed
	}
}

func (d *DotsBox) View() DotsBoxView {
	reply := make(chan DotsBoxView, 1)
	if !d.post(dotsViewMsg{reply: reply}) {
		return DotsBoxView{Self: d.cfg.Self}
	}
	select {
	case v := <-reply:
		return v
	case <-d.done:
		return DotsBoxView{Self: d.cfg.Self}
	}
}

func (d *DotsBox) Voice() *voice.Session { return d.deps.Voice }

// Close unsubscribes from the channel and tears down voice before returning.
func (d *DotsBox) Close() error {
	reply := make(chan error, 1)
	if !d.post(dotsCloseMsg{reply: reply}) {
		<-d.done
		return nil
	}
	select {
	case err := <-reply:
		<-d.done
		return err
	case <-d.done:
		return nil
	}
}
