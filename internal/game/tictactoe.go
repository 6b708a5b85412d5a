package game

import (
	"context"
	"errors"
	"fmt"

	"github.com/ALCHACAS2/Dots-Boxes/internal/engine"
	"github.com/ALCHACAS2/Dots-Boxes/internal/reconcile"
	"github.com/ALCHACAS2/Dots-Boxes/internal/voice"
	"github.com/ALCHACAS2/Dots-Boxes/pkg/types"
	"go.uber.org/zap"
)

type TicTacToeConfig struct {
	RoomCode string
	Self     string
	Players  []string
}

type TicTacToeView struct {
	Self      string
	Symbol    string
	Players   []string
	Board     engine.Board
	TurnIndex int
	MyTurn    bool
	Ended     bool
	Winner    string
	Draw      bool
	// Notice is the last server complaint, cleared by the next accepted move.
	Notice string
}

type tttMsg interface{ isTTTMsg() }

type playMsg struct {
	ctx      context.Context
	position int
	reply    chan error
}
type moveMadeMsg struct{ m types.TicTacToeMoveMade }
type endedMsg struct{ e types.TicTacToeGameEnded }
type restartedMsg struct{ r types.GameRestarted }
type tttStateMsg struct{ gs types.GameState }
type invalidMsg struct{ position int }
type tttRestartMsg struct {
	ctx   context.Context
	reply chan error
}
type tttViewMsg struct{ reply chan TicTacToeView }
type tttCloseMsg struct{ reply chan error }

func (playMsg) isTTTMsg()       {}
func (moveMadeMsg) isTTTMsg()   {}
func (endedMsg) isTTTMsg()      {}
func (restartedMsg) isTTTMsg()  {}
func (tttStateMsg) isTTTMsg()   {}
func (invalidMsg) isTTTMsg()    {}
func (tttRestartMsg) isTTTMsg() {}
func (tttViewMsg) isTTTMsg()    {}
func (tttCloseMsg) isTTTMsg()   {}

// TicTacToe is the three-in-a-row view. The room is authoritative: a move is
// only sent, never applied locally.
type TicTacToe struct {
	cfg  TicTacToeConfig
	deps Deps
	log  *zap.Logger

	inbox chan tttMsg
	ctx   context.Context
	done  chan struct{}
	offs  []func()

	board     engine.Board
	turnIndex int
	ended     bool
	winner    string
	draw      bool
	notice    string
}

func NewTicTacToe(ctx context.Context, cfg TicTacToeConfig, deps Deps) (*TicTacToe, error) {
	if deps.Channel == nil {
		return nil, errors.New("game: channel is required")
	}
	g := &TicTacToe{
		cfg:   cfg,
		deps:  deps,
		log:   namedLogger(deps.Logger, "tictactoe", cfg.RoomCode, cfg.Self),
		inbox: make(chan tttMsg, 64),
		ctx:   ctx,
		done:  make(chan struct{}),
	}

	ch := deps.Channel
	g.offs = []func(){
		subscribe(ch, g.log, types.EventTicTacToeMoveMade, func(m types.TicTacToeMoveMade) { g.post(moveMadeMsg{m}) }),
		subscribe(ch, g.log, types.EventTicTacToeGameEnded, func(e types.TicTacToeGameEnded) { g.post(endedMsg{e}) }),
		subscribe(ch, g.log, types.EventGameRestarted, func(r types.GameRestarted) { g.post(restartedMsg{r}) }),
		subscribe(ch, g.log, types.EventInvalidMove, func(m types.InvalidMove) { g.post(invalidMsg{m.Position}) }),
		subscribe(ch, g.log, types.EventGameState, func(gs types.GameState) {
			if gs.GameType != types.GameTicTacToe {
				return
			}
			g.post(tttStateMsg{gs})
		}),
	}

	go g.loop()
	return g, nil
}

func (g *TicTacToe) post(m tttMsg) bool {
	select {
	case g.inbox <- m:
		return true
	case <-g.done:
		return false
	}
}

func (g *TicTacToe) loop() {
	defer close(g.done)
	for {
		select {
		case <-g.ctx.Done():
			if err := release(g.offs, g.deps.Voice); err != nil {
				g.log.Warn("release", zap.Error(err))
			}
			return

		case m := <-g.inbox:
			switch msg := m.(type) {
			case playMsg:
				msg.reply <- g.play(msg.ctx, msg.position)
				continue

			case moveMadeMsg:
				b, err := engine.BoardFromWire(msg.m.Board)
				if err != nil {
					g.log.Warn("rejecting board", zap.Error(err))
					continue
				}
				g.board = b
				g.turnIndex = msg.m.TurnIndex
				g.notice = ""

			case endedMsg:
				g.ended = true
				if msg.e.Result == "draw" {
					g.draw, g.winner = true, ""
				} else {
					g.draw, g.winner = false, msg.e.Winner
				}

			case restartedMsg:
				b, err := engine.BoardFromWire(msg.r.Board)
				if err != nil {
					b = engine.Board{}
				}
				g.board = b
				g.turnIndex = 0
				g.ended, g.winner, g.draw, g.notice = false, "", false, ""

			case tttStateMsg:
				b, err := engine.BoardFromWire(msg.gs.Board)
				if err != nil {
					g.log.Warn("rejecting state", zap.Error(err))
					continue
				}
				g.board = b
				g.turnIndex = 0
				if msg.gs.TurnIndex != nil {
					g.turnIndex = *msg.gs.TurnIndex
				}
				g.ended, g.winner, g.draw = msg.gs.GameEnded, msg.gs.Winner, msg.gs.IsDraw

			case invalidMsg:
				g.notice = fmt.Sprintf("Invalid move: cell %d is already taken.", msg.position)

			case tttRestartMsg:
				msg.reply <- g.deps.Channel.Emit(msg.ctx, types.EventRestartGame,
					types.RestartGame{RoomCode: types.NormalizeRoomCode(g.cfg.RoomCode)})
				continue

			case tttViewMsg:
				msg.reply <- g.view()
				continue

			case tttCloseMsg:
				msg.reply <- release(g.offs, g.deps.Voice)
				return
			}
			if g.deps.OnChange != nil {
				g.deps.OnChange()
			}
		}
	}
}

func (g *TicTacToe) seat() int {
	for i, p := range g.cfg.Players {
		if p == g.cfg.Self {
			return i
		}
	}
	return -1
}

func (g *TicTacToe) myTurn() bool {
	return len(g.cfg.Players) == 2 && g.turnIndex >= 0 && g.turnIndex < 2 &&
		g.cfg.Players[g.turnIndex] == g.cfg.Self
}

func (g *TicTacToe) play(ctx context.Context, position int) error {
	if g.ended {
		return ErrGameOver
	}
	if !g.myTurn() {
		return reconcile.ErrWrongTurn
	}
	symbol := engine.SymbolFor(g.seat())
	if _, err := engine.Mark(g.board, position, symbol); err != nil {
		return err
	}
	return g.deps.Channel.Emit(ctx, types.EventTicTacToeMove, types.TicTacToeMove{
		RoomCode: types.NormalizeRoomCode(g.cfg.RoomCode),
		Position: position,
		Symbol:   symbol,
	})
}

func (g *TicTacToe) view() TicTacToeView {
	return TicTacToeView{
		Self:      g.cfg.Self,
		Symbol:    engine.SymbolFor(g.seat()),
		Players:   append([]string(nil), g.cfg.Players...),
		Board:     g.board,
		TurnIndex: g.turnIndex,
		MyTurn:    !g.ended && g.myTurn(),
		Ended:     g.ended,
		Winner:    g.winner,
		Draw:      g.draw,
		Notice:    g.notice,
	}
}

// Play sends a mark for the local player. Nothing is sent when it is not our
// turn, the cell is taken or the game is over.
func (g *TicTacToe) Play(ctx context.Context, position int) error {
	reply := make(chan error, 1)
	if !g.post(playMsg{ctx: ctx, position: position, reply: reply}) {
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-g.done:
		return ErrClosed
	}
}

func (g *TicTacToe) Restart(ctx context.Context) error {
	reply := make(chan error, 1)
	if !g.post(tttRestartMsg{ctx: ctx, reply: reply}) {
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-g.done:
		return ErrClosed
	}
}

func (g *TicTacToe) View() TicTacToeView {
	reply := make(chan TicTacToeView, 1)
	if !g.post(tttViewMsg{reply: reply}) {
		return TicTacToeView{Self: g.cfg.Self}
	}
	select {
	case v := <-reply:
		return v
	case <-g.done:
		return TicTacToeView{Self: g.cfg.Self}
	}
}

func (g *TicTacToe) Voice() *voice.Session { return g.deps.Voice }

func (g *TicTacToe) Close() error {
	reply := make(chan error, 1)
	if !g.post(tttCloseMsg{reply: reply}) {
		<-g.done
		return nil
	}
	select {
	case err := <-reply:
		<-g.done
		return err
	case <-g.done:
		return nil
	}
}
