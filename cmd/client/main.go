package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ALCHACAS2/Dots-Boxes/internal/channel"
	"github.com/ALCHACAS2/Dots-Boxes/internal/config"
	"github.com/ALCHACAS2/Dots-Boxes/internal/game"
	"github.com/ALCHACAS2/Dots-Boxes/internal/lobby"
	"github.com/ALCHACAS2/Dots-Boxes/internal/logging"
	"github.com/ALCHACAS2/Dots-Boxes/internal/voice"
	"github.com/ALCHACAS2/Dots-Boxes/internal/voice/pionlink"
	"github.com/ALCHACAS2/Dots-Boxes/pkg/types"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}

	name := flag.String("name", "", "player name")
	code := flag.String("room", "", "room code")
	gameType := flag.String("game", string(types.GameDotsBoxes), "dots-boxes or tic-tac-toe")
	size := flag.Int("grid", types.DefaultGridSize, "boxes per side")
	flag.StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "relay websocket url")
	flag.StringVar(&cfg.MicFile, "mic", cfg.MicFile, "Ogg/Opus file used as the microphone")
	flag.Parse()

	req := lobby.Request{Name: *name, RoomCode: *code, GridSize: *size, GameType: types.GameType(*gameType)}
	if _, err := lobby.Validate(req); err != nil {
		return err
	}

	// Logs go to stderr so the board on stdout stays readable.
	log, err := logging.New(cfg.LogLevel, false)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := channel.Dial(ctx, cfg.ServerURL, log)
	if err != nil {
		return err
	}

	a := newApp(ctx, cfg, conn, log, os.Stdout)
	defer a.close()
	if err := a.lobby.Join(ctx, req); err != nil {
		return err
	}

	lines := make(chan string)
	go readLines(os.Stdin, lines)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-conn.Done():
			if err := conn.Err(); err != nil {
				return fmt.Errorf("connection lost: %w", err)
			}
			return errors.New("connection closed")
		case <-gctx.Done():
			return nil
		}
	})
	g.Go(func() error {
		err := a.loop(gctx, lines)
		stop()
		return err
	})
	return g.Wait()
}

func readLines(r io.Reader, out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		out <- sc.Text()
	}
}

// view is what the client needs from either game.
type view interface {
	Voice() *voice.Session
	Restart(ctx context.Context) error
	Close() error
}

type app struct {
	ctx  context.Context
	cfg  config.Client
	conn *channel.Conn
	log  *zap.Logger
	out  io.Writer

	lobby   *lobby.Lobby
	refresh chan struct{}

	mu   sync.Mutex
	game view
}

func newApp(ctx context.Context, cfg config.Client, conn *channel.Conn, log *zap.Logger, out io.Writer) *app {
	a := &app{
		ctx:     ctx,
		cfg:     cfg,
		conn:    conn,
		log:     log,
		out:     out,
		refresh: make(chan struct{}, 1),
	}
	a.lobby = lobby.NewLobby(ctx, conn, log, lobby.Hooks{
		OnChange: func(lobby.View) { a.poke() },
		OnStart:  a.start,
	})
	return a
}

func (a *app) poke() {
	select {
	case a.refresh <- struct{}{}:
	default:
	}
}

// start runs on the lobby goroutine before the next server event is handled.
func (a *app) start(st lobby.Start) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.game != nil {
		a.log.Info("already playing, ignoring startGame")
		return
	}

	vs, err := voice.Start(a.ctx, voice.Config{
		RoomCode:       st.RoomCode,
		Role:           voice.RoleFor(st.Players, st.Self),
		ConnectTimeout: a.cfg.ConnectTimeout,
	}, voice.Deps{
		Channel:    a.conn,
		NewPeer:    pionlink.NewFactory(pionlink.Config{STUNURLs: a.cfg.STUNURLs, Logger: a.log}),
		Microphone: pionlink.NewMicrophone(a.cfg.MicFile, a.log),
		Output:     pionlink.NewPlayback(nil),
		OnChange:   func(voice.View) { a.poke() },
		Logger:     a.log,
	})
	if err != nil {
		a.log.Warn("voice unavailable", zap.Error(err))
		vs = nil
	}

	deps := game.Deps{Channel: a.conn, Voice: vs, Logger: a.log, OnChange: a.poke}
	players := types.Names(st.Players)
	var g view
	switch st.GameType {
	case types.GameTicTacToe:
		g, err = game.NewTicTacToe(a.ctx, game.TicTacToeConfig{RoomCode: st.RoomCode, Self: st.Self, Players: players}, deps)
	default:
		g, err = game.NewDotsBox(a.ctx, game.DotsBoxConfig{RoomCode: st.RoomCode, Self: st.Self, Players: players, GridSize: st.GridSize}, deps)
	}
	if err != nil {
		a.log.Error("start game", zap.Error(err))
		if vs != nil {
			_ = vs.Close()
		}
		return
	}
	a.game = g
	a.poke()
}

func (a *app) current() view {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.game
}

func (a *app) loop(ctx context.Context, lines <-chan string) error {
	fmt.Fprintln(a.out, helpText)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.lobby.Started():
		case <-a.refresh:
			a.render()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			cmd, err := parseCommand(line)
			if err != nil {
				fmt.Fprintln(a.out, err)
				continue
			}
			if cmd.kind == cmdQuit {
				return nil
			}
			if err := a.exec(ctx, cmd); err != nil {
				fmt.Fprintln(a.out, err)
			}
		}
	}
}

func (a *app) exec(ctx context.Context, cmd command) error {
	if cmd.kind == cmdHelp {
		fmt.Fprintln(a.out, helpText)
		return nil
	}
	g := a.current()
	if g == nil {
		if cmd.kind != cmdShow {
			return errors.New("waiting for an opponent")
		}
		a.render()
		return nil
	}
	vs := g.Voice()

	switch cmd.kind {
	case cmdClaim:
		d, ok := g.(*game.DotsBox)
		if !ok {
			return errors.New("edges only exist in the box game")
		}
		completed, err := d.Claim(ctx, cmd.orientation, cmd.row, cmd.col)
		if err != nil {
			return err
		}
		if len(completed) > 0 {
			fmt.Fprintf(a.out, "closed %d box(es), go again\n", len(completed))
		}
	case cmdPlay:
		t, ok := g.(*game.TicTacToe)
		if !ok {
			return errors.New("cells only exist in three in a row")
		}
		return t.Play(ctx, cmd.position)
	case cmdRestart:
		return g.Restart(ctx)
	case cmdMic, cmdAudio, cmdReconnect, cmdUnblock:
		if vs == nil {
			return errors.New("voice is unavailable")
		}
		return voiceCommand(ctx, vs, cmd.kind)
	}
	a.render()
	return nil
}

func voiceCommand(ctx context.Context, vs *voice.Session, kind commandKind) error {
	switch kind {
	case cmdMic:
		if vs.View().Connecting {
			return errors.New("voice is still connecting (unblock to skip)")
		}
		err := vs.ToggleMic(ctx)
		var me *voice.MediaError
		if errors.As(err, &me) {
			return errors.New(me.Message())
		}
		return err
	case cmdAudio:
		vs.ToggleAudio()
	case cmdReconnect:
		return vs.Reconnect()
	case cmdUnblock:
		vs.ForceEnableControls()
	}
	return nil
}

func (a *app) render() {
	fmt.Fprintln(a.out)
	switch g := a.current().(type) {
	case *game.DotsBox:
		renderDots(a.out, g.View())
	case *game.TicTacToe:
		renderTicTacToe(a.out, g.View())
	default:
		renderLobby(a.out, a.lobby.State())
		return
	}
	if vs := a.current().Voice(); vs != nil {
		renderVoice(a.out, vs.View())
	}
}

func (a *app) close() error {
	a.lobby.Close()
	var err error
	if g := a.current(); g != nil {
		err = g.Close()
	}
	return multierr.Append(err, a.conn.Close())
}
