package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/ALCHACAS2/Dots-Boxes/internal/game"
	"github.com/ALCHACAS2/Dots-Boxes/internal/grid"
	"github.com/ALCHACAS2/Dots-Boxes/internal/lobby"
	"github.com/ALCHACAS2/Dots-Boxes/internal/voice"
	"github.com/ALCHACAS2/Dots-Boxes/pkg/types"
)

func renderLobby(w io.Writer, v lobby.View) {
	fmt.Fprintf(w, "lobby: %s", v.Status)
	if len(v.Players) > 0 {
		fmt.Fprintf(w, " players=%s", strings.Join(types.Names(v.Players), ","))
	}
	if v.RoomGameType != "" {
		fmt.Fprintf(w, " game=%s size=%d", v.RoomGameType, v.RoomGridSize)
	}
	fmt.Fprintln(w)
	if v.Notice != "" {
		fmt.Fprintln(w, "!", v.Notice)
	}
}

// renderGrid draws dots as '+', claimed edges as '---' and '|', and each
// completed box as its owner's initial.
func renderGrid(w io.Writer, g grid.Grid) {
	n := g.Size()
	for r := 0; r <= n; r++ {
		var b strings.Builder
		for c := 0; c < n; c++ {
			b.WriteString("+")
			if g.IsEdgeClaimed(grid.Horizontal, r, c) {
				b.WriteString("---")
			} else {
				b.WriteString("   ")
			}
		}
		b.WriteString("+")
		fmt.Fprintln(w, b.String())
		if r == n {
			break
		}

		b.Reset()
		for c := 0; c <= n; c++ {
			if g.IsEdgeClaimed(grid.Vertical, r, c) {
				b.WriteString("|")
			} else {
				b.WriteString(" ")
			}
			if c < n {
				owner := " "
				if o := g.Owner(r, c); o != "" {
					owner = strings.ToUpper(string([]rune(o)[:1]))
				}
				b.WriteString(" " + owner + " ")
			}
		}
		fmt.Fprintln(w, b.String())
	}
}

func renderDots(w io.Writer, v game.DotsBoxView) {
	renderGrid(w, v.Grid)
	for _, p := range v.Players {
		marker := " "
		if p == v.Current {
			marker = ">"
		}
		fmt.Fprintf(w, "%s %s: %d\n", marker, p, v.Scores[p])
	}
	switch {
	case v.Outcome.Draw:
		fmt.Fprintln(w, "game over: draw")
	case v.Outcome.Finished:
		fmt.Fprintf(w, "game over: %s wins\n", v.Outcome.Winner)
	case v.MyTurn:
		fmt.Fprintln(w, "your turn")
	}
}

func renderTicTacToe(w io.Writer, v game.TicTacToeView) {
	for r := 0; r < 3; r++ {
		cells := make([]string, 3)
		for c := range cells {
			i := r*3 + c
			cells[c] = v.Board[i]
			if cells[c] == "" {
				cells[c] = fmt.Sprint(i)
			}
		}
		fmt.Fprintf(w, " %s\n", strings.Join(cells, " | "))
	}
	fmt.Fprintf(w, "you are %s\n", v.Symbol)
	switch {
	case v.Draw:
		fmt.Fprintln(w, "game over: draw")
	case v.Ended:
		fmt.Fprintf(w, "game over: %s wins\n", v.Winner)
	case v.MyTurn:
		fmt.Fprintln(w, "your turn")
	}
	if v.Notice != "" {
		fmt.Fprintln(w, "!", v.Notice)
	}
}

func renderVoice(w io.Writer, v voice.View) {
	mic, audio := "off", "off"
	if v.MicEnabled {
		mic = "on"
	}
	if v.AudioEnabled {
		audio = "on"
	}
	fmt.Fprintf(w, "voice: %s mic=%s audio=%s", v.Phase, mic, audio)
	if v.LocalDescription != "" {
		fmt.Fprintf(w, " sent=%s", v.LocalDescription)
	}
	if v.Connecting {
		fmt.Fprint(w, " (connecting, controls blocked)")
	}
	fmt.Fprintln(w)
}
