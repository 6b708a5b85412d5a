package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ALCHACAS2/Dots-Boxes/internal/grid"
)

type commandKind int

const (
	cmdShow commandKind = iota
	cmdClaim
	cmdPlay
	cmdMic
	cmdAudio
	cmdReconnect
	cmdUnblock
	cmdRestart
	cmdHelp
	cmdQuit
)

type command struct {
	kind        commandKind
	orientation grid.Orientation
	row, col    int
	position    int
}

const helpText = `commands:
  h ROW COL | v ROW COL   claim a horizontal or vertical edge
  p N                     mark cell N (0-8) in three in a row
  mic | audio             toggle microphone / remote audio
  reconnect | unblock     retry voice / stop waiting for it
  restart | show | help | quit`

func parseCommand(line string) (command, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return command{kind: cmdShow}, nil
	}

	ints := func(want int) ([]int, error) {
		if len(fields)-1 != want {
			return nil, fmt.Errorf("%s needs %d numbers", fields[0], want)
		}
		out := make([]int, want)
		for i, f := range fields[1:] {
			n, err := strconv.Atoi(f)
			if err != nil {
				return nil, fmt.Errorf("not a number: %q", f)
			}
			out[i] = n
		}
		return out, nil
	}

	switch fields[0] {
	case "h", "v":
		n, err := ints(2)
		if err != nil {
			return command{}, err
		}
		return command{kind: cmdClaim, orientation: grid.Orientation(fields[0]), row: n[0], col: n[1]}, nil
	case "p":
		n, err := ints(1)
		if err != nil {
			return command{}, err
		}
		return command{kind: cmdPlay, position: n[0]}, nil
	case "mic":
		return command{kind: cmdMic}, nil
	case "audio":
		return command{kind: cmdAudio}, nil
	case "reconnect":
		return command{kind: cmdReconnect}, nil
	case "unblock":
		return command{kind: cmdUnblock}, nil
	case "restart":
		return command{kind: cmdRestart}, nil
	case "show":
		return command{kind: cmdShow}, nil
	case "help", "?":
		return command{kind: cmdHelp}, nil
	case "quit", "exit", "q":
		return command{kind: cmdQuit}, nil
	}
	return command{}, fmt.Errorf("unknown command %q (try help)", fields[0])
}
