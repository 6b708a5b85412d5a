package reconcile

import (
	"errors"
	"fmt"
	"maps"

	"github.com/ALCHACAS2/Dots-Boxes/internal/engine"
	"github.com/ALCHACAS2/Dots-Boxes/internal/grid"
	"github.com/ALCHACAS2/Dots-Boxes/pkg/types"
)

var ErrWrongTurn = errors.New("not your turn")
var ErrBadSnapshot = errors.New("malformed snapshot")

// State is the single game document of a box-game room. Values are treated
// as immutable: every transition returns a new State.
type State struct {
	Grid      grid.Grid
	Players   []string
	TurnIndex int
	Scores    map[string]int
}

func New(size int, players []string) (State, error) {
	g, err := grid.New(size)
	if err != nil {
		return State{}, err
	}
	scores := make(map[string]int, len(players))
	for _, p := range players {
		scores[p] = 0
	}
	return State{
		Grid:      g,
		Players:   append([]string(nil), players...),
		TurnIndex: 0,
		Scores:    scores,
	}, nil
}

// Current is the player whose turn it is, or "" while a seat is empty.
func (s State) Current() string {
	if len(s.Players) < engine.Seats || s.TurnIndex < 0 || s.TurnIndex >= len(s.Players) {
		return ""
	}
	return s.Players[s.TurnIndex]
}

// ApplyLocalMove claims an edge for self. On rejection the returned state is
// s unchanged and nothing must be sent.
func ApplyLocalMove(s State, self string, o grid.Orientation, row, col int) (State, []grid.Box, error) {
	if self == "" || s.Current() != self {
		return s, nil, ErrWrongTurn
	}

	res, err := engine.ApplyEdge(s.Grid, o, row, col, self)
	if err != nil {
		return s, nil, err
	}

	next := State{
		Grid:      res.Grid,
		Players:   s.Players,
		TurnIndex: engine.NextTurn(s.TurnIndex, len(res.Completed)),
		Scores:    maps.Clone(s.Scores),
	}
	if next.Scores == nil {
		next.Scores = map[string]int{}
	}
	next.Scores[self] += len(res.Completed)
	return next, res.Completed, nil
}

// ApplyRemoteSnapshot replaces local state with whatever the network sent
// last. Fields missing from the snapshot keep their local value. A snapshot
// whose matrices do not form a grid is rejected and s is returned.
func ApplyRemoteSnapshot(s State, snap types.GameState) (State, error) {
	next := State{
		Grid:      s.Grid,
		Players:   s.Players,
		TurnIndex: s.TurnIndex,
		Scores:    s.Scores,
	}

	if snap.HorizontalLines != nil || snap.VerticalLines != nil || snap.Boxes != nil {
		g, err := mergeGrid(s.Grid, snap)
		if err != nil {
			return s, err
		}
		next.Grid = g
	} else if snap.GridSize > 0 && snap.GridSize != s.Grid.Size() {
		g, err := grid.New(snap.GridSize)
		if err != nil {
			return s, fmt.Errorf("%w: %w", ErrBadSnapshot, err)
		}
		next.Grid = g
	}

	if snap.TurnIndex != nil {
		if *snap.TurnIndex < 0 || *snap.TurnIndex >= engine.Seats {
			return s, fmt.Errorf("%w: turn index %d", ErrBadSnapshot, *snap.TurnIndex)
		}
		next.TurnIndex = *snap.TurnIndex
	}
	if snap.Scores != nil {
		next.Scores = maps.Clone(snap.Scores)
	}
	return next, nil
}

func mergeGrid(prev grid.Grid, snap types.GameState) (grid.Grid, error) {
	h, v, boxes := prev.Matrices()
	if snap.HorizontalLines != nil {
		h = snap.HorizontalLines
	}
	if snap.VerticalLines != nil {
		v = snap.VerticalLines
	}
	if snap.Boxes != nil {
		boxes = snap.Boxes
	}
	g, err := grid.FromMatrices(h, v, boxes)
	if err != nil {
		return prev, fmt.Errorf("%w: %w", ErrBadSnapshot, err)
	}
	return g, nil
}

// Snapshot is the full wire form of s.
func (s State) Snapshot() types.GameState {
	h, v, boxes := s.Grid.Matrices()
	turn := s.TurnIndex
	return types.GameState{
		GameType:        types.GameDotsBoxes,
		GridSize:        s.Grid.Size(),
		TurnIndex:       &turn,
		Scores:          maps.Clone(s.Scores),
		HorizontalLines: h,
		VerticalLines:   v,
		Boxes:           boxes,
	}
}

// MoveMessage builds the state push that follows a local move.
func (s State) MoveMessage(roomCode string, o grid.Orientation, row, col int) types.MakeMove {
	snap := s.Snapshot()
	return types.MakeMove{
		RoomCode:        types.NormalizeRoomCode(roomCode),
		Move:            types.Move{Type: string(o), Row: row, Col: col},
		NewTurnIndex:    snap.TurnIndex,
		Scores:          snap.Scores,
		HorizontalLines: snap.HorizontalLines,
		VerticalLines:   snap.VerticalLines,
		Boxes:           snap.Boxes,
	}
}

type Outcome struct {
	Finished bool
	Winner   string
	Draw     bool
}

func (s State) ScoreTotal() int {
	total := 0
	for _, v := range s.Scores {
		total += v
	}
	return total
}

// Outcome reports completion once every box is scored. The winner needs a
// strictly higher score than everyone else.
func (s State) Outcome() Outcome {
	size := s.Grid.Size()
	if size == 0 || s.ScoreTotal() != size*size {
		return Outcome{}
	}

	best, bestScore, tied := "", -1, false
	for _, p := range s.Players {
		switch score := s.Scores[p]; {
		case score > bestScore:
			best, bestScore, tied = p, score, false
		case score == bestScore:
			tied = true
		}
	}
	if tied || best == "" {
		return Outcome{Finished: true, Draw: true}
	}
	return Outcome{Finished: true, Winner: best}
}
