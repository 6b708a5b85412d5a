package types

import (
	"encoding/json"
	"strings"

	"github.com/pion/webrtc/v4"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Client -> Server
const (
	EventJoinRoom      = "joinRoom"
	EventMakeMove      = "makeMove"
	EventSignal        = "signal"
	EventRestartGame   = "restartGame"
	EventTicTacToeMove = "ticTacToeMove"
)

// Server -> Client
const (
	EventPlayersUpdate      = "playersUpdate"
	EventStartGame          = "startGame"
	EventOpponentMove       = "opponentMove"
	EventGameState          = "gameState"
	EventRoomFull           = "roomFull"
	EventTicTacToeMoveMade  = "ticTacToeMoveMade"
	EventTicTacToeGameEnded = "ticTacToeGameEnded"
	EventGameRestarted      = "gameRestarted"
	EventInvalidMove        = "invalidMove"
	EventError              = "error"
)

type GameType string

const (
	GameDotsBoxes GameType = "dots-boxes"
	GameTicTacToe GameType = "tic-tac-toe"
)

func (g GameType) Valid() bool {
	return g == GameDotsBoxes || g == GameTicTacToe
}

const (
	MinGridSize     = 2
	MaxGridSize     = 10
	DefaultGridSize = 3
)

// Envelope is one frame on the session channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type Player struct {
	Name string `json:"name"`
}

type JoinRoom struct {
	RoomCode string   `json:"roomCode"`
	Name     string   `json:"name"`
	GridSize int      `json:"gridSize,omitempty"`
	GameType GameType `json:"gameType,omitempty"`
}

type Move struct {
	Type string `json:"type"` // "h" | "v"
	Row  int    `json:"row"`
	Col  int    `json:"col"`
}

// MakeMove is a full-state push after a local move. The server forwards the
// same shape as opponentMove.
type MakeMove struct {
	RoomCode        string         `json:"roomCode,omitempty"`
	Move            Move           `json:"move"`
	NewTurnIndex    *int           `json:"newTurnIndex,omitempty"`
	Scores          map[string]int `json:"scores,omitempty"`
	HorizontalLines [][]bool       `json:"horizontalLines,omitempty"`
	VerticalLines   [][]bool       `json:"verticalLines,omitempty"`
	Boxes           [][]*string    `json:"boxes,omitempty"`
}

// GameState is a full resync for either game.
type GameState struct {
	GameType        GameType       `json:"gameType,omitempty"`
	GridSize        int            `json:"gridSize,omitempty"`
	TurnIndex       *int           `json:"turnIndex,omitempty"`
	Scores          map[string]int `json:"scores,omitempty"`
	HorizontalLines [][]bool       `json:"horizontalLines,omitempty"`
	VerticalLines   [][]bool       `json:"verticalLines,omitempty"`
	Boxes           [][]*string    `json:"boxes,omitempty"`

	Board     []*string `json:"board,omitempty"`
	GameEnded bool      `json:"gameEnded,omitempty"`
	Winner    string    `json:"winner,omitempty"`
	IsDraw    bool      `json:"isDraw,omitempty"`
}

type Signal struct {
	RoomCode string     `json:"roomCode,omitempty"`
	Data     SignalData `json:"data"`
}

// SignalData carries exactly one of offer, answer or candidate.
type SignalData struct {
	Offer     *webrtc.SessionDescription `json:"offer,omitempty"`
	Answer    *webrtc.SessionDescription `json:"answer,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

type RestartGame struct {
	RoomCode string `json:"roomCode"`
}

type PlayersUpdate struct {
	Players  []Player `json:"players"`
	GridSize int      `json:"gridSize,omitempty"`
	GameType GameType `json:"gameType,omitempty"`
}

type StartGame struct {
	Players  []Player `json:"players"`
	GridSize int      `json:"gridSize"`
	GameType GameType `json:"gameType"`
}

type TicTacToeMove struct {
	RoomCode string `json:"roomCode"`
	Position int    `json:"position"`
	Symbol   string `json:"symbol"`
}

type TicTacToeMoveMade struct {
	Board     []*string `json:"board"`
	TurnIndex int       `json:"turnIndex"`
}

type TicTacToeGameEnded struct {
	Result string `json:"result"` // "win" | "draw"
	Winner string `json:"winner,omitempty"`
}

type GameRestarted struct {
	Board []*string `json:"board"`
}

type InvalidMove struct {
	Position int `json:"position"`
}

type Error struct {
	Message string `json:"message"`
}

// NormalizeRoomCode trims and lower-cases a room code. A Caser carries state,
// so each call gets its own.
func NormalizeRoomCode(code string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(code))
}

func Names(players []Player) []string {
	out := make([]string, len(players))
	for i, p := range players {
		out[i] = p.Name
	}
	return out
}

func IndexOf(players []Player, name string) int {
	for i, p := range players {
		if p.Name == name {
			return i
		}
	}
	return -1
}
