package engine

// Seats is the number of players in a room.
const Seats = 2

// NextTurn applies the extra-turn-on-capture rule: the mover keeps the turn
// when the move completed at least one box.
func NextTurn(turnIndex, completed int) int {
	if completed > 0 {
		return turnIndex
	}
	return (turnIndex + 1) % Seats
}
