package types

// Snapshot converts a move push into the resync shape. Fields absent from the
// push stay absent.
func (m MakeMove) Snapshot() GameState {
	s := GameState{
		GameType:        GameDotsBoxes,
		Scores:          m.Scores,
		HorizontalLines: m.HorizontalLines,
		VerticalLines:   m.VerticalLines,
		Boxes:           m.Boxes,
		TurnIndex:       m.NewTurnIndex,
	}
	if m.VerticalLines != nil {
		s.GridSize = len(m.VerticalLines)
	}
	return s
}
