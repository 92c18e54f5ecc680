package rules

import "github.com/brensch/numberflow/game"

// IsWon reports whether the center cell holds the target value.
func IsWon(g *game.Grid, target int) bool {
	return g.At(g.Center()).Value == target
}

// IsLost reports whether either outermost column holds a settled cell.
func IsLost(g *game.Grid) bool {
	return g.ColumnOccupied(0) || g.ColumnOccupied(g.Width-1)
}

// Evaluate returns the terminal phase for the grid, or current when the
// round goes on. A win takes precedence over a simultaneous loss.
func Evaluate(g *game.Grid, target int, current game.Phase) game.Phase {
	if IsWon(g, target) {
		return game.Won
	}
	if IsLost(g) {
		return game.Lost
	}
	return current
}
