package scoring

import "wushik/internal/domain"

// DunPayout is what a dun is worth: each opponent pays Unit, the player gains Gain.
type DunPayout struct {
	Unit int
	Gain int
}

// PayDun prices a dun of cardCount cards at a table of playerCount. The unit is
// base for seven cards and doubles for every extra card.
func PayDun(cardCount, playerCount, base int) DunPayout {
	if cardCount < domain.DunMinCards || playerCount < 2 || base <= 0 {
		return DunPayout{}
	}
	unit := base << (cardCount - domain.DunMinCards)
	return DunPayout{Unit: unit, Gain: unit * (playerCount - 1)}
}
