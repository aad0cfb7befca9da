package domain

// Point values carried by score cards. Every other rank is worth nothing.
const (
	FivePoints = 5
	TenPoints  = 10
	KingPoints = 10
)

// DunMinCards is the smallest same-rank set that counts as a dun.
const DunMinCards = 7

// PointsFor returns the point value of a single card.
func PointsFor(c Card) int {
	switch c.Rank {
	case Rank5:
		return FivePoints
	case Rank10:
		return TenPoints
	case RankK:
		return KingPoints
	default:
		return 0
	}
}

// RankMultipliers returns the settlement multiplier for each finishing position.
// Index 0 is first place. Unknown table sizes settle to zero.
func RankMultipliers(playerCount int) []int {
	switch playerCount {
	case 4:
		return []int{2, 1, -1, -2}
	case 3:
		return []int{3, -1, -2}
	case 2:
		return []int{1, -1}
	default:
		return make([]int, playerCount)
	}
}
