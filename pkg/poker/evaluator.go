package poker

import (
	"fmt"
	"sort"
)

// HandRank represents the category of a poker hand, weakest first.
type HandRank int

const (
	HighCard HandRank = iota
	Pair
	TwoPair
	ThreeOfAKind
	Straight
	Flush
	FullHouse
	FourOfAKind
	StraightFlush
	RoyalFlush
)

// String returns a human-readable name for the hand rank.
func (hr HandRank) String() string {
	switch hr {
	case HighCard:
		return "High Card"
	case Pair:
		return "Pair"
	case TwoPair:
		return "Two Pair"
	case ThreeOfAKind:
		return "Three of a Kind"
	case Straight:
		return "Straight"
	case Flush:
		return "Flush"
	case FullHouse:
		return "Full House"
	case FourOfAKind:
		return "Four of a Kind"
	case StraightFlush:
		return "Straight Flush"
	case RoyalFlush:
		return "Royal Flush"
	default:
		return "Unknown"
	}
}

// HandValue is a complete evaluation of a hand: its category, the
// category-specific tie-breakers in comparison order, and the five cards
// that produced it.
type HandValue struct {
	Rank        HandRank
	TieBreakers []int
	BestHand    []Card
}

// Describe returns a short human-readable summary, e.g. "Straight Flush".
func (hv HandValue) Describe() string {
	return hv.Rank.String()
}

// rankGroup is a run of equal-ranked cards within a hand.
type rankGroup struct {
	rank  int
	count int
}

// groupRanks buckets cards by rank and orders the buckets by count then
// rank, both descending. The ordering drives every tie-breaker vector.
func groupRanks(cards []Card) []rankGroup {
	counts := make(map[int]int, len(cards))
	for _, c := range cards {
		counts[int(c.rank)]++
	}
	groups := make([]rankGroup, 0, len(counts))
	for rank, count := range counts {
		groups = append(groups, rankGroup{rank: rank, count: count})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].count != groups[j].count {
			return groups[i].count > groups[j].count
		}
		return groups[i].rank > groups[j].rank
	})
	return groups
}

// straightHigh returns the top rank of the straight formed by exactly five
// distinct ranks, or 0 if they do not form one. The wheel A-2-3-4-5 counts
// as a straight with top rank 5.
func straightHigh(ranksDesc []int) int {
	if len(ranksDesc) != 5 {
		return 0
	}
	run := true
	for i := 0; i < 4; i++ {
		if ranksDesc[i] != ranksDesc[i+1]+1 {
			run = false
			break
		}
	}
	if run {
		return ranksDesc[0]
	}
	if ranksDesc[0] == 14 && ranksDesc[1] == 5 && ranksDesc[2] == 4 &&
		ranksDesc[3] == 3 && ranksDesc[4] == 2 {
		return 5
	}
	return 0
}

// classify determines the category and tie-breakers of up to five cards.
// Flushes and straights require a full five; smaller groups still classify
// into the pair family with whatever kickers exist.
func classify(cards []Card) (HandRank, []int) {
	ranksDesc := make([]int, len(cards))
	for i, c := range cards {
		ranksDesc[i] = int(c.rank)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ranksDesc)))

	groups := groupRanks(cards)

	flush := len(cards) == 5
	for _, c := range cards {
		if c.suit != cards[0].suit {
			flush = false
			break
		}
	}
	high := 0
	if len(groups) == 5 {
		high = straightHigh(ranksDesc)
	}

	switch {
	case flush && high == 14:
		return RoyalFlush, nil
	case flush && high > 0:
		return StraightFlush, []int{high}
	case groups[0].count == 4:
		return FourOfAKind, []int{groups[0].rank, groups[1].rank}
	case groups[0].count == 3 && len(groups) > 1 && groups[1].count >= 2:
		return FullHouse, []int{groups[0].rank, groups[1].rank}
	case flush:
		return Flush, ranksDesc
	case high > 0:
		return Straight, []int{high}
	case groups[0].count == 3:
		return ThreeOfAKind, groupVector(groups)
	case groups[0].count == 2 && len(groups) > 1 && groups[1].count == 2:
		return TwoPair, groupVector(groups)
	case groups[0].count == 2:
		return Pair, groupVector(groups)
	default:
		return HighCard, ranksDesc
	}
}

// groupVector flattens groups into a tie-breaker vector: primary group
// rank first, then the remaining group ranks in descending order.
func groupVector(groups []rankGroup) []int {
	vec := make([]int, len(groups))
	for i, g := range groups {
		vec[i] = g.rank
	}
	return vec
}

// Evaluate classifies the given cards as a single hand without searching
// subsets. Most callers want EvaluateBestHand.
func Evaluate(cards []Card) HandValue {
	rank, tb := classify(cards)
	return HandValue{
		Rank:        rank,
		TieBreakers: tb,
		BestHand:    append([]Card(nil), cards...),
	}
}

// EvaluateBestHand finds the best five-card hand among 2 to 7 cards. With
// fewer than five cards it classifies the cards it has.
func EvaluateBestHand(cards []Card) (HandValue, error) {
	if len(cards) < 2 || len(cards) > 7 {
		return HandValue{}, fmt.Errorf("evaluate: need 2 to 7 cards, got %d", len(cards))
	}
	if len(cards) <= 5 {
		return Evaluate(cards), nil
	}

	var best HandValue
	first := true
	for _, combo := range combinations(cards, 5) {
		hv := Evaluate(combo)
		if first || CompareHands(hv, best) > 0 {
			best = hv
			first = false
		}
	}
	return best, nil
}

// combinations generates all k-card combinations of cards.
func combinations(cards []Card, k int) [][]Card {
	var out [][]Card
	if k <= 0 || k > len(cards) {
		return out
	}

	var walk func(start int, current []Card)
	walk = func(start int, current []Card) {
		if len(current) == k {
			combo := make([]Card, k)
			copy(combo, current)
			out = append(out, combo)
			return
		}
		for i := start; i <= len(cards)-(k-len(current)); i++ {
			walk(i+1, append(current, cards[i]))
		}
	}
	walk(0, make([]Card, 0, k))
	return out
}

// CompareHands compares two hand values lexicographically over
// (rank, tie-breakers) and returns -1, 0 or 1. Equal hands are real:
// callers must be prepared to split.
func CompareHands(a, b HandValue) int {
	if a.Rank != b.Rank {
		if a.Rank < b.Rank {
			return -1
		}
		return 1
	}
	n := len(a.TieBreakers)
	if len(b.TieBreakers) < n {
		n = len(b.TieBreakers)
	}
	for i := 0; i < n; i++ {
		if a.TieBreakers[i] != b.TieBreakers[i] {
			if a.TieBreakers[i] < b.TieBreakers[i] {
				return -1
			}
			return 1
		}
	}
	// Partial hands can differ in kicker count; more cards never lose
	// to a prefix of themselves.
	switch {
	case len(a.TieBreakers) < len(b.TieBreakers):
		return -1
	case len(a.TieBreakers) > len(b.TieBreakers):
		return 1
	}
	return 0
}

// DetermineWinners returns the indices of every hand tied with the
// maximum.
func DetermineWinners(values []HandValue) []int {
	if len(values) == 0 {
		return nil
	}
	winners := []int{0}
	best := values[0]
	for i := 1; i < len(values); i++ {
		switch CompareHands(values[i], best) {
		case 1:
			best = values[i]
			winners = winners[:1]
			winners[0] = i
		case 0:
			winners = append(winners, i)
		}
	}
	return winners
}
