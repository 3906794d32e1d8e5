package poker

import (
	"math/rand"
)

// Deck represents a deck of cards. The zero value is not usable; create
// decks with NewDeck.
type Deck struct {
	cards []Card
	rng   *rand.Rand
}

// NewDeck creates a full 52-card deck in canonical order using the given
// random number generator for shuffles. The rng is injectable so games
// can be made deterministic.
func NewDeck(rng *rand.Rand) *Deck {
	d := &Deck{
		cards: make([]Card, 0, 52),
		rng:   rng,
	}
	d.Reset()
	return d
}

// Reset restores the deck to all 52 cards in canonical order.
func (d *Deck) Reset() {
	d.cards = d.cards[:0]
	for _, suit := range []Suit{Spades, Hearts, Diamonds, Clubs} {
		for rank := Two; rank <= Ace; rank++ {
			d.cards = append(d.cards, Card{rank: rank, suit: suit})
		}
	}
}

// Shuffle randomizes the order of the remaining cards.
func (d *Deck) Shuffle() {
	d.rng.Shuffle(len(d.cards), func(i, j int) {
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	})
}

// Deal removes and returns the top card. The second return is false when
// the deck is empty.
func (d *Deck) Deal() (Card, bool) {
	if len(d.cards) == 0 {
		return Card{}, false
	}
	card := d.cards[0]
	d.cards = d.cards[1:]
	return card, true
}

// Size returns the number of cards remaining.
func (d *Deck) Size() int {
	return len(d.cards)
}
