package poker

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// Suit represents a card suit.
type Suit string

const (
	Spades   Suit = "♠"
	Hearts   Suit = "♥"
	Diamonds Suit = "♦"
	Clubs    Suit = "♣"
)

// Rank represents a card rank, two through ace high.
type Rank int

const (
	Two   Rank = 2
	Three Rank = 3
	Four  Rank = 4
	Five  Rank = 5
	Six   Rank = 6
	Seven Rank = 7
	Eight Rank = 8
	Nine  Rank = 9
	Ten   Rank = 10
	Jack  Rank = 11
	Queen Rank = 12
	King  Rank = 13
	Ace   Rank = 14
)

// String returns the rank's face label.
func (r Rank) String() string {
	switch r {
	case Ace:
		return "A"
	case King:
		return "K"
	case Queen:
		return "Q"
	case Jack:
		return "J"
	case Ten:
		return "10"
	default:
		if r >= Two && r <= Nine {
			return fmt.Sprintf("%d", int(r))
		}
		return "?"
	}
}

// Card represents a playing card.
type Card struct {
	rank Rank
	suit Suit
}

// NewCard creates a card with the given rank and suit.
func NewCard(rank Rank, suit Suit) Card {
	return Card{rank: rank, suit: suit}
}

// Rank returns the card's rank.
func (c Card) Rank() Rank { return c.rank }

// Suit returns the card's suit.
func (c Card) Suit() Suit { return c.suit }

// String returns a string representation of the card, e.g. "A♠".
func (c Card) String() string {
	return c.rank.String() + string(c.suit)
}

// Letter returns the suit's single-letter wire form (C, D, H or S).
func (s Suit) Letter() string {
	switch s {
	case Spades:
		return "S"
	case Hearts:
		return "H"
	case Diamonds:
		return "D"
	case Clubs:
		return "C"
	default:
		return "?"
	}
}

// cardJSON is the wire form of a card, e.g. {"rank":14,"suit":"S"}.
type cardJSON struct {
	Rank int    `json:"rank"`
	Suit string `json:"suit"`
}

// MarshalJSON implements json.Marshaler for Card.
func (c Card) MarshalJSON() ([]byte, error) {
	return json.Marshal(cardJSON{Rank: int(c.rank), Suit: c.suit.Letter()})
}

// UnmarshalJSON implements json.Unmarshaler for Card.
func (c *Card) UnmarshalJSON(data []byte) error {
	var cj cardJSON
	if err := json.Unmarshal(data, &cj); err != nil {
		return err
	}
	if cj.Rank < int(Two) || cj.Rank > int(Ace) {
		return fmt.Errorf("invalid card rank: %d", cj.Rank)
	}
	suit, err := parseSuit(cj.Suit)
	if err != nil {
		return err
	}
	c.rank = Rank(cj.Rank)
	c.suit = suit
	return nil
}

func parseSuit(s string) (Suit, error) {
	switch s {
	case "♠", "s", "S", "spades", "Spades":
		return Spades, nil
	case "♥", "h", "H", "hearts", "Hearts":
		return Hearts, nil
	case "♦", "d", "D", "diamonds", "Diamonds":
		return Diamonds, nil
	case "♣", "c", "C", "clubs", "Clubs":
		return Clubs, nil
	default:
		return "", fmt.Errorf("invalid card suit: %q", s)
	}
}

func parseRank(s string) (Rank, error) {
	switch s {
	case "A", "a":
		return Ace, nil
	case "K", "k":
		return King, nil
	case "Q", "q":
		return Queen, nil
	case "J", "j":
		return Jack, nil
	case "T", "t", "10":
		return Ten, nil
	case "9":
		return Nine, nil
	case "8":
		return Eight, nil
	case "7":
		return Seven, nil
	case "6":
		return Six, nil
	case "5":
		return Five, nil
	case "4":
		return Four, nil
	case "3":
		return Three, nil
	case "2":
		return Two, nil
	default:
		return 0, fmt.Errorf("invalid card rank: %q", s)
	}
}

// ParseCard parses shorthand such as "As", "kd", "10h" or "T♣" into a Card.
func ParseCard(s string) (Card, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return Card{}, fmt.Errorf("invalid card: %q", s)
	}
	// The suit is always the trailing rune.
	runes := []rune(s)
	rank, err := parseRank(string(runes[:len(runes)-1]))
	if err != nil {
		return Card{}, err
	}
	suit, err := parseSuit(string(runes[len(runes)-1]))
	if err != nil {
		return Card{}, err
	}
	return Card{rank: rank, suit: suit}, nil
}

// MustParseCards parses a space-separated list of card shorthands and
// panics on malformed input. Intended for fixtures and tests.
func MustParseCards(s string) []Card {
	fields := strings.Fields(s)
	cards := make([]Card, 0, len(fields))
	for _, f := range fields {
		c, err := ParseCard(f)
		if err != nil {
			panic(err)
		}
		cards = append(cards, c)
	}
	return cards
}
