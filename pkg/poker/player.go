package poker

import (
	"fmt"

	"github.com/vctt94/pokerfabric/pkg/statemachine"
)

// PlayerStateFn is one lifecycle state of a player.
type PlayerStateFn = statemachine.StateFn[Player]

// Player holds one seat's state. Fields are owned by the Game that seated
// the player; see the concurrency notes on Game.
type Player struct {
	ID   string
	Name string

	Chips      int64
	CurrentBet int64
	HoleCards  []Card

	HasFolded bool
	IsAllIn   bool
	HasActed  bool

	// HandValue is populated at showdown.
	HandValue *HandValue

	lifecycle *statemachine.Machine[Player]
}

// NewPlayer creates a player with the given starting chips. The id doubles
// as the player's fabric address when the game runs behind a service.
func NewPlayer(id, name string, chips int64) *Player {
	p := &Player{
		ID:        id,
		Name:      name,
		Chips:     chips,
		HoleCards: make([]Card, 0, 2),
	}
	p.lifecycle = statemachine.New(p, playerIdle)
	return p
}

// Lifecycle state functions. Each inspects the player's flags and returns
// the state they imply, so a single Step after a flag change settles the
// machine. Entering a hand is an external transition done by
// ResetForHand; players keep their final state between hands, the way a
// seat display would.

func playerIdle(*Player) PlayerStateFn {
	return playerIdle
}

func playerInHand(p *Player) PlayerStateFn {
	switch {
	case p.HasFolded:
		return playerFolded
	case p.IsAllIn:
		return playerAllIn
	default:
		return playerInHand
	}
}

func playerFolded(p *Player) PlayerStateFn {
	if !p.HasFolded {
		return playerInHand
	}
	return playerFolded
}

func playerAllIn(p *Player) PlayerStateFn {
	switch {
	case p.HasFolded:
		return playerFolded
	case !p.IsAllIn:
		return playerInHand
	default:
		return playerAllIn
	}
}

// IsActive reports whether the player is still in contention for the pot.
func (p *Player) IsActive() bool {
	return !p.HasFolded
}

// ResetForHand clears the per-hand state ahead of a new deal.
func (p *Player) ResetForHand() {
	p.CurrentBet = 0
	p.HasFolded = false
	p.IsAllIn = false
	p.HasActed = false
	p.HandValue = nil
	p.lifecycle.SetState(playerInHand)
}

// updateState settles the lifecycle machine after a flag change.
func (p *Player) updateState() {
	p.lifecycle.Step()
}

// State returns the player's lifecycle state name.
func (p *Player) State() string {
	current := p.lifecycle.Current()
	switch fmt.Sprintf("%p", current) {
	case fmt.Sprintf("%p", PlayerStateFn(playerIdle)):
		return "IDLE"
	case fmt.Sprintf("%p", PlayerStateFn(playerInHand)):
		return "IN_HAND"
	case fmt.Sprintf("%p", PlayerStateFn(playerFolded)):
		return "FOLDED"
	case fmt.Sprintf("%p", PlayerStateFn(playerAllIn)):
		return "ALL_IN"
	default:
		return "UNKNOWN"
	}
}

// HandString returns the player's hole cards as a display string.
func (p *Player) HandString() string {
	if len(p.HoleCards) == 0 {
		return "no cards"
	}
	out := ""
	for i, c := range p.HoleCards {
		if i > 0 {
			out += " "
		}
		out += c.String()
	}
	return out
}
