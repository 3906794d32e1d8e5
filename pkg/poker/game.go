// Package poker implements a Texas Hold'em table: deck, hand evaluation
// and a betting engine driven through a UI callback port.
package poker

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/decred/slog"

	"github.com/vctt94/pokerfabric/pkg/statemachine"
)

// GamePhase is the engine's position in a hand.
type GamePhase int

const (
	PhaseWaiting GamePhase = iota
	PhasePreFlop
	PhaseFlop
	PhaseTurn
	PhaseRiver
	PhaseShowdown
	PhaseHandComplete
)

// String returns the phase name.
func (p GamePhase) String() string {
	switch p {
	case PhaseWaiting:
		return "Waiting"
	case PhasePreFlop:
		return "PreFlop"
	case PhaseFlop:
		return "Flop"
	case PhaseTurn:
		return "Turn"
	case PhaseRiver:
		return "River"
	case PhaseShowdown:
		return "Showdown"
	case PhaseHandComplete:
		return "HandComplete"
	default:
		return "Unknown"
	}
}

// Action is a betting move.
type Action int

const (
	ActionFold Action = iota
	ActionCheck
	ActionCall
	ActionRaise
)

// String returns the action verb.
func (a Action) String() string {
	switch a {
	case ActionFold:
		return "fold"
	case ActionCheck:
		return "check"
	case ActionCall:
		return "call"
	case ActionRaise:
		return "raise"
	default:
		return "unknown"
	}
}

// ParseAction parses an action verb as carried on the wire.
func ParseAction(s string) (Action, error) {
	switch s {
	case "fold":
		return ActionFold, nil
	case "check":
		return ActionCheck, nil
	case "call":
		return ActionCall, nil
	case "raise":
		return ActionRaise, nil
	default:
		return 0, fmt.Errorf("unknown action %q", s)
	}
}

// Rule violations reject the action without changing state. Misuse, such
// as starting a hand without enough players, is reported as an error too
// and leaves the engine untouched.
var (
	ErrTooFewPlayers  = errors.New("need at least two players")
	ErrTooManyPlayers = errors.New("too many players for the table")
	ErrHandInProgress = errors.New("hand already in progress")
	ErrNoBettingRound = errors.New("no betting round in progress")
	ErrMustCallOrFold = errors.New("cannot check a live bet")
	ErrRaiseTooSmall  = errors.New("raise below the minimum")
)

// Table defaults, in chips.
const (
	DefaultSmallBlind    = 5
	DefaultBigBlind      = 10
	DefaultMaxBet        = 1000
	DefaultMaxTableLimit = 10000
	DefaultMaxPlayers    = 10
)

// GameConfig holds the table rules for a new game.
type GameConfig struct {
	SmallBlind    int64
	BigBlind      int64
	MaxBet        int64 // largest bet-to amount a raise may reach
	MaxTableLimit int64 // cap on starting chips
	MaxPlayers    int

	// Seed makes the deck deterministic when non-zero.
	Seed int64

	UI  UI
	Log slog.Logger
}

// HandWinner is one player's cut of a finished hand.
type HandWinner struct {
	PlayerID string
	Name     string
	Share    int64

	// Hand is nil when the pot went uncontested.
	Hand *HandValue
}

// HandResult summarizes a finished hand.
type HandResult struct {
	Pot     int64
	Board   []Card
	Winners []HandWinner
}

// Game is the hold'em engine. Its state has a single logical owner: all
// mutations must come from one goroutine (or be serialized by the caller,
// the way the table service does). The UI port is invoked from that same
// goroutine.
type Game struct {
	cfg GameConfig
	ui  UI
	log slog.Logger

	players    []*Player
	dealerIdx  int
	currentIdx int

	deck           *Deck
	communityCards []Card
	pot            Pot
	currentBet     int64
	phase          GamePhase

	// streets walks PreFlop through Showdown one completed betting
	// round at a time.
	streets *statemachine.Machine[Game]

	preDealt   bool
	looping    bool
	actionSeq  uint64
	handCount  int
	lastResult *HandResult
}

// NewGame creates an engine with the given table rules. Zero config
// fields fall back to the package defaults.
func NewGame(cfg GameConfig) *Game {
	if cfg.SmallBlind <= 0 {
		cfg.SmallBlind = DefaultSmallBlind
	}
	if cfg.BigBlind <= 0 {
		cfg.BigBlind = DefaultBigBlind
	}
	if cfg.MaxBet <= 0 {
		cfg.MaxBet = DefaultMaxBet
	}
	if cfg.MaxTableLimit <= 0 {
		cfg.MaxTableLimit = DefaultMaxTableLimit
	}
	if cfg.MaxPlayers <= 0 {
		cfg.MaxPlayers = DefaultMaxPlayers
	}
	if cfg.UI == nil {
		cfg.UI = NopUI{}
	}
	if cfg.Log == nil {
		cfg.Log = slog.Disabled
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	g := &Game{
		cfg:   cfg,
		ui:    cfg.UI,
		log:   cfg.Log,
		deck:  NewDeck(rand.New(rand.NewSource(seed))),
		phase: PhaseWaiting,
	}
	g.streets = statemachine.New(g, nil)
	return g
}

// StartGame seats the named players with startingChips each. Chips above
// the table limit are capped, with a message to the UI. Player ids equal
// their names; names double as fabric addresses in service mode.
func (g *Game) StartGame(playerNames []string, startingChips int64) error {
	if g.phase != PhaseWaiting && g.phase != PhaseHandComplete {
		return ErrHandInProgress
	}
	if len(playerNames) < 2 {
		return ErrTooFewPlayers
	}
	if len(playerNames) > g.cfg.MaxPlayers {
		return fmt.Errorf("%w: %d seats, max %d", ErrTooManyPlayers, len(playerNames), g.cfg.MaxPlayers)
	}
	if startingChips <= 0 {
		return fmt.Errorf("starting chips must be positive, got %d", startingChips)
	}
	if startingChips > g.cfg.MaxTableLimit {
		g.ui.ShowMessage(fmt.Sprintf("starting chips capped at the table limit of %d", g.cfg.MaxTableLimit))
		g.log.Warnf("starting chips %d above table limit, capped to %d", startingChips, g.cfg.MaxTableLimit)
		startingChips = g.cfg.MaxTableLimit
	}

	g.players = make([]*Player, 0, len(playerNames))
	for _, name := range playerNames {
		g.players = append(g.players, NewPlayer(name, name, startingChips))
	}

	// The button starts on the last seat so the first hand advances it
	// to seat zero.
	g.dealerIdx = len(g.players) - 1
	g.phase = PhaseWaiting
	g.lastResult = nil
	g.log.Infof("game started with %d players, %d chips each", len(g.players), startingChips)
	return nil
}

// SetHoleCards pre-deals a player's hole cards for the next hand. When
// every hand's cards come from outside (dealer service mode), StartHand
// skips its own deal.
func (g *Game) SetHoleCards(playerID string, cards []Card) error {
	if g.phase != PhaseWaiting && g.phase != PhaseHandComplete {
		return ErrHandInProgress
	}
	if len(cards) != 2 {
		return fmt.Errorf("hole cards must be exactly 2, got %d", len(cards))
	}
	p := g.GetPlayer(playerID)
	if p == nil {
		return fmt.Errorf("unknown player %q", playerID)
	}
	p.HoleCards = append(p.HoleCards[:0], cards...)
	g.preDealt = true
	return nil
}

// StartHand runs a new hand: clears per-hand state, advances the button,
// deals (unless hole cards were pre-dealt), posts blinds and enters the
// betting loop. Busted seats sit the hand out: no cards, no blinds, folded
// from the deal. It returns once the hand completes or the UI defers the
// current player's action.
func (g *Game) StartHand() error {
	if g.fundedCount() < 2 {
		return ErrTooFewPlayers
	}
	if g.phase != PhaseWaiting && g.phase != PhaseHandComplete {
		return ErrHandInProgress
	}

	n := len(g.players)
	g.handCount++
	g.communityCards = g.communityCards[:0]
	g.pot.Reset()
	g.currentBet = 0
	g.lastResult = nil
	for _, p := range g.players {
		p.ResetForHand()
		if p.Chips <= 0 {
			p.HasFolded = true
			p.HoleCards = p.HoleCards[:0]
			p.updateState()
		}
	}

	g.dealerIdx = g.nextFunded(g.dealerIdx)

	g.deck.Reset()
	g.deck.Shuffle()
	if !g.preDealt {
		for _, p := range g.players {
			p.HoleCards = p.HoleCards[:0]
		}
		// One card per dealt-in seat, twice around, starting left of the
		// button.
		for pass := 0; pass < 2; pass++ {
			for i := 1; i <= n; i++ {
				p := g.players[(g.dealerIdx+i)%n]
				if p.HasFolded {
					continue
				}
				card, ok := g.deck.Deal()
				if !ok {
					return errors.New("deck exhausted during the deal")
				}
				p.HoleCards = append(p.HoleCards, card)
			}
		}
	}
	g.preDealt = false

	// With every seat funded these are the dealer+1, dealer+2 and dealer+3
	// positions; sitting-out seats drop out of the count.
	small := g.nextFunded(g.dealerIdx)
	g.postBlind(small, g.cfg.SmallBlind)
	big := g.nextFunded(small)
	g.postBlind(big, g.cfg.BigBlind)
	g.currentBet = g.cfg.BigBlind

	if first := g.nextFunded(big); first >= 0 {
		g.currentIdx = first
	} else {
		// Everyone is all-in on the blinds; the betting loop runs the
		// board out without prompting.
		g.currentIdx = big
	}
	g.phase = PhasePreFlop
	g.streets.SetState(stateDealFlop)

	g.log.Debugf("hand %d: dealer %s, blinds %d/%d", g.handCount,
		g.players[g.dealerIdx].Name, g.cfg.SmallBlind, g.cfg.BigBlind)
	g.resume()
	return nil
}

// fundedCount returns how many seats still have chips to play.
func (g *Game) fundedCount() int {
	funded := 0
	for _, p := range g.players {
		if p.Chips > 0 {
			funded++
		}
	}
	return funded
}

// nextFunded returns the first seat clockwise after idx that has chips,
// or -1 when no other seat does.
func (g *Game) nextFunded(idx int) int {
	n := len(g.players)
	for i := 1; i <= n; i++ {
		seat := (idx + i) % n
		if g.players[seat].Chips > 0 {
			return seat
		}
	}
	return -1
}

// postBlind stakes the blind, going all-in when the seat is short.
func (g *Game) postBlind(idx int, amount int64) {
	g.stake(g.players[idx], amount)
}

// stake moves up to amount chips from the player into their round bet,
// marking the all-in when chips run out.
func (g *Game) stake(p *Player, amount int64) {
	if amount <= 0 {
		return
	}
	if amount >= p.Chips {
		amount = p.Chips
		p.IsAllIn = true
	}
	p.Chips -= amount
	p.CurrentBet += amount
	if p.IsAllIn {
		p.updateState()
	}
}

// The street chain. Each completed betting round steps the machine once;
// the showdown state ends the chain.

func stateDealFlop(g *Game) statemachine.StateFn[Game] {
	g.burnAndDeal(3)
	g.phase = PhaseFlop
	return stateDealTurn
}

func stateDealTurn(g *Game) statemachine.StateFn[Game] {
	g.burnAndDeal(1)
	g.phase = PhaseTurn
	return stateDealRiver
}

func stateDealRiver(g *Game) statemachine.StateFn[Game] {
	g.burnAndDeal(1)
	g.phase = PhaseRiver
	return stateShowdown
}

func stateShowdown(g *Game) statemachine.StateFn[Game] {
	g.phase = PhaseShowdown
	g.finishHand()
	return nil
}

func (g *Game) burnAndDeal(n int) {
	g.deck.Deal() // burn
	for i := 0; i < n; i++ {
		card, ok := g.deck.Deal()
		if !ok {
			return
		}
		g.communityCards = append(g.communityCards, card)
	}
}

// ProcessPlayerAction applies the current player's move. Rule violations
// return an error and leave all state unchanged. A successful action marks
// the actor as having acted, advances the turn and resumes the betting
// loop.
func (g *Game) ProcessPlayerAction(action Action, amount int64) error {
	switch g.phase {
	case PhasePreFlop, PhaseFlop, PhaseTurn, PhaseRiver:
	default:
		return ErrNoBettingRound
	}
	p := g.players[g.currentIdx]
	if !p.IsActive() || p.IsAllIn {
		return fmt.Errorf("player %s cannot act", p.Name)
	}

	switch action {
	case ActionFold:
		p.HasFolded = true

	case ActionCheck:
		if p.CurrentBet != g.currentBet {
			g.ui.ShowMessage(fmt.Sprintf("%s must call or fold", p.Name))
			return ErrMustCallOrFold
		}

	case ActionCall:
		g.stake(p, g.currentBet-p.CurrentBet)

	case ActionRaise:
		minRaise := g.currentBet + g.cfg.BigBlind
		if amount < minRaise {
			g.ui.ShowMessage(fmt.Sprintf("raise must be at least %d", minRaise))
			return ErrRaiseTooSmall
		}
		target := amount
		if target > g.cfg.MaxBet {
			target = g.cfg.MaxBet
		}
		g.stake(p, target-p.CurrentBet)
		if p.CurrentBet > g.currentBet {
			g.currentBet = p.CurrentBet
		}
		// Everyone still able to put chips in gets to respond.
		for _, other := range g.players {
			if other == p || !other.IsActive() || other.IsAllIn || other.Chips == 0 {
				continue
			}
			other.HasActed = false
		}

	default:
		return fmt.Errorf("unknown action %d", action)
	}

	p.HasActed = true
	p.updateState()
	g.actionSeq++
	g.log.Debugf("%s: %s %d (chips %d, bet %d)", p.Name, action, amount, p.Chips, p.CurrentBet)

	g.advanceTurn()
	g.resume()
	return nil
}

// resume drives the betting loop until the hand completes or an action
// has to come from outside. Reentrant calls (a UI resolving the action
// synchronously inside GetPlayerAction) return immediately; the outer
// loop picks the new state up.
func (g *Game) resume() {
	if g.looping {
		return
	}
	g.looping = true
	defer func() { g.looping = false }()

	for g.phase != PhaseHandComplete {
		if g.bettingRoundComplete() {
			g.completeBettingRound()
			continue
		}
		p := g.players[g.currentIdx]
		if !p.IsActive() || p.IsAllIn {
			g.advanceTurn()
			continue
		}
		g.ui.UpdateGameState(g)
		seq := g.actionSeq
		g.ui.GetPlayerAction(p, g)
		if g.actionSeq == seq {
			// The UI deferred; ProcessPlayerAction resumes us later.
			return
		}
	}
}

// bettingRoundComplete reports whether the current round can close: one
// player left, or every non-all-in active player has matched the bet and
// acted.
func (g *Game) bettingRoundComplete() bool {
	if g.activeCount() <= 1 {
		return true
	}
	for _, p := range g.players {
		if !p.IsActive() || p.IsAllIn {
			continue
		}
		if p.CurrentBet != g.currentBet || !p.HasActed {
			return false
		}
	}
	return true
}

// completeBettingRound sweeps round bets into the pot and advances the
// street, short-circuiting to distribution when at most one player is
// left.
func (g *Game) completeBettingRound() {
	for _, p := range g.players {
		g.pot.Add(p.CurrentBet)
		p.CurrentBet = 0
		p.HasActed = false
	}
	g.currentBet = 0

	if g.activeCount() <= 1 {
		g.finishHand()
		return
	}

	g.streets.Step()
	if g.phase != PhaseHandComplete {
		g.currentIdx = g.firstToAct()
		g.log.Debugf("%s, board %v, pot %d", g.phase, g.communityCards, g.pot.Amount())
	}
}

// firstToAct returns the first seat after the button that can still bet.
func (g *Game) firstToAct() int {
	n := len(g.players)
	for i := 1; i <= n; i++ {
		idx := (g.dealerIdx + i) % n
		p := g.players[idx]
		if p.IsActive() && !p.IsAllIn {
			return idx
		}
	}
	return g.currentIdx
}

// advanceTurn moves to the next seat that can act, leaving the index
// alone when no one can.
func (g *Game) advanceTurn() {
	n := len(g.players)
	for i := 1; i <= n; i++ {
		idx := (g.currentIdx + i) % n
		p := g.players[idx]
		if p.IsActive() && !p.IsAllIn {
			g.currentIdx = idx
			return
		}
	}
}

func (g *Game) activeCount() int {
	active := 0
	for _, p := range g.players {
		if p.IsActive() {
			active++
		}
	}
	return active
}

// finishHand distributes the pot and closes the hand. With one player
// left the pot goes uncontested; otherwise the active hands are evaluated
// and the pot splits integer-equally among the winners, any remainder to
// the winner closest clockwise from the button.
func (g *Game) finishHand() {
	n := len(g.players)
	pot := g.pot.Take()
	result := &HandResult{
		Pot:   pot,
		Board: append([]Card(nil), g.communityCards...),
	}

	var actives []int
	for i, p := range g.players {
		if p.IsActive() {
			actives = append(actives, i)
		}
	}

	switch {
	case len(actives) == 0:
		// Unreachable with ≥2 seats; keep the chips rather than lose them.
		g.log.Errorf("hand %d finished with no active players, pot %d returned", g.handCount, pot)
		g.pot.Add(pot)

	case len(actives) == 1:
		w := g.players[actives[0]]
		w.Chips += pot
		result.Winners = []HandWinner{{PlayerID: w.ID, Name: w.Name, Share: pot}}
		g.log.Debugf("hand %d: %s wins %d uncontested", g.handCount, w.Name, pot)

	default:
		values := make([]HandValue, len(actives))
		for i, idx := range actives {
			p := g.players[idx]
			cards := make([]Card, 0, len(p.HoleCards)+len(g.communityCards))
			cards = append(cards, p.HoleCards...)
			cards = append(cards, g.communityCards...)
			hv, err := EvaluateBestHand(cards)
			if err != nil {
				g.log.Errorf("hand %d: evaluating %s: %v", g.handCount, p.Name, err)
			}
			p.HandValue = &hv
			values[i] = hv
		}

		winnerIdxs := DetermineWinners(values)
		share, rem := splitPot(pot, len(winnerIdxs))

		winnerSeats := make(map[int]bool, len(winnerIdxs))
		for _, wi := range winnerIdxs {
			winnerSeats[actives[wi]] = true
		}
		remSeat := -1
		if rem > 0 {
			for i := 1; i <= n; i++ {
				seat := (g.dealerIdx + i) % n
				if winnerSeats[seat] {
					remSeat = seat
					break
				}
			}
		}

		for _, wi := range winnerIdxs {
			seat := actives[wi]
			p := g.players[seat]
			amt := share
			if seat == remSeat {
				amt += rem
			}
			p.Chips += amt
			result.Winners = append(result.Winners, HandWinner{
				PlayerID: p.ID,
				Name:     p.Name,
				Share:    amt,
				Hand:     p.HandValue,
			})
			g.log.Debugf("hand %d: %s wins %d with %s", g.handCount, p.Name, amt, p.HandValue.Describe())
		}
	}

	g.lastResult = result
	g.phase = PhaseHandComplete
	g.streets.SetState(nil)
	g.ui.UpdateGameState(g)
}

// Observation getters. Slices are copied so callers can hold them across
// engine steps; Player pointers stay live.

// GetPlayers returns the seated players in seat order.
func (g *Game) GetPlayers() []*Player {
	return append([]*Player(nil), g.players...)
}

// GetPlayer returns the player with the given id, or nil.
func (g *Game) GetPlayer(id string) *Player {
	for _, p := range g.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// GetCommunityCards returns the board dealt so far.
func (g *Game) GetCommunityCards() []Card {
	return append([]Card(nil), g.communityCards...)
}

// GetPot returns the chips swept into the pot so far this hand.
func (g *Game) GetPot() int64 {
	return g.pot.Amount()
}

// GetCurrentBet returns the bet-to amount of the current round.
func (g *Game) GetCurrentBet() int64 {
	return g.currentBet
}

// GetPhase returns the engine's phase.
func (g *Game) GetPhase() GamePhase {
	return g.phase
}

// GetCurrentPlayer returns the player whose action the engine awaits, or
// nil outside a betting round.
func (g *Game) GetCurrentPlayer() *Player {
	switch g.phase {
	case PhasePreFlop, PhaseFlop, PhaseTurn, PhaseRiver:
		return g.players[g.currentIdx]
	default:
		return nil
	}
}

// GetDealerIndex returns the button seat.
func (g *Game) GetDealerIndex() int {
	return g.dealerIdx
}

// GetHandCount returns how many hands have been started.
func (g *Game) GetHandCount() int {
	return g.handCount
}

// GetLastResult returns the most recent hand's outcome, or nil while a
// hand is running.
func (g *Game) GetLastResult() *HandResult {
	return g.lastResult
}

// GetConfig returns the table rules in effect.
func (g *Game) GetConfig() GameConfig {
	return g.cfg
}
