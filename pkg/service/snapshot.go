package service

import (
	"github.com/vctt94/pokerfabric/pkg/poker"
	"github.com/vctt94/pokerfabric/pkg/protocol"
)

// collectGameState collects an immutable public snapshot of the table.
// Hole cards stay hidden until the hand resolves; then the contenders'
// cards and ranks ride along. Callers hold the mutex.
func (s *TableService) collectGameState(g *poker.Game) protocol.GameState {
	phase := g.GetPhase()
	state := protocol.GameState{
		TableID:    s.cfg.TableID,
		Phase:      phase.String(),
		HandNum:    g.GetHandCount(),
		Pot:        g.GetPot(),
		CurrentBet: g.GetCurrentBet(),
		DealerSeat: g.GetDealerIndex(),
		Board:      g.GetCommunityCards(),
	}

	current := g.GetCurrentPlayer()
	if current != nil {
		state.CurrentPlayerID = current.ID
	}

	reveal := phase == poker.PhaseShowdown || phase == poker.PhaseHandComplete
	players := g.GetPlayers()
	state.Players = make([]protocol.PlayerState, 0, len(players))
	for seat, p := range players {
		state.Players = append(state.Players, collectPlayerState(p, seat, g, current, reveal))
	}
	return state
}

// collectPlayerState collects one seat's public view.
func collectPlayerState(p *poker.Player, seat int, g *poker.Game, current *poker.Player, reveal bool) protocol.PlayerState {
	ps := protocol.PlayerState{
		ID:       p.ID,
		Name:     p.Name,
		Seat:     seat,
		Chips:    p.Chips,
		Bet:      p.CurrentBet,
		Folded:   p.HasFolded,
		AllIn:    p.IsAllIn,
		HasActed: p.HasActed,
		IsDealer: seat == g.GetDealerIndex(),
		IsTurn:   current != nil && current.ID == p.ID,
		State:    p.State(),
	}
	if reveal && !p.HasFolded && len(p.HoleCards) == 2 {
		ps.HoleCards = append([]poker.Card(nil), p.HoleCards...)
		if p.HandValue != nil {
			ps.HandRank = p.HandValue.Describe()
		}
	}
	return ps
}

// buildHandStarted collects the hand-opening announcement. Callers hold
// the mutex; StartHand has already advanced the button and posted blinds.
func (s *TableService) buildHandStarted() protocol.HandStarted {
	g := s.game
	cfg := g.GetConfig()
	current := g.GetCurrentPlayer()

	players := g.GetPlayers()
	states := make([]protocol.PlayerState, 0, len(players))
	for seat, p := range players {
		states = append(states, collectPlayerState(p, seat, g, current, false))
	}
	return protocol.HandStarted{
		TableID:    s.cfg.TableID,
		HandNum:    g.GetHandCount(),
		DealerSeat: g.GetDealerIndex(),
		SmallBlind: cfg.SmallBlind,
		BigBlind:   cfg.BigBlind,
		Players:    states,
	}
}

// queueHandComplete queues the hand's result broadcast. Callers hold the
// mutex and have already observed PhaseHandComplete.
func (s *TableService) queueHandComplete() {
	res := s.game.GetLastResult()
	if res == nil {
		return
	}
	hc := protocol.HandComplete{
		TableID: s.cfg.TableID,
		HandNum: s.game.GetHandCount(),
		Pot:     res.Pot,
		Board:   append([]poker.Card(nil), res.Board...),
		Winners: make([]protocol.Winner, 0, len(res.Winners)),
	}
	for _, w := range res.Winners {
		pw := protocol.Winner{
			PlayerID: w.PlayerID,
			Name:     w.Name,
			Share:    w.Share,
		}
		if w.Hand != nil {
			pw.HandRank = w.Hand.Describe()
			pw.Cards = append([]poker.Card(nil), w.Hand.BestHand...)
		}
		hc.Winners = append(hc.Winners, pw)
	}
	s.queue("", protocol.TypeHandComplete, hc, false)
}
