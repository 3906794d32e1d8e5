package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/vctt94/pokerfabric/pkg/poker"
)

// View renders the table from the latest cached events.
func (m Model) View() string {
	var s string

	s += titleStyle.Render(fmt.Sprintf("🃏 Table %s | seat %s", m.c.TableID(), m.clientID)) + "\n\n"

	if m.message != "" {
		s += gameInfoStyle.Render(m.message) + "\n"
	}
	if m.errText != "" {
		s += errorStyle.Render("Error: "+m.errText) + "\n"
	}

	if !m.haveGame {
		s += "\n" + blurredStyle.Render("Waiting for the first hand. Press 's' to start one.") + "\n"
		s += helpStyle.Render("s start hand • q quit")
		return s
	}

	s += m.renderBoard()
	s += m.renderHoleCards()
	s += potStyle.Render(fmt.Sprintf("POT %d | bet %d | %s | hand #%d",
		m.game.Pot, m.game.CurrentBet, m.game.Phase, m.game.HandNum)) + "\n"
	s += m.renderPlayers()
	s += m.renderResult()
	s += m.renderStatus()

	if m.raising {
		s += focusedStyle.Render(fmt.Sprintf("Raise to: %s█", m.raiseAmount)) + "\n"
		s += helpStyle.Render("type an amount • enter send • esc cancel")
		return s
	}

	help := "s start hand • q quit"
	if m.myTurn {
		verb := "c check"
		if m.turn.ToCall > 0 {
			verb = fmt.Sprintf("c call %d", m.turn.ToCall)
		}
		help = fmt.Sprintf("f fold • %s • r raise • q quit", verb)
	}
	s += helpStyle.Render(help)
	return s
}

// renderBoard shows the community cards, padding to five with face-down
// placeholders.
func (m Model) renderBoard() string {
	cards := renderCardRow(m.game.Board, 5)
	return lipgloss.NewStyle().Margin(1, 0).Render("Board: "+cards) + "\n"
}

func (m Model) renderHoleCards() string {
	cards := renderCardRow(m.holeCards, 2)
	return "Yours: " + cards + "\n"
}

func renderCardRow(cards []poker.Card, width int) string {
	elements := make([]string, 0, width)
	for _, c := range cards {
		style := cardStyle
		if c.Suit() == poker.Hearts || c.Suit() == poker.Diamonds {
			style = redCardStyle
		}
		elements = append(elements, style.Render(c.String()))
	}
	for i := len(cards); i < width; i++ {
		elements = append(elements, cardStyle.Render("🂠"))
	}
	return strings.Join(elements, " ")
}

func (m Model) renderPlayers() string {
	var s string
	for _, p := range m.game.Players {
		line := fmt.Sprintf("  %s: %d chips, bet %d", p.Name, p.Chips, p.Bet)
		if p.IsDealer {
			line += " [D]"
		}
		switch {
		case p.Folded:
			line += " (folded)"
		case p.AllIn:
			line += " (all-in)"
		}
		if p.HandRank != "" {
			line += " | " + p.HandRank
		}
		if p.IsTurn {
			line += " ← to act"
		}
		if p.IsCurrentUser {
			s += focusedStyle.Render(line+" (you)") + "\n"
		} else {
			s += blurredStyle.Render(line) + "\n"
		}
	}
	return s
}

func (m Model) renderResult() string {
	if m.result == nil {
		return ""
	}
	var s string
	for _, w := range m.result.Winners {
		line := fmt.Sprintf("🏆 %s wins %d", w.Name, w.Share)
		if w.HandRank != "" {
			line += " with " + w.HandRank
		}
		s += turnStyle.Render(line) + "\n"
	}
	return s
}

func (m Model) renderStatus() string {
	if m.myTurn {
		return turnStyle.Render(fmt.Sprintf("YOUR TURN: %d to call", m.turn.ToCall)) + "\n"
	}
	if m.game.CurrentPlayerID != "" && m.game.CurrentPlayerID != m.clientID {
		return helpStyle.Render(fmt.Sprintf("waiting for %s to act...", m.game.CurrentPlayerID)) + "\n"
	}
	return ""
}
