// Package ui is a terminal front end for one seat at a poker table. The
// model consumes the client's update feed: every fabric event becomes a
// bubbletea message, and key presses become acked table commands.
package ui

import (
	"context"
	"fmt"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vctt94/pokerfabric/pkg/client"
	"github.com/vctt94/pokerfabric/pkg/poker"
	"github.com/vctt94/pokerfabric/pkg/protocol"
)

// Model contains all the state for our UI.
type Model struct {
	clientID string
	c        *client.Client
	d        *CommandDispatcher

	game      protocol.GameState
	haveGame  bool
	holeCards []poker.Card
	turn      protocol.PlayerTurn
	myTurn    bool
	result    *protocol.HandComplete

	// Raise entry mini-mode.
	raising     bool
	raiseAmount string

	message string
	errText string
}

// NewModel creates a new UI model bound to one client.
func NewModel(ctx context.Context, c *client.Client) Model {
	return Model{
		clientID: c.ID,
		c:        c,
		d:        NewCommandDispatcher(ctx, c),
	}
}

func (m Model) Init() tea.Cmd {
	return waitForUpdate(m.c)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case client.HandStartedMsg:
		m.result = nil
		m.holeCards = nil
		m.errText = ""
		m.message = fmt.Sprintf("Hand #%d under way", msg.HandNum)
		return m, waitForUpdate(m.c)

	case client.HoleCardsMsg:
		m.holeCards = msg.Cards
		return m, waitForUpdate(m.c)

	case client.GameStateMsg:
		m.game = protocol.GameState(msg)
		m.haveGame = true
		if m.game.CurrentPlayerID != m.clientID {
			m.myTurn = false
		}
		return m, waitForUpdate(m.c)

	case client.PlayerTurnMsg:
		m.turn = protocol.PlayerTurn(msg)
		m.myTurn = msg.PlayerID == m.clientID
		return m, waitForUpdate(m.c)

	case client.HandCompleteMsg:
		hc := protocol.HandComplete(msg)
		m.result = &hc
		m.myTurn = false
		m.raising = false
		return m, waitForUpdate(m.c)

	case client.TableMessageMsg:
		m.message = msg.Text
		return m, waitForUpdate(m.c)

	case client.ErrorMsg:
		m.errText = fmt.Sprintf("%s (%s)", msg.Message, msg.Code)
		return m, waitForUpdate(m.c)

	case errorMsg:
		m.errText = error(msg).Error()
		return m, nil

	case actionSentMsg:
		m.message = string(msg)
		m.errText = ""
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.raising {
		return m.handleRaiseKey(msg)
	}

	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "s", "n":
		m.errText = ""
		return m, m.d.startHandCmd()

	case "f":
		if m.myTurn {
			m.myTurn = false
			return m, m.d.foldCmd()
		}

	case "c":
		if m.myTurn {
			m.myTurn = false
			if m.turn.ToCall > 0 {
				return m, m.d.callCmd()
			}
			return m, m.d.checkCmd()
		}

	case "r":
		if m.myTurn {
			m.raising = true
			m.raiseAmount = ""
		}
	}

	return m, nil
}

// handleRaiseKey collects digits until Enter submits the bet-to amount.
func (m Model) handleRaiseKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key := msg.String(); key {
	case "esc", "q":
		m.raising = false

	case "enter":
		amount, err := strconv.ParseInt(m.raiseAmount, 10, 64)
		m.raising = false
		if err != nil || amount <= 0 {
			m.errText = "enter a raise amount in chips"
			return m, nil
		}
		m.myTurn = false
		return m, m.d.raiseCmd(amount)

	case "backspace":
		if len(m.raiseAmount) > 0 {
			m.raiseAmount = m.raiseAmount[:len(m.raiseAmount)-1]
		}

	default:
		if len(key) == 1 && key >= "0" && key <= "9" {
			m.raiseAmount += key
		}
	}
	return m, nil
}

// Run drives the UI until the player quits.
func Run(ctx context.Context, c *client.Client) error {
	p := tea.NewProgram(NewModel(ctx, c), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
