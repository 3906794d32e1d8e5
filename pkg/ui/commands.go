package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vctt94/pokerfabric/pkg/client"
)

type errorMsg error
type actionSentMsg string

// waitForUpdate hands the client's next event to the update loop. Every
// consumed event re-arms it.
func waitForUpdate(c *client.Client) tea.Cmd {
	return func() tea.Msg {
		return <-c.UpdatesCh
	}
}

// CommandDispatcher turns key presses into table commands.
type CommandDispatcher struct {
	ctx context.Context
	c   *client.Client
}

// NewCommandDispatcher creates a dispatcher bound to one client.
func NewCommandDispatcher(ctx context.Context, c *client.Client) *CommandDispatcher {
	return &CommandDispatcher{ctx: ctx, c: c}
}

func (d *CommandDispatcher) startHandCmd() tea.Cmd {
	return func() tea.Msg {
		if err := d.c.StartHand(d.ctx); err != nil {
			return errorMsg(err)
		}
		return actionSentMsg("hand requested")
	}
}

func (d *CommandDispatcher) foldCmd() tea.Cmd {
	return func() tea.Msg {
		if err := d.c.Fold(d.ctx); err != nil {
			return errorMsg(err)
		}
		return actionSentMsg("folded")
	}
}

func (d *CommandDispatcher) checkCmd() tea.Cmd {
	return func() tea.Msg {
		if err := d.c.Check(d.ctx); err != nil {
			return errorMsg(err)
		}
		return actionSentMsg("checked")
	}
}

func (d *CommandDispatcher) callCmd() tea.Cmd {
	return func() tea.Msg {
		if err := d.c.Call(d.ctx); err != nil {
			return errorMsg(err)
		}
		return actionSentMsg("called")
	}
}

func (d *CommandDispatcher) raiseCmd(amount int64) tea.Cmd {
	return func() tea.Msg {
		if err := d.c.Raise(d.ctx, amount); err != nil {
			return errorMsg(err)
		}
		return actionSentMsg("raised")
	}
}
