package poker

// UI is the engine's callback boundary. The engine requests an action for
// the player whose turn it is and does not advance until
// ProcessPlayerAction is observed; GetPlayerAction may resolve the action
// synchronously before returning, or arrange for it to arrive later (a
// network hop, an AI worker).
type UI interface {
	// ShowMessage surfaces a text notice, such as an action rejection.
	ShowMessage(text string)

	// GetPlayerAction asks for the current player's move.
	GetPlayerAction(p *Player, g *Game)

	// UpdateGameState reports that observable game state changed.
	UpdateGameState(g *Game)
}

// NopUI discards every callback. It is the default when a game is created
// without a UI.
type NopUI struct{}

func (NopUI) ShowMessage(string) {}

func (NopUI) GetPlayerAction(*Player, *Game) {}

func (NopUI) UpdateGameState(*Game) {}
