// Package protocol defines the poker message types and payload shapes
// exchanged between the table service and its players over the transport
// fabric. Payloads travel as JSON content inside the message envelope;
// receivers must tolerate unknown message types and unknown fields.
package protocol

import (
	"github.com/vctt94/pokerfabric/pkg/poker"
)

// Message type tags used by the table service and its players. Fabric-wide
// tags (Acknowledgment, Heartbeat, ...) live in pkg/message.
const (
	// Commands, player -> table service.
	TypeStartHand    = "StartHand"
	TypePlayerAction = "PlayerAction"

	// Events, table service -> players.
	TypeHandStarted      = "HandStarted"
	TypeGameStateUpdated = "GameStateUpdated"
	TypePlayerTurn       = "PlayerTurn"
	TypeHandComplete     = "HandComplete"
	TypeShowMessage      = "ShowMessage"

	// Targeted, table service -> one player.
	TypeHoleCards = "HoleCards"
)

// ---------- Commands ----------

// StartHand asks the table service to begin the next hand. An empty
// payload is valid; TableID is informational.
type StartHand struct {
	TableID string `json:"tableId,omitempty"`
}

// PlayerAction carries one betting decision. Action is one of the
// poker.Action verbs ("fold", "check", "call", "raise"); Amount is the
// bet-to total and only meaningful for raises.
type PlayerAction struct {
	PlayerID string `json:"playerId"`
	Action   string `json:"action"`
	Amount   int64  `json:"amount,omitempty"`
}

// ---------- Events ----------

// PlayerState is the public view of one seat.
type PlayerState struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Seat  int    `json:"seat"`
	Chips int64  `json:"chips"`
	Bet   int64  `json:"bet"`

	Folded   bool `json:"folded"`
	AllIn    bool `json:"allIn"`
	HasActed bool `json:"hasActed"`
	IsDealer bool `json:"isDealer"`
	IsTurn   bool `json:"isTurn"`

	// State is the seat's lifecycle name: IDLE, IN_HAND, FOLDED or ALL_IN.
	State string `json:"state"`

	// IsCurrentUser marks the viewer's own seat. The service always sends
	// false; clients set it for their own id before display.
	IsCurrentUser bool `json:"isCurrentUser,omitempty"`

	// HoleCards and HandRank are only populated at showdown, and only for
	// seats still in contention.
	HoleCards []poker.Card `json:"holeCards,omitempty"`
	HandRank  string       `json:"handRank,omitempty"`
}

// GameState is the public snapshot broadcast whenever observable table
// state changes.
type GameState struct {
	TableID         string        `json:"tableId"`
	Phase           string        `json:"phase"`
	HandNum         int           `json:"handNum"`
	Pot             int64         `json:"pot"`
	CurrentBet      int64         `json:"currentBet"`
	DealerSeat      int           `json:"dealerSeat"`
	CurrentPlayerID string        `json:"currentPlayerId,omitempty"`
	Board           []poker.Card  `json:"board"`
	Players         []PlayerState `json:"players"`
}

// HandStarted is broadcast when a hand begins, after blinds are posted.
type HandStarted struct {
	TableID    string        `json:"tableId"`
	HandNum    int           `json:"handNum"`
	DealerSeat int           `json:"dealerSeat"`
	SmallBlind int64         `json:"smallBlind"`
	BigBlind   int64         `json:"bigBlind"`
	Players    []PlayerState `json:"players"`
}

// PlayerTurn prompts one player for a decision. ToCall is the amount
// needed to match the current bet; MinRaise is the smallest legal bet-to
// total for a raise; MaxRaise is the table cap.
type PlayerTurn struct {
	TableID    string `json:"tableId"`
	PlayerID   string `json:"playerId"`
	Name       string `json:"name"`
	Seat       int    `json:"seat"`
	Pot        int64  `json:"pot"`
	CurrentBet int64  `json:"currentBet"`
	PlayerBet  int64  `json:"playerBet"`
	Chips      int64  `json:"chips"`
	ToCall     int64  `json:"toCall"`
	MinRaise   int64  `json:"minRaise"`
	MaxRaise   int64  `json:"maxRaise"`
}

// Winner is one player's cut of a finished pot.
type Winner struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Share    int64  `json:"share"`

	// HandRank and Cards are empty when the pot went uncontested.
	HandRank string       `json:"handRank,omitempty"`
	Cards    []poker.Card `json:"cards,omitempty"`
}

// HandComplete is broadcast once per hand, after the pot is distributed.
type HandComplete struct {
	TableID string       `json:"tableId"`
	HandNum int          `json:"handNum"`
	Pot     int64        `json:"pot"`
	Board   []poker.Card `json:"board"`
	Winners []Winner     `json:"winners"`
}

// ShowMessage carries a human-readable table notice, such as an action
// rejection.
type ShowMessage struct {
	TableID string `json:"tableId,omitempty"`
	Text    string `json:"text"`
}

// HoleCards is sent to exactly one player, never broadcast.
type HoleCards struct {
	TableID  string       `json:"tableId"`
	HandNum  int          `json:"handNum"`
	PlayerID string       `json:"playerId"`
	Cards    []poker.Card `json:"cards"`
}

// ---------- Fabric service payloads ----------

// ServiceInfo announces a service joining the fabric; it rides on
// ServiceRegistration messages.
type ServiceInfo struct {
	ServiceID string `json:"serviceId"`
	Kind      string `json:"kind"`
	TableID   string `json:"tableId,omitempty"`
}

// Heartbeat carries liveness and process stats; it rides on Heartbeat
// messages. Stats that cannot be collected on the platform are zero.
type Heartbeat struct {
	ServiceID  string `json:"serviceId"`
	Seq        uint64 `json:"seq"`
	UptimeSec  int64  `json:"uptimeSec"`
	Goroutines int    `json:"goroutines"`
	HeapBytes  uint64 `json:"heapBytes"`
	RSSBytes   uint64 `json:"rssBytes"`
	SysBytes   uint64 `json:"sysBytes"`
}

// ErrorReply reports a rejected command; it rides on Error messages
// correlated to the offending command.
type ErrorReply struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error reply codes.
const (
	ErrCodeOutOfTurn      = "out_of_turn"
	ErrCodeInvalidAction  = "invalid_action"
	ErrCodeNoHand         = "no_hand"
	ErrCodeHandInProgress = "hand_in_progress"
	ErrCodeTooFewPlayers  = "too_few_players"
	ErrCodeBadPayload     = "bad_payload"
)
