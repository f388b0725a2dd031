package rps

import (
	"encoding/json"
	"fmt"
)

// Action kinds carried by an inbound rps action
const (
	ActionJoin     = "join"
	ActionChoose   = "choose"
	ActionFastMode = "fast_mode"
)

// Init creates a game
type Init struct {
	Host    string   `json:"host"`
	Players []string `json:"players"`
	GGScore int      `json:"gg_score"`
}

// Action acts on an existing game
type Action struct {
	GameID   string `json:"game_id"`
	SenderID string `json:"sender_id"`
	Action   string `json:"action"`
	Choice   Choice `json:"choice,omitempty"`
	FastMode bool   `json:"fast_mode,omitempty"`
}

// Request is the payload of an inbound rps frame. Exactly one field is set.
type Request struct {
	Init   *Init   `json:"init,omitempty"`
	Action *Action `json:"action,omitempty"`
}

// Outbound payloads of the rps header

// StateFrame carries a full game snapshot
type StateFrame struct {
	State State `json:"state"`
}

// GamesFrame carries every game, sent on connect
type GamesFrame struct {
	Games []State `json:"games"`
}

// UpdateFrame carries one in-game event
type UpdateFrame struct {
	Update Update `json:"update"`
}

type Update struct {
	GameID string `json:"game_id"`
	Event  Event  `json:"event"`
}

type EventType string

const (
	EventPlayerConnected EventType = "player_connected"
	EventFastToggled     EventType = "fast_toggled"
	EventChoices         EventType = "choices"
	EventExclude         EventType = "exclude"
	EventWinner          EventType = "winner"
	EventGG              EventType = "gg"
)

// Event is a tagged union keyed by Type. Player is used by
// player_connected and winner; GameID by gg; FastMode by fast_toggled;
// Choices by choices; Players by exclude.
type Event struct {
	Type     EventType
	Player   string
	GameID   string
	FastMode bool
	Choices  map[string]Choice
	Players  []string
}

type playerEvent struct {
	Type   EventType `json:"type"`
	Player string    `json:"player"`
}

type gameEvent struct {
	Type   EventType `json:"type"`
	GameID string    `json:"game_id"`
}

type fastEvent struct {
	Type     EventType `json:"type"`
	FastMode bool      `json:"fast_mode"`
}

type choicesEvent struct {
	Type    EventType         `json:"type"`
	Choices map[string]Choice `json:"choices"`
}

type excludeEvent struct {
	Type    EventType `json:"type"`
	Players []string  `json:"players"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventPlayerConnected, EventWinner:
		return json.Marshal(playerEvent{Type: e.Type, Player: e.Player})
	case EventGG:
		return json.Marshal(gameEvent{Type: e.Type, GameID: e.GameID})
	case EventFastToggled:
		return json.Marshal(fastEvent{Type: e.Type, FastMode: e.FastMode})
	case EventChoices:
		choices := e.Choices
		if choices == nil {
			choices = map[string]Choice{}
		}
		return json.Marshal(choicesEvent{Type: e.Type, Choices: choices})
	case EventExclude:
		players := e.Players
		if players == nil {
			players = []string{}
		}
		return json.Marshal(excludeEvent{Type: e.Type, Players: players})
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type     EventType         `json:"type"`
		Player   string            `json:"player"`
		GameID   string            `json:"game_id"`
		FastMode bool              `json:"fast_mode"`
		Choices  map[string]Choice `json:"choices"`
		Players  []string          `json:"players"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Type {
	case EventPlayerConnected, EventWinner, EventGG, EventFastToggled, EventChoices, EventExclude:
	default:
		return fmt.Errorf("unknown event type %q", raw.Type)
	}
	*e = Event{
		Type:     raw.Type,
		Player:   raw.Player,
		GameID:   raw.GameID,
		FastMode: raw.FastMode,
		Choices:  raw.Choices,
		Players:  raw.Players,
	}
	return nil
}
