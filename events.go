package main

import (
	"encoding/json"
	"errors"
)

// Wire format for client->server events: a type tag plus a per-event
// payload, validated exhaustively before dispatch into the game logic.
// Malformed events are dropped and logged, never answered with an error,
// with the exception of joinGameRoom's joinError responses.
type inboundEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type joinGameRoomPayload struct {
	RoomCode   string `json:"roomCode"`
	PlayerName string `json:"playerName"`
}

type gameStartedPayload struct {
	RoomCode   string `json:"roomCode"`
	RoundLimit int    `json:"roundLimit,omitempty"`
}

type submitEntryPayload struct {
	RoomCode   string `json:"roomCode"`
	PlayerName string `json:"playerName"`
	EntryText  string `json:"entry"`
}

type startRankingPayload struct {
	RoomCode  string `json:"roomCode"`
	JudgeName string `json:"judgeName"`
}

type submitRankingPayload struct {
	RoomCode string   `json:"roomCode"`
	Ranking  []string `json:"ranking"`
}

type requestEntriesPayload struct {
	RoomCode string `json:"roomCode"`
}

type submitGuessPayload struct {
	RoomCode   string   `json:"roomCode"`
	PlayerName string   `json:"playerName"`
	Guess      []string `json:"guess"`
}

var errBadPayload = errors.New("malformed event payload")

// joinGameRoomPayload has no validate method: join failures are the one
// case answered with a joinError event instead of a silent drop, so the
// checks live in handleJoin.

func (p *gameStartedPayload) validate() error {
	if !isAlphanumeric(p.RoomCode) || p.RoundLimit < 0 {
		return errBadPayload
	}
	return nil
}

func (p *submitEntryPayload) validate() error {
	if !isAlphanumeric(p.RoomCode) || !validPlayerName(p.PlayerName) {
		return errBadPayload
	}
	return nil
}

func (p *startRankingPayload) validate() error {
	if !isAlphanumeric(p.RoomCode) || !validPlayerName(p.JudgeName) {
		return errBadPayload
	}
	return nil
}

func (p *submitRankingPayload) validate() error {
	if !isAlphanumeric(p.RoomCode) || len(p.Ranking) == 0 {
		return errBadPayload
	}
	return nil
}

func (p *requestEntriesPayload) validate() error {
	if !isAlphanumeric(p.RoomCode) {
		return errBadPayload
	}
	return nil
}

func (p *submitGuessPayload) validate() error {
	if !isAlphanumeric(p.RoomCode) || !validPlayerName(p.PlayerName) || len(p.Guess) == 0 {
		return errBadPayload
	}
	return nil
}

// Messages sent to clients

type joinErrorMessage struct {
	Type    string `json:"type"` // "joinError"
	Message string `json:"message"`
}

type playerJoinedMessage struct {
	Type       string    `json:"type"` // "playerJoined"
	PlayerName string    `json:"playerName"`
	Players    []*Player `json:"players"`
	Message    string    `json:"message,omitempty"`
}

type roomStateMessage struct {
	Type      string    `json:"type"` // "roomState"
	Players   []*Player `json:"players"`
	Phase     Phase     `json:"phase"`
	Round     int       `json:"round"`
	JudgeName string    `json:"judgeName"`
	Category  string    `json:"category"`
}

type newEntryMessage struct {
	Type      string `json:"type"` // "newEntry"
	EntryText string `json:"entry"`
}

// Sent either room-wide or to a single connection, depending on the phase.
type sendAllEntriesMessage struct {
	Type    string   `json:"type"` // "sendAllEntries"
	Entries []string `json:"entries"`
}

type gameStartedMessage struct {
	Type     string `json:"type"` // "gameStarted"
	Category string `json:"category"`
	Round    int    `json:"round"`
}

type startRankingMessage struct {
	Type      string `json:"type"` // "startRankingPhase"
	JudgeName string `json:"judgeName"`
}

type playerResult struct {
	Guess []string `json:"guess"`
	Score int      `json:"score"`
}

type revealResultsMessage struct {
	Type         string                  `json:"type"` // "revealResults"
	JudgeRanking []string                `json:"judgeRanking"`
	Results      map[string]playerResult `json:"results"`
}

type finalScoresMessage struct {
	Type   string         `json:"type"` // "finalScores"
	Scores map[string]int `json:"scores"`
}

// roomStateFor assumes the room's mutex is held.
func roomStateFor(room *Room) roomStateMessage {
	return roomStateMessage{
		Type:      "roomState",
		Players:   room.Players,
		Phase:     room.Phase,
		Round:     room.Round,
		JudgeName: room.JudgeName,
		Category:  room.Category,
	}
}
