package main

import (
	"sync"
	"time"
)

type Phase string

const (
	// The zero value means no game has started in the room yet.
	PhaseEntry   Phase = "entry"
	PhaseRanking Phase = "ranking"
	PhaseEnded   Phase = "ended"
)

// Player holds the data we store server-side. ID is the volatile
// per-connection handle, rebound on reconnect; Name is the stable identity.
type Player struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	HasGuessed bool   `json:"hasGuessed,omitempty"`
	HasRanked  bool   `json:"hasRanked,omitempty"`
}

type Entry struct {
	PlayerName string `json:"playerName"`
	EntryText  string `json:"entry"`
}

// Room is one isolated game session. All fields are guarded by mu; every
// state-mutating operation locks the room for its full duration, so no two
// handlers for the same room ever interleave mid-mutation.
type Room struct {
	mu sync.Mutex

	Code            string              `json:"code"`
	HostName        string              `json:"hostId"`
	Players         []*Player           `json:"players"`
	Entries         []Entry             `json:"entries"`
	Guesses         map[string][]string `json:"guesses"`
	JudgeRanking    []string            `json:"judgeRanking"`
	SelectedEntries []string            `json:"selectedEntries"`
	TotalScores     map[string]int      `json:"totalScores"`
	Round           int                 `json:"round"`
	RoundLimit      int                 `json:"roundLimit"`
	Phase           Phase               `json:"phase,omitempty"`
	JudgeName       string              `json:"judgeName,omitempty"`
	Category        string              `json:"category,omitempty"`
	MaxPlayers      int                 `json:"maxPlayers"`

	lastActive time.Time
}

func newRoom(code, hostName string, cfg *Config) *Room {
	return &Room{
		Code:        code,
		HostName:    hostName,
		Players:     []*Player{},
		Entries:     []Entry{},
		Guesses:     make(map[string][]string),
		TotalScores: make(map[string]int),
		Round:       1,
		RoundLimit:  cfg.roundLimit,
		MaxPlayers:  cfg.maxPlayers,
		lastActive:  time.Now(),
	}
}

// playerByName assumes r.mu is held.
func (r *Room) playerByName(name string) *Player {
	for _, p := range r.Players {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// eligibleGuessers returns the players expected to guess this round:
// everyone except the judge and the host. Assumes r.mu is held.
func (r *Room) eligibleGuessers() []*Player {
	guessers := make([]*Player, 0, len(r.Players))
	for _, p := range r.Players {
		if p.Name == r.JudgeName || p.Name == r.HostName {
			continue
		}
		guessers = append(guessers, p)
	}
	return guessers
}

// anonymousEntries returns entry texts without authorship. Assumes r.mu is held.
func (r *Room) anonymousEntries() []string {
	entries := make([]string, 0, len(r.Entries))
	for _, e := range r.Entries {
		entries = append(entries, e.EntryText)
	}
	return entries
}

// RoomStore owns the room lifecycle. Rooms are never removed unless the
// operator opts into the idle reaper.
type RoomStore struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func newRoomStore() *RoomStore {
	return &RoomStore{
		rooms: make(map[string]*Room),
	}
}

// create fails with ErrRoomExists if the code is already live. The host is
// seeded as the room's first player, initially keyed by their own name
// until a connection rebinds them.
func (s *RoomStore) create(code, hostName string, cfg *Config) (*Room, error) {
	code = normalizeCode(code)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rooms[code]; exists {
		return nil, ErrRoomExists
	}

	room := newRoom(code, hostName, cfg)
	room.Players = append(room.Players, &Player{ID: hostName, Name: hostName})
	s.rooms[code] = room

	return room, nil
}

func (s *RoomStore) get(code string) *Room {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.rooms[normalizeCode(code)]
}

// getOrCreate backs the self-healing join path: a connection holding a code
// for a room this process has never seen still lands in a usable room. The
// first joiner's name becomes the host.
func (s *RoomStore) getOrCreate(code, fallbackHost string, cfg *Config) (*Room, bool) {
	code = normalizeCode(code)

	s.mu.Lock()
	defer s.mu.Unlock()

	if room, exists := s.rooms[code]; exists {
		return room, false
	}

	room := newRoom(code, fallbackHost, cfg)
	s.rooms[code] = room

	return room, true
}

func (s *RoomStore) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.rooms)
}

// reaperLoop periodically removes rooms idle longer than cfg.roomTimeout
// and disconnects their clients. Only started for a nonzero timeout.
func (s *RoomStore) reaperLoop(cfg *Config, reg *connectionRegistry) {
	ticker := time.NewTicker(cfg.roomTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-cfg.roomTimeout)

		s.mu.Lock()
		for code, room := range s.rooms {
			room.mu.Lock()
			last := room.lastActive
			room.mu.Unlock()

			if last.Before(cutoff) {
				delete(s.rooms, code)
				logf(cfg, "ROOMS: Reaped idle room %s", code)
				go reg.closeRoom(code)
			}
		}
		s.mu.Unlock()
	}
}
