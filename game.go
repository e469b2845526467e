// Game flow, one room at a time:
//
// Players join a room by code and the host starts a game. Each round has a
// prompt category; every player except the judge submits a free-text entry.
// The judge ranks the anonymous entries, guessers try to reconstruct the
// judge's order from a shuffled copy, and scores are awarded per matching
// position with a bonus for a perfect match. The judge seat rotates
// round-robin; after the configured number of rounds the cumulative scores
// are broadcast and the room's game is over.

package main

import (
	"time"
)

// gameServer owns the gameplay event handlers. Each handler locks the
// target room for its full duration, so handlers for the same room never
// interleave; the registry has its own lock and is only ever acquired
// while a room lock is already held, never the other way around.
type gameServer struct {
	cfg   *Config
	store *RoomStore
	reg   *connectionRegistry
}

func newGameServer(cfg *Config, store *RoomStore, reg *connectionRegistry) *gameServer {
	return &gameServer{
		cfg:   cfg,
		store: store,
		reg:   reg,
	}
}

// handleJoin binds a connection to (room, player). Unknown rooms are
// created on the fly so a client holding a code always lands somewhere;
// the first joiner of a healed room becomes its host.
func (g *gameServer) handleJoin(c *client, p joinGameRoomPayload) {
	if !isAlphanumeric(p.RoomCode) || !validPlayerName(p.PlayerName) {
		logf(g.cfg, "GAMES: Blocked invalid join from %s", c.id)
		g.reg.sendTo(c, joinErrorMessage{
			Type:    "joinError",
			Message: "Invalid room code or name.",
		})
		return
	}

	room, created := g.store.getOrCreate(p.RoomCode, p.PlayerName, g.cfg)
	if created {
		logf(g.cfg, "ROOMS: Created room %s for %q on join", room.Code, p.PlayerName)
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	room.lastActive = time.Now()

	// Reject names held by a different live connection; a stale binding
	// under the same name was already cleared on disconnect, so the
	// reconnecting player simply rebinds below.
	if existing := g.reg.clientFor(room.Code, p.PlayerName); existing != nil && existing != c {
		logf(g.cfg, "GAMES: Name %q already taken in %s", p.PlayerName, room.Code)
		g.reg.sendTo(c, joinErrorMessage{
			Type:    "joinError",
			Message: "Name already taken in this room.",
		})
		return
	}

	player := room.playerByName(p.PlayerName)
	if player != nil {
		player.ID = c.id
	} else {
		if len(room.Players) >= room.MaxPlayers {
			g.reg.sendTo(c, joinErrorMessage{
				Type:    "joinError",
				Message: "Room is full.",
			})
			return
		}
		player = &Player{ID: c.id, Name: p.PlayerName}
		room.Players = append(room.Players, player)
	}

	g.reg.bind(c, room.Code, p.PlayerName)
	logf(g.cfg, "GAMES: %q (%s) joined %s", p.PlayerName, c.id, room.Code)

	g.reg.broadcast(room.Code, playerJoinedMessage{
		Type:       "playerJoined",
		PlayerName: p.PlayerName,
		Players:    room.Players,
		Message:    p.PlayerName + " has joined the game.",
	})

	g.reg.sendTo(c, roomStateFor(room))

	// A judge refreshing mid-ranking gets the entry pool again.
	if room.Phase == PhaseRanking && room.JudgeName == p.PlayerName && !player.HasRanked {
		g.reg.sendTo(c, sendAllEntriesMessage{
			Type:    "sendAllEntries",
			Entries: room.anonymousEntries(),
		})
		logf(g.cfg, "GAMES: Re-sent entries to judge %q in %s", p.PlayerName, room.Code)
	}
}

// handleStartGame resets the room for a fresh game and announces round 1.
func (g *gameServer) handleStartGame(p gameStartedPayload) {
	room := g.store.get(p.RoomCode)
	if room == nil {
		logf(g.cfg, "GAMES: Start for unknown room %q", p.RoomCode)
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if len(room.Players) == 0 {
		return
	}

	room.lastActive = time.Now()
	if p.RoundLimit > 0 {
		room.RoundLimit = p.RoundLimit
	} else {
		room.RoundLimit = g.cfg.roundLimit
	}
	room.Round = 1
	room.Phase = PhaseEntry
	room.TotalScores = make(map[string]int)
	room.Entries = []Entry{}
	room.Guesses = make(map[string][]string)
	room.JudgeRanking = nil
	room.SelectedEntries = nil
	room.Category = pickCategory()
	room.JudgeName = room.Players[(room.Round-1)%len(room.Players)].Name
	for _, pl := range room.Players {
		pl.HasGuessed = false
		pl.HasRanked = false
	}

	logf(g.cfg, "GAMES: Game started in %s | Round %d/%d | Judge: %q",
		room.Code, room.Round, room.RoundLimit, room.JudgeName)

	g.reg.broadcast(room.Code, gameStartedMessage{
		Type:     "gameStarted",
		Category: room.Category,
		Round:    room.Round,
	})
}

// handleSubmitEntry appends a player's entry and fans the anonymous text
// out to the room, plus the full pool to the judge only.
func (g *gameServer) handleSubmitEntry(c *client, p submitEntryPayload) {
	room := g.store.get(p.RoomCode)
	if room == nil {
		return
	}

	if !validEntryText(p.EntryText) {
		logf(g.cfg, "GAMES: Invalid entry from %q: %q", p.PlayerName, p.EntryText)
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.Phase == PhaseEnded {
		return
	}

	if room.playerByName(p.PlayerName) == nil {
		logf(g.cfg, "GAMES: Entry from non-member %q in %s", p.PlayerName, room.Code)
		return
	}

	// One entry per player per round.
	for _, e := range room.Entries {
		if e.PlayerName == p.PlayerName {
			logf(g.cfg, "GAMES: Duplicate entry from %q in %s ignored", p.PlayerName, room.Code)
			return
		}
	}

	room.lastActive = time.Now()
	room.Entries = append(room.Entries, Entry{PlayerName: p.PlayerName, EntryText: p.EntryText})
	logf(g.cfg, "GAMES: Entry from %q in %s: %q", p.PlayerName, room.Code, p.EntryText)

	g.reg.broadcast(room.Code, newEntryMessage{
		Type:      "newEntry",
		EntryText: p.EntryText,
	})

	// Live-updating anonymous pool for the judge's client.
	if room.JudgeName != "" {
		if judgeClient := g.reg.clientFor(room.Code, room.JudgeName); judgeClient != nil {
			g.reg.sendTo(judgeClient, sendAllEntriesMessage{
				Type:    "sendAllEntries",
				Entries: room.anonymousEntries(),
			})
		}
	}

	g.reg.sendTo(c, roomStateFor(room))
}

// handleStartRanking moves the room into the ranking phase and delivers
// the anonymous entry pool to the judge.
func (g *gameServer) handleStartRanking(c *client, p startRankingPayload) {
	room := g.store.get(p.RoomCode)
	if room == nil {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.Phase == PhaseEnded {
		return
	}

	if room.playerByName(p.JudgeName) == nil {
		logf(g.cfg, "GAMES: Ranking start for non-member judge %q in %s", p.JudgeName, room.Code)
		return
	}

	room.lastActive = time.Now()
	room.JudgeName = p.JudgeName
	room.Phase = PhaseRanking

	logf(g.cfg, "GAMES: Ranking phase started in %s by judge %q", room.Code, p.JudgeName)

	g.reg.broadcast(room.Code, startRankingMessage{
		Type:      "startRankingPhase",
		JudgeName: room.JudgeName,
	})

	// Fall back to the triggering connection if the judge has no live one.
	target := g.reg.clientFor(room.Code, room.JudgeName)
	if target == nil {
		logf(g.cfg, "GAMES: No live connection for judge %q in %s", p.JudgeName, room.Code)
		target = c
	}

	if len(room.Entries) > 0 {
		g.reg.sendTo(target, sendAllEntriesMessage{
			Type:    "sendAllEntries",
			Entries: room.anonymousEntries(),
		})
	}
}

// handleSubmitRanking records the judge's true order server-side and
// broadcasts a shuffled copy for guessers to rank against.
func (g *gameServer) handleSubmitRanking(p submitRankingPayload) {
	room := g.store.get(p.RoomCode)
	if room == nil {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.Phase == PhaseEnded {
		return
	}

	room.lastActive = time.Now()
	room.Phase = PhaseRanking
	if judge := room.playerByName(room.JudgeName); judge != nil {
		judge.HasRanked = true
	}

	room.JudgeRanking = p.Ranking
	room.SelectedEntries = p.Ranking

	shuffled := shuffledCopy(p.Ranking)
	g.reg.broadcast(room.Code, sendAllEntriesMessage{
		Type:    "sendAllEntries",
		Entries: shuffled,
	})

	logf(g.cfg, "GAMES: Shuffled ranking sent to guessers in %s", room.Code)
}

// handleRequestEntries re-sends the current presentation list to one
// connection, for client-side refresh recovery. Idempotent.
func (g *gameServer) handleRequestEntries(c *client, p requestEntriesPayload) {
	room := g.store.get(p.RoomCode)
	if room == nil {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if len(room.SelectedEntries) == 0 {
		return
	}

	g.reg.sendTo(c, sendAllEntriesMessage{
		Type:    "sendAllEntries",
		Entries: room.SelectedEntries,
	})
}

// handleSubmitGuess records one guess per eligible guesser per round and
// closes the round once every guesser has submitted.
func (g *gameServer) handleSubmitGuess(p submitGuessPayload) {
	room := g.store.get(p.RoomCode)
	if room == nil {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.Phase == PhaseEnded {
		return
	}

	if _, dup := room.Guesses[p.PlayerName]; dup {
		logf(g.cfg, "GAMES: %q already submitted a guess in %s, ignoring", p.PlayerName, room.Code)
		return
	}

	player := room.playerByName(p.PlayerName)
	if player == nil || p.PlayerName == room.JudgeName || p.PlayerName == room.HostName {
		logf(g.cfg, "GAMES: Guess from ineligible %q in %s ignored", p.PlayerName, room.Code)
		return
	}

	room.lastActive = time.Now()
	room.Guesses[p.PlayerName] = p.Guess
	player.HasGuessed = true

	guessers := room.eligibleGuessers()
	received := 0
	for _, pl := range guessers {
		if _, ok := room.Guesses[pl.Name]; ok {
			received++
		}
	}

	logf(g.cfg, "GAMES: Guess %d/%d received in %s", received, len(guessers), room.Code)

	if received < len(guessers) {
		return
	}

	g.closeRoundLocked(room)
}

// closeRoundLocked scores all guesses, reveals results, and either chains
// the next round or ends the game. Fires exactly once per round: callers
// reach it only when the final eligible guess lands, and the round's
// guesses are cleared (or the phase goes terminal) before the lock drops.
// Assumes room.mu is held.
func (g *gameServer) closeRoundLocked(room *Room) {
	results := make(map[string]playerResult, len(room.Guesses))
	for name, guess := range room.Guesses {
		score := 0
		for i := range guess {
			if i < len(room.JudgeRanking) && guess[i] == room.JudgeRanking[i] {
				score++
			}
		}

		// Matching the judge in every position earns a bonus.
		if len(room.JudgeRanking) > 0 && score == len(room.JudgeRanking) {
			score += 3
			logf(g.cfg, "GAMES: Perfect match by %q in %s", name, room.Code)
		}

		results[name] = playerResult{Guess: guess, Score: score}
	}

	g.reg.broadcast(room.Code, revealResultsMessage{
		Type:         "revealResults",
		JudgeRanking: room.JudgeRanking,
		Results:      results,
	})

	for name, result := range results {
		room.TotalScores[name] += result.Score
	}

	if room.Round < room.RoundLimit {
		room.Round++
		room.JudgeName = room.Players[(room.Round-1)%len(room.Players)].Name
		room.Entries = []Entry{}
		room.Guesses = make(map[string][]string)
		room.JudgeRanking = nil
		room.SelectedEntries = nil
		room.Phase = PhaseEntry
		room.Category = pickCategory()
		for _, pl := range room.Players {
			pl.HasGuessed = false
			pl.HasRanked = false
		}

		logf(g.cfg, "GAMES: Starting round %d in %s | Judge: %q", room.Round, room.Code, room.JudgeName)

		g.reg.broadcast(room.Code, gameStartedMessage{
			Type:     "gameStarted",
			Category: room.Category,
			Round:    room.Round,
		})
		g.reg.broadcast(room.Code, startRankingMessage{
			Type:      "startRankingPhase",
			JudgeName: room.JudgeName,
		})
	} else {
		room.Phase = PhaseEnded
		g.reg.broadcast(room.Code, finalScoresMessage{
			Type:   "finalScores",
			Scores: room.TotalScores,
		})
		logf(g.cfg, "GAMES: Game ended in %s after round %d", room.Code, room.Round)
	}
}

// disconnect clears the connection's registry binding. The player entry
// stays in the room so the same name can rebind on reconnect.
func (g *gameServer) disconnect(c *client) {
	if name, ok := g.reg.playerNameOf(c); ok {
		logf(g.cfg, "SOCKET: Disconnected %q (%s)", name, c.id)
	} else {
		logf(g.cfg, "SOCKET: Disconnected %s", c.id)
	}
	g.reg.remove(c)
}

// shuffledCopy returns a uniform Fisher-Yates shuffle of the input,
// leaving the original untouched.
func shuffledCopy(entries []string) []string {
	out := make([]string, len(entries))
	copy(out, entries)

	for i := len(out) - 1; i > 0; i-- {
		j := randIndex(i + 1)
		out[i], out[j] = out[j], out[i]
	}

	return out
}
