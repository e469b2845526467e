package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		maxPlayers: 8,
		roundLimit: 5,
	}
}

func newTestServer(cfg *Config) *gameServer {
	return newGameServer(cfg, newRoomStore(), newConnectionRegistry())
}

func newTestClient(id string) *client {
	return &client{
		send: make(chan any, 64),
		id:   id,
	}
}

// drain empties a client's send channel without blocking.
func drain(c *client) []any {
	var msgs []any
	for {
		select {
		case msg := <-c.send:
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

func countType[T any](msgs []any) int {
	n := 0
	for _, m := range msgs {
		if _, ok := m.(T); ok {
			n++
		}
	}
	return n
}

// joinAll connects one client per name to the room and drains the join
// chatter so tests start from a quiet channel.
func joinAll(t *testing.T, srv *gameServer, roomCode string, names ...string) map[string]*client {
	t.Helper()

	clients := make(map[string]*client, len(names))
	for _, name := range names {
		c := newTestClient("conn-" + name)
		srv.handleJoin(c, joinGameRoomPayload{RoomCode: roomCode, PlayerName: name})
		clients[name] = c
	}
	for _, c := range clients {
		drain(c)
	}
	return clients
}

func TestHandleJoin(t *testing.T) {
	t.Run("rejects invalid names", func(t *testing.T) {
		srv := newTestServer(testConfig())
		c := newTestClient("c1")

		srv.handleJoin(c, joinGameRoomPayload{RoomCode: "PARTY1", PlayerName: "bad name!"})

		msgs := drain(c)
		require.Len(t, msgs, 1)
		joinErr, ok := msgs[0].(joinErrorMessage)
		require.True(t, ok)
		assert.Equal(t, "Invalid room code or name.", joinErr.Message)
		assert.Equal(t, 0, srv.store.count())
	})

	t.Run("self-heals missing rooms with joiner as host", func(t *testing.T) {
		srv := newTestServer(testConfig())
		c := newTestClient("c1")

		srv.handleJoin(c, joinGameRoomPayload{RoomCode: "party1", PlayerName: "Alice"})

		room := srv.store.get("PARTY1")
		require.NotNil(t, room)
		assert.Equal(t, "Alice", room.HostName)
		require.Len(t, room.Players, 1)
		assert.Equal(t, "c1", room.Players[0].ID)

		msgs := drain(c)
		assert.Equal(t, 1, countType[playerJoinedMessage](msgs))
		assert.Equal(t, 1, countType[roomStateMessage](msgs))
	})

	t.Run("rejects a name held by a live connection", func(t *testing.T) {
		srv := newTestServer(testConfig())
		joinAll(t, srv, "PARTY1", "Alice")

		impostor := newTestClient("c2")
		srv.handleJoin(impostor, joinGameRoomPayload{RoomCode: "PARTY1", PlayerName: "Alice"})

		msgs := drain(impostor)
		require.Len(t, msgs, 1)
		joinErr, ok := msgs[0].(joinErrorMessage)
		require.True(t, ok)
		assert.Equal(t, "Name already taken in this room.", joinErr.Message)

		room := srv.store.get("PARTY1")
		assert.Len(t, room.Players, 1)
	})

	t.Run("rebinds a name whose connection went stale", func(t *testing.T) {
		srv := newTestServer(testConfig())
		clients := joinAll(t, srv, "PARTY1", "Alice")

		srv.disconnect(clients["Alice"])

		replacement := newTestClient("c2")
		srv.handleJoin(replacement, joinGameRoomPayload{RoomCode: "PARTY1", PlayerName: "Alice"})

		msgs := drain(replacement)
		assert.Equal(t, 0, countType[joinErrorMessage](msgs))

		room := srv.store.get("PARTY1")
		require.Len(t, room.Players, 1)
		assert.Equal(t, "c2", room.Players[0].ID)
	})

	t.Run("rejects joins beyond max players", func(t *testing.T) {
		cfg := testConfig()
		cfg.maxPlayers = 2
		srv := newTestServer(cfg)
		joinAll(t, srv, "PARTY1", "Alice", "Bob")

		third := newTestClient("c3")
		srv.handleJoin(third, joinGameRoomPayload{RoomCode: "PARTY1", PlayerName: "Carol"})

		msgs := drain(third)
		require.Len(t, msgs, 1)
		joinErr, ok := msgs[0].(joinErrorMessage)
		require.True(t, ok)
		assert.Equal(t, "Room is full.", joinErr.Message)
	})
}

func TestHandleJoinEvictsStalledConnection(t *testing.T) {
	srv := newTestServer(testConfig())
	clients := joinAll(t, srv, "PARTY1", "Alice")

	stalled := &client{send: make(chan any), id: "c2"}
	srv.handleJoin(stalled, joinGameRoomPayload{RoomCode: "PARTY1", PlayerName: "Bob"})

	// The join broadcast evicts the stalled connection, so the follow-up
	// private room state is dropped instead of hitting a closed channel.
	assert.Nil(t, srv.reg.clientFor("PARTY1", "Bob"))

	room := srv.store.get("PARTY1")
	require.Len(t, room.Players, 2)

	msgs := drain(clients["Alice"])
	assert.Equal(t, 1, countType[playerJoinedMessage](msgs))
}

func TestHandleStartGame(t *testing.T) {
	t.Run("no-op for unknown or empty rooms", func(t *testing.T) {
		srv := newTestServer(testConfig())

		srv.handleStartGame(gameStartedPayload{RoomCode: "NOPE"})

		room, _ := srv.store.getOrCreate("EMPTY1", "ghost", srv.cfg)
		srv.handleStartGame(gameStartedPayload{RoomCode: "EMPTY1"})
		assert.Equal(t, Phase(""), room.Phase)
	})

	t.Run("resets state and announces round one", func(t *testing.T) {
		srv := newTestServer(testConfig())
		clients := joinAll(t, srv, "PARTY1", "Alice", "Bob", "Carol")

		srv.handleStartGame(gameStartedPayload{RoomCode: "PARTY1", RoundLimit: 3})

		room := srv.store.get("PARTY1")
		assert.Equal(t, PhaseEntry, room.Phase)
		assert.Equal(t, 1, room.Round)
		assert.Equal(t, 3, room.RoundLimit)
		assert.Equal(t, "Alice", room.JudgeName)
		assert.NotEmpty(t, room.Category)
		assert.Empty(t, room.Entries)
		assert.Empty(t, room.Guesses)
		assert.Empty(t, room.TotalScores)

		for _, c := range clients {
			msgs := drain(c)
			require.Equal(t, 1, countType[gameStartedMessage](msgs))
		}
	})

	t.Run("falls back to the configured round limit", func(t *testing.T) {
		srv := newTestServer(testConfig())
		joinAll(t, srv, "PARTY1", "Alice")

		srv.handleStartGame(gameStartedPayload{RoomCode: "PARTY1"})

		assert.Equal(t, 5, srv.store.get("PARTY1").RoundLimit)
	})
}

func TestHandleSubmitEntry(t *testing.T) {
	setup := func(t *testing.T) (*gameServer, map[string]*client) {
		srv := newTestServer(testConfig())
		clients := joinAll(t, srv, "PARTY1", "Alice", "Bob", "Carol")
		srv.handleStartGame(gameStartedPayload{RoomCode: "PARTY1"})
		for _, c := range clients {
			drain(c)
		}
		return srv, clients
	}

	t.Run("appends and broadcasts anonymously", func(t *testing.T) {
		srv, clients := setup(t)

		srv.handleSubmitEntry(clients["Bob"], submitEntryPayload{
			RoomCode: "PARTY1", PlayerName: "Bob", EntryText: "Mint Chip",
		})

		room := srv.store.get("PARTY1")
		require.Len(t, room.Entries, 1)
		assert.Equal(t, "Bob", room.Entries[0].PlayerName)

		carolMsgs := drain(clients["Carol"])
		require.Equal(t, 1, countType[newEntryMessage](carolMsgs))
		for _, m := range carolMsgs {
			if entry, ok := m.(newEntryMessage); ok {
				assert.Equal(t, "Mint Chip", entry.EntryText)
			}
		}

		// Judge gets the updated pool privately.
		judgeMsgs := drain(clients["Alice"])
		assert.Equal(t, 1, countType[sendAllEntriesMessage](judgeMsgs))
	})

	t.Run("drops invalid text", func(t *testing.T) {
		srv, clients := setup(t)

		srv.handleSubmitEntry(clients["Bob"], submitEntryPayload{
			RoomCode: "PARTY1", PlayerName: "Bob", EntryText: "   ",
		})
		srv.handleSubmitEntry(clients["Bob"], submitEntryPayload{
			RoomCode: "PARTY1", PlayerName: "Bob", EntryText: "nope!!",
		})

		assert.Empty(t, srv.store.get("PARTY1").Entries)
	})

	t.Run("allows spaces inside otherwise alphanumeric text", func(t *testing.T) {
		srv, clients := setup(t)

		srv.handleSubmitEntry(clients["Bob"], submitEntryPayload{
			RoomCode: "PARTY1", PlayerName: "Bob", EntryText: "Rocky Road 2",
		})

		assert.Len(t, srv.store.get("PARTY1").Entries, 1)
	})

	t.Run("one entry per player per round", func(t *testing.T) {
		srv, clients := setup(t)

		srv.handleSubmitEntry(clients["Bob"], submitEntryPayload{
			RoomCode: "PARTY1", PlayerName: "Bob", EntryText: "first",
		})
		srv.handleSubmitEntry(clients["Bob"], submitEntryPayload{
			RoomCode: "PARTY1", PlayerName: "Bob", EntryText: "second",
		})

		room := srv.store.get("PARTY1")
		require.Len(t, room.Entries, 1)
		assert.Equal(t, "first", room.Entries[0].EntryText)
	})

	t.Run("drops entries from non-members", func(t *testing.T) {
		srv, clients := setup(t)

		srv.handleSubmitEntry(clients["Bob"], submitEntryPayload{
			RoomCode: "PARTY1", PlayerName: "Mallory", EntryText: "sneaky",
		})

		assert.Empty(t, srv.store.get("PARTY1").Entries)
	})
}

func TestHandleStartRanking(t *testing.T) {
	t.Run("broadcasts judge and sends entries privately", func(t *testing.T) {
		srv := newTestServer(testConfig())
		clients := joinAll(t, srv, "PARTY1", "Alice", "Bob")
		srv.handleStartGame(gameStartedPayload{RoomCode: "PARTY1"})
		srv.handleSubmitEntry(clients["Bob"], submitEntryPayload{
			RoomCode: "PARTY1", PlayerName: "Bob", EntryText: "Tacos",
		})
		for _, c := range clients {
			drain(c)
		}

		srv.handleStartRanking(clients["Alice"], startRankingPayload{
			RoomCode: "PARTY1", JudgeName: "Alice",
		})

		room := srv.store.get("PARTY1")
		assert.Equal(t, PhaseRanking, room.Phase)

		aliceMsgs := drain(clients["Alice"])
		assert.Equal(t, 1, countType[startRankingMessage](aliceMsgs))
		assert.Equal(t, 1, countType[sendAllEntriesMessage](aliceMsgs))

		bobMsgs := drain(clients["Bob"])
		assert.Equal(t, 1, countType[startRankingMessage](bobMsgs))
		assert.Equal(t, 0, countType[sendAllEntriesMessage](bobMsgs))
	})

	t.Run("falls back to the triggering connection when judge is offline", func(t *testing.T) {
		srv := newTestServer(testConfig())
		clients := joinAll(t, srv, "PARTY1", "Alice", "Bob")
		srv.handleStartGame(gameStartedPayload{RoomCode: "PARTY1"})
		srv.handleSubmitEntry(clients["Bob"], submitEntryPayload{
			RoomCode: "PARTY1", PlayerName: "Bob", EntryText: "Tacos",
		})
		srv.disconnect(clients["Alice"])
		drain(clients["Bob"])

		srv.handleStartRanking(clients["Bob"], startRankingPayload{
			RoomCode: "PARTY1", JudgeName: "Alice",
		})

		bobMsgs := drain(clients["Bob"])
		assert.Equal(t, 1, countType[sendAllEntriesMessage](bobMsgs))
	})
}

func TestHandleSubmitRanking(t *testing.T) {
	srv := newTestServer(testConfig())
	clients := joinAll(t, srv, "PARTY1", "Alice", "Bob")
	srv.handleStartGame(gameStartedPayload{RoomCode: "PARTY1"})
	for _, c := range clients {
		drain(c)
	}

	ranking := []string{"A", "B", "C"}
	srv.handleSubmitRanking(submitRankingPayload{RoomCode: "PARTY1", Ranking: ranking})

	room := srv.store.get("PARTY1")
	assert.Equal(t, ranking, room.JudgeRanking)
	assert.Equal(t, ranking, room.SelectedEntries)

	judge := room.playerByName("Alice")
	require.NotNil(t, judge)
	assert.True(t, judge.HasRanked)

	// Everyone receives a shuffled presentation list with the same members.
	bobMsgs := drain(clients["Bob"])
	require.Equal(t, 1, countType[sendAllEntriesMessage](bobMsgs))
	for _, m := range bobMsgs {
		if entries, ok := m.(sendAllEntriesMessage); ok {
			assert.ElementsMatch(t, ranking, entries.Entries)
		}
	}
}

func TestHandleRequestEntries(t *testing.T) {
	srv := newTestServer(testConfig())
	clients := joinAll(t, srv, "PARTY1", "Alice", "Bob")

	// Nothing selected yet: no-op.
	srv.handleRequestEntries(clients["Bob"], requestEntriesPayload{RoomCode: "PARTY1"})
	assert.Empty(t, drain(clients["Bob"]))

	srv.handleStartGame(gameStartedPayload{RoomCode: "PARTY1"})
	srv.handleSubmitRanking(submitRankingPayload{RoomCode: "PARTY1", Ranking: []string{"A", "B"}})
	for _, c := range clients {
		drain(c)
	}

	srv.handleRequestEntries(clients["Bob"], requestEntriesPayload{RoomCode: "PARTY1"})
	msgs := drain(clients["Bob"])
	require.Len(t, msgs, 1)
	entries, ok := msgs[0].(sendAllEntriesMessage)
	require.True(t, ok)
	assert.Equal(t, []string{"A", "B"}, entries.Entries)
}

// startRound brings a room with host Alice plus Bob and Carol to the point
// where guesses are accepted against the given judge ranking.
func startRound(t *testing.T, srv *gameServer, roundLimit int, ranking []string) map[string]*client {
	t.Helper()

	_, err := srv.store.create("PARTY1", "Alice", srv.cfg)
	require.NoError(t, err)

	clients := joinAll(t, srv, "PARTY1", "Alice", "Bob", "Carol")
	srv.handleStartGame(gameStartedPayload{RoomCode: "PARTY1", RoundLimit: roundLimit})
	srv.handleSubmitRanking(submitRankingPayload{RoomCode: "PARTY1", Ranking: ranking})
	for _, c := range clients {
		drain(c)
	}
	return clients
}

func TestHandleSubmitGuess(t *testing.T) {
	t.Run("perfect match earns the bonus", func(t *testing.T) {
		srv := newTestServer(testConfig())
		clients := startRound(t, srv, 5, []string{"A", "B", "C"})

		srv.handleSubmitGuess(submitGuessPayload{
			RoomCode: "PARTY1", PlayerName: "Bob", Guess: []string{"A", "B", "C"},
		})
		srv.handleSubmitGuess(submitGuessPayload{
			RoomCode: "PARTY1", PlayerName: "Carol", Guess: []string{"A", "C", "B"},
		})

		msgs := drain(clients["Bob"])
		require.Equal(t, 1, countType[revealResultsMessage](msgs))
		for _, m := range msgs {
			if reveal, ok := m.(revealResultsMessage); ok {
				assert.Equal(t, []string{"A", "B", "C"}, reveal.JudgeRanking)
				assert.Equal(t, 6, reveal.Results["Bob"].Score)
				assert.Equal(t, 1, reveal.Results["Carol"].Score)
			}
		}

		room := srv.store.get("PARTY1")
		assert.Equal(t, 6, room.TotalScores["Bob"])
		assert.Equal(t, 1, room.TotalScores["Carol"])
	})

	t.Run("second guess from the same name is ignored", func(t *testing.T) {
		srv := newTestServer(testConfig())
		clients := startRound(t, srv, 5, []string{"A", "B", "C"})

		srv.handleSubmitGuess(submitGuessPayload{
			RoomCode: "PARTY1", PlayerName: "Bob", Guess: []string{"A", "B", "C"},
		})
		srv.handleSubmitGuess(submitGuessPayload{
			RoomCode: "PARTY1", PlayerName: "Bob", Guess: []string{"C", "B", "A"},
		})

		room := srv.store.get("PARTY1")
		assert.Equal(t, []string{"A", "B", "C"}, room.Guesses["Bob"])

		// Round has not closed; only Carol is still owed a guess.
		assert.Equal(t, 0, countType[revealResultsMessage](drain(clients["Carol"])))
	})

	t.Run("judge and host guesses are dropped", func(t *testing.T) {
		srv := newTestServer(testConfig())
		startRound(t, srv, 5, []string{"A", "B"})

		// Alice is both host and judge in round 1.
		srv.handleSubmitGuess(submitGuessPayload{
			RoomCode: "PARTY1", PlayerName: "Alice", Guess: []string{"A", "B"},
		})

		room := srv.store.get("PARTY1")
		assert.Empty(t, room.Guesses)
	})

	t.Run("round closes once per round and rotates the judge", func(t *testing.T) {
		srv := newTestServer(testConfig())
		clients := startRound(t, srv, 2, []string{"A", "B"})

		srv.handleSubmitGuess(submitGuessPayload{
			RoomCode: "PARTY1", PlayerName: "Bob", Guess: []string{"A", "B"},
		})
		srv.handleSubmitGuess(submitGuessPayload{
			RoomCode: "PARTY1", PlayerName: "Carol", Guess: []string{"B", "A"},
		})

		room := srv.store.get("PARTY1")
		assert.Equal(t, 2, room.Round)
		assert.Equal(t, "Bob", room.JudgeName)
		assert.Equal(t, PhaseEntry, room.Phase)
		assert.Empty(t, room.Entries)
		assert.Empty(t, room.Guesses)

		msgs := drain(clients["Carol"])
		assert.Equal(t, 1, countType[revealResultsMessage](msgs))
		assert.Equal(t, 1, countType[gameStartedMessage](msgs))
		assert.Equal(t, 1, countType[startRankingMessage](msgs))
		assert.Equal(t, 0, countType[finalScoresMessage](msgs))
	})

	t.Run("final round ends the game with cumulative scores", func(t *testing.T) {
		srv := newTestServer(testConfig())
		clients := startRound(t, srv, 1, []string{"A", "B"})

		srv.handleSubmitGuess(submitGuessPayload{
			RoomCode: "PARTY1", PlayerName: "Bob", Guess: []string{"A", "B"},
		})
		srv.handleSubmitGuess(submitGuessPayload{
			RoomCode: "PARTY1", PlayerName: "Carol", Guess: []string{"B", "A"},
		})

		room := srv.store.get("PARTY1")
		assert.Equal(t, PhaseEnded, room.Phase)
		assert.Equal(t, 1, room.Round)

		msgs := drain(clients["Bob"])
		require.Equal(t, 1, countType[finalScoresMessage](msgs))
		for _, m := range msgs {
			if final, ok := m.(finalScoresMessage); ok {
				assert.Equal(t, 5, final.Scores["Bob"])
				assert.Equal(t, 0, final.Scores["Carol"])
			}
		}

		// Terminal: further guesses change nothing.
		srv.handleSubmitGuess(submitGuessPayload{
			RoomCode: "PARTY1", PlayerName: "Bob", Guess: []string{"A", "B"},
		})
		assert.Empty(t, drain(clients["Bob"]))
	})
}

func TestJudgeRotationInvariant(t *testing.T) {
	srv := newTestServer(testConfig())
	_, err := srv.store.create("PARTY1", "Alice", srv.cfg)
	require.NoError(t, err)
	clients := joinAll(t, srv, "PARTY1", "Alice", "Bob", "Carol")

	srv.handleStartGame(gameStartedPayload{RoomCode: "PARTY1", RoundLimit: 5})
	room := srv.store.get("PARTY1")

	for round := 1; round <= 4; round++ {
		require.Equal(t, round, room.Round)
		assert.Equal(t, room.Players[(round-1)%len(room.Players)].Name, room.JudgeName)

		srv.handleSubmitRanking(submitRankingPayload{RoomCode: "PARTY1", Ranking: []string{"A"}})
		for name := range clients {
			if name == room.JudgeName || name == room.HostName {
				continue
			}
			srv.handleSubmitGuess(submitGuessPayload{
				RoomCode: "PARTY1", PlayerName: name, Guess: []string{"A"},
			})
		}
	}

	assert.Equal(t, 5, room.Round)
	assert.Equal(t, room.Players[(5-1)%len(room.Players)].Name, room.JudgeName)
}

func TestJudgeRejoinMidRankingGetsEntries(t *testing.T) {
	srv := newTestServer(testConfig())
	clients := joinAll(t, srv, "PARTY1", "Alice", "Bob")
	srv.handleStartGame(gameStartedPayload{RoomCode: "PARTY1"})
	srv.handleSubmitEntry(clients["Bob"], submitEntryPayload{
		RoomCode: "PARTY1", PlayerName: "Bob", EntryText: "Tacos",
	})
	srv.handleStartRanking(clients["Alice"], startRankingPayload{
		RoomCode: "PARTY1", JudgeName: "Alice",
	})

	srv.disconnect(clients["Alice"])

	rejoined := newTestClient("conn-Alice-2")
	srv.handleJoin(rejoined, joinGameRoomPayload{RoomCode: "PARTY1", PlayerName: "Alice"})

	msgs := drain(rejoined)
	require.Equal(t, 1, countType[sendAllEntriesMessage](msgs))
	for _, m := range msgs {
		if entries, ok := m.(sendAllEntriesMessage); ok {
			assert.Equal(t, []string{"Tacos"}, entries.Entries)
		}
	}
}

func TestShuffledCopy(t *testing.T) {
	original := []string{"A", "B", "C", "D", "E"}
	shuffled := shuffledCopy(original)

	assert.Equal(t, []string{"A", "B", "C", "D", "E"}, original)
	assert.ElementsMatch(t, original, shuffled)
}
