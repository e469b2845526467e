/*
Copyright © 2025 Alysia Barham
*/

package main

import (
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
)

// Minimal self-contained client for playing a room from a browser, mostly
// useful for poking at the event protocol without the real frontend.
const playHTML = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Let's Party All Night</title>
<style>
  body { font-family: system-ui, sans-serif; margin: 2rem; max-width: 40rem; }
  h1 { margin-bottom: 0.5rem; }
  #status { margin-bottom: 1rem; font-size: 0.9rem; }
  #log { list-style: none; padding: 0; }
  #log li { padding: 0.25rem 0; border-bottom: 1px solid #ddd; }
  input, button { font-size: 1rem; margin-right: 0.5rem; }
</style>
</head>
<body>
<h1 id="title">Room</h1>
<div id="status">Connecting…</div>
<div>
  <input id="entry" placeholder="Your entry">
  <button id="send">Submit entry</button>
  <button id="start">Start game</button>
</div>
<ul id="log"></ul>

<script>
(function() {
  const statusEl = document.getElementById('status');
  const logEl = document.getElementById('log');
  const roomCode = location.pathname.split('/').pop().toUpperCase();
  document.getElementById('title').textContent = 'Room ' + roomCode;

  let playerName = '';

  function append(text) {
    const li = document.createElement('li');
    li.textContent = text;
    logEl.prepend(li);
  }

  const proto = (location.protocol === 'https:') ? 'wss://' : 'ws://';
  const base = location.pathname.replace(/\/play\/[^/]+$/, '');
  const ws = new WebSocket(proto + location.host + base + '/ws');

  function emit(type, data) {
    ws.send(JSON.stringify({ type: type, data: data }));
  }

  ws.onopen = function() {
    statusEl.textContent = 'Connected.';
    playerName = prompt('Enter your name:') || '';
    if (playerName) {
      emit('joinGameRoom', { roomCode: roomCode, playerName: playerName });
    }
  };

  ws.onmessage = function(event) {
    try {
      const msg = JSON.parse(event.data);
      switch (msg.type) {
      case 'joinError':
        statusEl.textContent = msg.message;
        break;
      case 'playerJoined':
        append(msg.message);
        break;
      case 'roomState':
        append('Round ' + msg.round + ' | phase: ' + (msg.phase || 'lobby') +
          ' | judge: ' + (msg.judgeName || 'none') +
          ' | category: ' + (msg.category || 'none'));
        break;
      case 'gameStarted':
        append('Round ' + msg.round + ' started: ' + msg.category);
        break;
      case 'newEntry':
        append('New entry: ' + msg.entry);
        break;
      case 'sendAllEntries':
        append('Entries: ' + msg.entries.join(', '));
        break;
      case 'startRankingPhase':
        append('Ranking phase, judge: ' + msg.judgeName);
        break;
      case 'revealResults':
        append('Judge ranking: ' + msg.judgeRanking.join(', '));
        Object.keys(msg.results).forEach(function(name) {
          append(name + ' scored ' + msg.results[name].score);
        });
        break;
      case 'finalScores':
        Object.keys(msg.scores).forEach(function(name) {
          append('Final: ' + name + ' = ' + msg.scores[name]);
        });
        break;
      }
    } catch (e) {
      console.error('bad message', e);
    }
  };

  ws.onclose = function() {
    statusEl.textContent = 'Disconnected.';
  };

  document.getElementById('send').onclick = function() {
    const entry = document.getElementById('entry').value;
    if (entry) {
      emit('submitEntry', { roomCode: roomCode, playerName: playerName, entry: entry });
      document.getElementById('entry').value = '';
    }
  };

  document.getElementById('start').onclick = function() {
    emit('gameStarted', { roomCode: roomCode });
  };
})();
</script>
</body>
</html>
`

func servePlayPage(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		code := p.ByName("roomCode")
		if !isAlphanumeric(code) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			securityHeaders(cfg, w)
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(newPage("Invalid Room", "Room codes are alphanumeric.")))
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'unsafe-inline'; style-src 'unsafe-inline'; connect-src 'self' ws: wss:")

		_, _ = w.Write([]byte(playHTML))
	}
}
