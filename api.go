package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

type createRoomRequest struct {
	HostID   string `json:"hostId"`
	RoomCode string `json:"roomCode,omitempty"`
}

type joinRoomRequest struct {
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
}

func writeJSON(cfg *Config, w http.ResponseWriter, status int, v any) int {
	data, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return 0
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)+1))
	securityHeaders(cfg, w)
	w.WriteHeader(status)

	written, _ := w.Write(append(data, '\n'))
	return written
}

func writeError(cfg *Config, w http.ResponseWriter, status int, message string) int {
	return writeJSON(cfg, w, status, map[string]string{"error": message})
}

func serveGreeting(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)

		_, err := w.Write([]byte("Hello from the Let's Party All Night backend!\n"))
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveCreateRoom(cfg *Config, store *RoomStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		var req createRoomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(cfg, w, http.StatusBadRequest, "Invalid request body.")
			return
		}

		if !isAlphanumeric(req.HostID) {
			writeError(cfg, w, http.StatusBadRequest, "Host name must be alphanumeric.")
			return
		}

		code := req.RoomCode
		if code == "" {
			code = store.newRoomCode()
		} else if !isAlphanumeric(code) {
			writeError(cfg, w, http.StatusBadRequest, "Room code must be alphanumeric.")
			return
		}

		room, err := store.create(code, req.HostID, cfg)
		if err != nil {
			writeError(cfg, w, http.StatusBadRequest, "Room code already exists.")
			return
		}

		room.mu.Lock()
		written := writeJSON(cfg, w, http.StatusCreated, map[string]any{
			"message":  "Room created successfully!",
			"roomCode": room.Code,
			"room":     room,
		})
		room.mu.Unlock()

		logf(cfg, "ROOMS: Created %s for %q (%s) from %s in %s",
			room.Code,
			req.HostID,
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func serveJoinRoom(cfg *Config, store *RoomStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		var req joinRoomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(cfg, w, http.StatusBadRequest, "Invalid request body.")
			return
		}

		if !isAlphanumeric(req.RoomCode) || !validPlayerName(req.PlayerID) {
			writeError(cfg, w, http.StatusBadRequest, "Invalid roomCode or playerId.")
			return
		}

		room := store.get(req.RoomCode)
		if room == nil {
			writeError(cfg, w, http.StatusNotFound, "Room not found.")
			return
		}

		room.mu.Lock()
		defer room.mu.Unlock()

		if room.playerByName(req.PlayerID) != nil {
			writeJSON(cfg, w, http.StatusOK, map[string]any{
				"message": "Player already in room.",
				"room":    room,
			})
			return
		}

		if len(room.Players) >= room.MaxPlayers {
			writeError(cfg, w, http.StatusForbidden, "Room is full.")
			return
		}

		room.lastActive = time.Now()
		room.Players = append(room.Players, &Player{ID: req.PlayerID, Name: req.PlayerID})

		written := writeJSON(cfg, w, http.StatusOK, map[string]any{
			"message": "Successfully joined room!",
			"room":    room,
		})

		logf(cfg, "ROOMS: %q joined %s (%s) from %s in %s",
			req.PlayerID,
			room.Code,
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func serveRoom(cfg *Config, store *RoomStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		code := p.ByName("roomCode")
		if !isAlphanumeric(code) {
			writeError(cfg, w, http.StatusBadRequest, "Room code must be alphanumeric.")
			return
		}

		room := store.get(code)
		if room == nil {
			writeError(cfg, w, http.StatusNotFound, "Room not found.")
			return
		}

		room.mu.Lock()
		defer room.mu.Unlock()

		writeJSON(cfg, w, http.StatusOK, room)
	}
}

// serveRoomQR renders a QR code pointing at the room's client page, for
// sharing a session across the table.
func serveRoomQR(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		code := p.ByName("roomCode")
		if !isAlphanumeric(code) {
			writeError(cfg, w, http.StatusBadRequest, "Room code must be alphanumeric.")
			return
		}

		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + cfg.prefix + "/play/" + normalizeCode(code)

		const qrSize = 320
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}
