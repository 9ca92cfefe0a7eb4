package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"roach-arena/internal/game"
	"roach-arena/internal/store"

	"github.com/go-chi/chi/v5"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

// Handler methods for routerHandlers

func (h *routerHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := h.world.Snapshot()
	writeJSON(w, map[string]any{
		"status":  "ok",
		"tick":    snap.TickNumber,
		"players": snap.PlayerCount,
	})
}

func (h *routerHandlers) handleGetState(w http.ResponseWriter, r *http.Request) {
	// Served from the published snapshot, never the live rooms
	writeJSON(w, h.world.Snapshot())
}

func (h *routerHandlers) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	key, err := game.ParseRoomKey(chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, "Invalid room key", http.StatusBadRequest)
		return
	}

	state, ok := h.world.RoomState(key)
	if !ok {
		writeError(w, "Room not found", http.StatusNotFound)
		return
	}
	writeJSON(w, state)
}

func (h *routerHandlers) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := defaultLeaderboardLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxLeaderboardLimit)
	}

	if r.URL.Query().Get("source") == "store" {
		if h.store == nil {
			writeError(w, "No store configured", http.StatusServiceUnavailable)
			return
		}
		players, err := h.store.TopBanked(r.Context(), limit)
		if err != nil {
			log.Printf("⚠️ Leaderboard query failed: %v", err)
			writeError(w, "Leaderboard unavailable", http.StatusInternalServerError)
			return
		}
		entries := make([]map[string]any, 0, len(players))
		for _, p := range players {
			entries = append(entries, map[string]any{
				"id":     p.ID,
				"name":   p.Name,
				"banked": p.BankedBalance,
				"kills":  p.TotalKills,
			})
		}
		writeJSON(w, entries)
		return
	}

	leaders := h.world.Snapshot().Leaders
	if len(leaders) > limit {
		leaders = leaders[:limit]
	}
	writeJSON(w, leaders)
}

func (h *routerHandlers) handleGetUpgrades(w http.ResponseWriter, r *http.Request) {
	type upgradeInfo struct {
		game.UpgradeDef
		Costs []float64 `json:"costs"`
	}

	defs := game.UpgradeDefList()
	out := make([]upgradeInfo, 0, len(defs))
	for _, def := range defs {
		info := upgradeInfo{UpgradeDef: def, Costs: make([]float64, 0, def.MaxLevel)}
		for level := 0; level < def.MaxLevel; level++ {
			cost, _ := game.UpgradeCost(def.Key, level)
			info.Costs = append(info.Costs, cost)
		}
		out = append(out, info)
	}
	writeJSON(w, out)
}

func (h *routerHandlers) handleSetPaid(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Paid *bool `json:"paid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Paid == nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if h.store != nil {
		_, err := h.store.GetPlayer(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, "Player not found", http.StatusNotFound)
			return
		}
		if err != nil {
			log.Printf("⚠️ Paid lookup for %s failed: %v", id, err)
			writeError(w, "Store unavailable", http.StatusInternalServerError)
			return
		}
	}

	online := h.world.SetPaid(id, *req.Paid)
	if h.store == nil && !online {
		writeError(w, "Player not found", http.StatusNotFound)
		return
	}

	log.Printf("💳 Player %s paid=%v (online: %v)", id, *req.Paid, online)
	writeJSON(w, map[string]any{
		"id":     id,
		"paid":   *req.Paid,
		"online": online,
	})
}

// Helper functions (package-level for reuse)

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
