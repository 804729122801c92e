package app

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/fabula/internal/health"
	"github.com/MrWong99/fabula/internal/script"
	"github.com/MrWong99/fabula/pkg/locale"
)

// routes builds the HTTP API: health probes, Prometheus metrics, the
// websocket event stream, and the session control surface used by
// authoring tools and integration tests.
func (a *App) routes() http.Handler {
	mux := http.NewServeMux()

	h := health.New(
		health.StorageChecker(a.store),
		health.ScriptChecker(a.library),
	)
	h.Register(mux)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("GET /events", a.stream)

	mux.HandleFunc("GET /dialogues", a.handleListDialogues)
	mux.HandleFunc("POST /dialogues/{id}/play", a.handlePlay)
	mux.HandleFunc("GET /session", a.handleSession)
	mux.HandleFunc("POST /session/skip", a.handleSkip)
	mux.HandleFunc("POST /session/advance", a.handleAdvance)
	mux.HandleFunc("POST /session/stop", a.handleStop)
	mux.HandleFunc("GET /state", a.handleState)
	mux.HandleFunc("PUT /language", a.handleSetLanguage)
	mux.HandleFunc("POST /checkpoint", a.handleSaveCheckpoint)

	return mux
}

func (a *App) handleListDialogues(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"title":     a.library.Meta().Title,
		"dialogues": a.library.IDs(),
	})
}

func (a *App) handlePlay(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	d, err := a.library.Dialogue(id)
	if err != nil {
		if errors.Is(err, script.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown dialogue "+id)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if !a.engine.Play(d) {
		// Refused: one-shot already seen, or content without lines.
		writeError(w, http.StatusConflict, "dialogue not started")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"playing": id})
}

func (a *App) handleSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"showing": a.engine.IsShowing()})
}

func (a *App) handleSkip(w http.ResponseWriter, _ *http.Request) {
	a.engine.Skip()
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleAdvance(w http.ResponseWriter, _ *http.Request) {
	a.engine.Advance()
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleStop(w http.ResponseWriter, _ *http.Request) {
	a.engine.Stop()
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"phase":            a.phases.CurrentPhase(),
		"completed_phases": a.phases.CompletedPhases(),
		"seen_count":       a.seen.Count(),
		"checkpoint":       a.seen.Checkpoint(),
		"language":         a.languages.Current(),
	})
}

func (a *App) handleSetLanguage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Language locale.Language `json:"language"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Language == "" {
		writeError(w, http.StatusBadRequest, "body must be {\"language\": \"<code>\"}")
		return
	}
	a.languages.Set(r.Context(), body.Language)
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleSaveCheckpoint(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Checkpoint string `json:"checkpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Checkpoint == "" {
		writeError(w, http.StatusBadRequest, "body must be {\"checkpoint\": \"<id>\"}")
		return
	}
	if err := a.seen.SaveCheckpoint(r.Context(), body.Checkpoint); err != nil {
		slog.Error("save checkpoint", "checkpoint", body.Checkpoint, "error", err)
		writeError(w, http.StatusInternalServerError, "checkpoint save failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"checkpoint": body.Checkpoint})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
