package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/forPelevin/recut/internal/artifacts"
	"github.com/forPelevin/recut/internal/ledger"
)

const maxListLimit = 200

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

func (app *App) ListRunsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxListLimit)
	}

	runs, err := app.Ledger.List(r.Context(), limit)
	if err != nil {
		app.Log.Error().Err(err).Msg("list runs")
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []ledger.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (app *App) GetRunHandler(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	run, err := app.Ledger.Get(r.Context(), runID)
	if errors.Is(err, ledger.ErrNotFound) {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		app.Log.Error().Err(err).Str("run_id", runID).Msg("get run")
		http.Error(w, "Failed to load run", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (app *App) GetEDLHandler(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if _, err := app.Store.RunDir(runID); err != nil {
		http.Error(w, "Invalid run id", http.StatusBadRequest)
		return
	}

	var edl json.RawMessage
	err := app.Store.Read(runID, artifacts.EDLFile, &edl)
	if errors.Is(err, os.ErrNotExist) {
		http.Error(w, "EDL not found", http.StatusNotFound)
		return
	}
	if err != nil {
		app.Log.Error().Err(err).Str("run_id", runID).Msg("read edl")
		http.Error(w, "Failed to read EDL", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(edl)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
