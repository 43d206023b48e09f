package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clipforge/clipforge/internal/export"
	"github.com/clipforge/clipforge/internal/media"
	"github.com/clipforge/clipforge/internal/session"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Store, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Post("/session", initSessionHandler(cfg))
		r.Get("/session", getSessionHandler(cfg))
		r.Delete("/session", clearSessionHandler(cfg))
		r.Post("/session/actions", actionHandler(cfg))
		r.Get("/session/history", historyHandler(cfg))
		r.Get("/session/export/edl", exportEDLHandler(cfg))
		r.Get("/session/output", outputHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:   "ok",
			Version:  cfg.Version,
			UptimeS:  int64(time.Since(cfg.StartTime).Seconds()),
			DeviceID: cfg.DeviceID,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{State: "idle"}

		if snap := cfg.Orchestrator.Snapshot(); snap != nil {
			resp.Session = sessionSummary(snap)
		}
		if cfg.Processor != nil {
			ps := cfg.Processor.Status()
			resp.Processing = &ps
			if ps.Busy {
				resp.State = "processing"
			}
			resp.LastError = ps.LastError
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func initSessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req InitSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		args := session.InitArgs{SelectedVideos: req.Videos}
		if req.Resume != nil {
			args.EditPlan = req.Resume.Plan
			args.Analyses = req.Resume.Analyses
			args.VideoPath = req.Resume.VideoPath
			args.Command = req.Resume.Command
		}

		snap, err := cfg.Orchestrator.Initialize(r.Context(), args)
		if err != nil {
			if errors.Is(err, session.ErrInvalidInitialization) {
				WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
				return
			}
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusCreated, sessionSummary(snap))
	}
}

func getSessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := cfg.Orchestrator.Snapshot()
		if snap == nil {
			WriteError(w, http.StatusNotFound, "no active session", "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, sessionSummary(snap))
	}
}

func clearSessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Processor != nil {
			cfg.Processor.Cancel()
		}
		if err := cfg.Orchestrator.Clear(r.Context()); err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func actionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ActionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		action, err := actionFromRequest(req)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		res, err := cfg.Orchestrator.Apply(r.Context(), action)
		if err != nil {
			writeActionError(w, err)
			return
		}

		if res.Intent != nil {
			if err := cfg.Processor.Start(res.Intent, media.DefaultExportSettings()); err != nil {
				writeActionError(w, err)
				return
			}
			WriteJSON(w, http.StatusAccepted, ActionResponse{
				Accepted: true,
				Session:  sessionSummary(res.Snapshot),
			})
			return
		}

		WriteJSON(w, http.StatusOK, ActionResponse{
			Accepted: true,
			Session:  sessionSummary(res.Snapshot),
		})
	}
}

func actionFromRequest(req ActionRequest) (session.Action, error) {
	switch req.Type {
	case ActionCreateWithAI:
		if req.Command == "" {
			return nil, errors.New("command is required")
		}
		return session.CreateWithAI{Command: req.Command}, nil
	case ActionEditWithAI:
		if req.Command == "" {
			return nil, errors.New("command is required")
		}
		return session.EditWithAI{Command: req.Command}, nil
	case ActionEditManually:
		return session.EditManually{Changes: req.Changes}, nil
	case ActionUndo:
		return session.Undo{}, nil
	case ActionRedo:
		return session.Redo{}, nil
	case ActionReset:
		return session.Reset{}, nil
	}
	return nil, errors.New("unknown action type: " + req.Type)
}

func writeActionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNoActiveSession):
		WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	case errors.Is(err, ErrProcessorBusy):
		WriteError(w, http.StatusConflict, err.Error(), "CONFLICT")
	case errors.Is(err, session.ErrNothingToUndo),
		errors.Is(err, session.ErrNothingToRedo),
		errors.Is(err, session.ErrNoChanges),
		errors.Is(err, session.ErrAIEditNotAllowed),
		errors.Is(err, session.ErrManualEditNotAllowed):
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
	default:
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}

func historyHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ops, err := cfg.Orchestrator.History()
		if err != nil {
			writeActionError(w, err)
			return
		}

		resp := HistoryResponse{Operations: make([]OperationSummary, len(ops))}
		for i, op := range ops {
			resp.Operations[i] = operationSummary(op)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func exportEDLHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := cfg.Orchestrator.Snapshot()
		if snap == nil {
			WriteError(w, http.StatusNotFound, "no active session", "NOT_FOUND")
			return
		}
		if snap.Plan.IsEmpty() {
			WriteError(w, http.StatusBadRequest, "current state has no edit plan", "BAD_REQUEST")
			return
		}

		title := r.URL.Query().Get("title")
		if title == "" {
			title = "clipforge_" + snap.SessionID[:8]
		}
		frameRate := export.DefaultFrameRate
		if v := r.URL.Query().Get("fps"); v != "" {
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil || parsed <= 0 {
				WriteError(w, http.StatusBadRequest, "invalid fps", "BAD_REQUEST")
				return
			}
			frameRate = parsed
		}

		sources := make(map[string]string, len(snap.SelectedVideos))
		for _, v := range snap.SelectedVideos {
			sources[v.Filename] = v.Path
		}

		WriteJSON(w, http.StatusOK, export.EDLFromPlan(snap.Plan, sources, title, frameRate))
	}
}

func outputHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := cfg.Orchestrator.Snapshot()
		if snap == nil {
			WriteError(w, http.StatusNotFound, "no active session", "NOT_FOUND")
			return
		}
		if snap.VideoPath == "" {
			WriteError(w, http.StatusNotFound, "current state has no rendered output", "NOT_FOUND")
			return
		}

		if err := cfg.Playback.ServeOutput(w, r, snap.VideoPath); err != nil {
			cfg.Logger.Error("playback error", "error", err, "path", snap.VideoPath)
		}
	}
}

func sessionSummary(snap *session.Snapshot) *SessionSummary {
	if snap == nil {
		return nil
	}
	return &SessionSummary{
		SessionID:      snap.SessionID,
		StateID:        snap.StateID,
		Source:         string(snap.Source),
		VideoPath:      snap.VideoPath,
		Plan:           snap.Plan,
		SelectedVideos: snap.SelectedVideos,
		CanUndo:        snap.CanUndo,
		CanRedo:        snap.CanRedo,
		HistoryLen:     snap.HistoryLen,
		CreatedAt:      snap.CreatedAt.Format(time.RFC3339),
		LastModified:   snap.LastModified.Format(time.RFC3339),
	}
}
