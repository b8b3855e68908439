package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scoreboard/go/internal/models"
	"github.com/mcdev12/scoreboard/go/internal/rounds"
	"github.com/mcdev12/scoreboard/go/internal/scores"
)

var (
	datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timePattern = regexp.MustCompile(`^\d{1,2}:\d{1,2}([.,:]\S{1,3})?$`)
)

// RoundsApp is the read side of the round store
type RoundsApp interface {
	ListRoundsWithToday(ctx context.Context) ([]models.Round, error)
	Cars(ctx context.Context) ([]string, error)
	Tracks(ctx context.Context) ([]string, error)
	Usernames(ctx context.Context) ([]string, error)
}

type ScoresApp interface {
	GetScores(ctx context.Context, res scores.Resolution, offset int) (map[scores.Resolution]scores.Standings, error)
}

// TimeRecorder writes a lap time and broadcasts the result to live clients
type TimeRecorder interface {
	AddTime(ctx context.Context, date, name, rawTime string) (*models.Round, error)
}

type Handler struct {
	rounds  RoundsApp
	scores  ScoresApp
	times   TimeRecorder
	buildID string
}

func NewHandler(roundsApp RoundsApp, scoresApp ScoresApp, times TimeRecorder, buildID string) *Handler {
	return &Handler{
		rounds:  roundsApp,
		scores:  scoresApp,
		times:   times,
		buildID: buildID,
	}
}

type addTimeRequest struct {
	Date string `json:"date"`
	Name string `json:"name"`
	Time string `json:"time"`
}

func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, h.buildID)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, "OK")
}

// Times lists every round, newest first, with today's round always present
func (h *Handler) Times(w http.ResponseWriter, r *http.Request) {
	list, err := h.rounds.ListRoundsWithToday(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	for i := range list {
		if list[i].Times == nil {
			list[i].Times = []models.TimeEntry{}
		}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) Scores(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	res, err := scores.ParseResolution(query.Get("resolution"))
	if err != nil {
		writeText(w, http.StatusBadRequest, err.Error())
		return
	}

	offset := 0
	if raw := query.Get("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			writeText(w, http.StatusBadRequest, scores.ErrNegativeOffset.Error())
			return
		}
	}

	standings, err := h.scores.GetScores(r.Context(), res, offset)
	if err != nil {
		if errors.Is(err, scores.ErrNegativeOffset) || errors.Is(err, scores.ErrInvalidResolution) {
			writeText(w, http.StatusBadRequest, err.Error())
			return
		}
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, standings)
}

func (h *Handler) Cars(w http.ResponseWriter, r *http.Request) {
	h.suggest(w, r, h.rounds.Cars)
}

func (h *Handler) Tracks(w http.ResponseWriter, r *http.Request) {
	h.suggest(w, r, h.rounds.Tracks)
}

func (h *Handler) Usernames(w http.ResponseWriter, r *http.Request) {
	h.suggest(w, r, h.rounds.Usernames)
}

func (h *Handler) suggest(w http.ResponseWriter, r *http.Request, list func(context.Context) ([]string, error)) {
	values, err := list(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if values == nil {
		values = []string{}
	}
	writeJSON(w, http.StatusOK, values)
}

// AddTime records a lap time posted outside the socket
func (h *Handler) AddTime(w http.ResponseWriter, r *http.Request) {
	var req addTimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeText(w, http.StatusBadRequest, "malformed request body")
		return
	}

	switch {
	case !datePattern.MatchString(req.Date):
		writeText(w, http.StatusBadRequest, rounds.ErrInvalidDate.Error())
		return
	case strings.TrimSpace(req.Name) == "":
		writeText(w, http.StatusBadRequest, rounds.ErrEmptyName.Error())
		return
	case !timePattern.MatchString(req.Time):
		writeText(w, http.StatusBadRequest, "invalid time, expected M:SS.mmm")
		return
	}

	if _, err := h.times.AddTime(r.Context(), req.Date, req.Name, req.Time); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeText(w, http.StatusOK, "OK")
}

// writeError maps rejected input to 400, a missing round to 404 and everything
// else to 500
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case rounds.IsValidation(err):
		writeText(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, rounds.ErrRoundNotFound):
		writeText(w, http.StatusNotFound, err.Error())
	default:
		log.Error().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeText(w, http.StatusInternalServerError, "internal error")
	}
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		log.Warn().Err(err).Msg("failed to write response")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to encode response")
	}
}
