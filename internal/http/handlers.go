package http

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mauv0809/tictac-duel/internal/challenge"
	"github.com/mauv0809/tictac-duel/internal/engine"
	"github.com/mauv0809/tictac-duel/internal/match"
	"github.com/mauv0809/tictac-duel/internal/model"
	"github.com/mauv0809/tictac-duel/internal/recordstore"
	"github.com/mauv0809/tictac-duel/internal/rematch"
	"github.com/mauv0809/tictac-duel/internal/series"
	"github.com/mauv0809/tictac-duel/internal/session"
)

const (
	defaultLongPoll = 25 * time.Second
	maxLongPoll     = 60 * time.Second
)

type sessionHandler func(w http.ResponseWriter, r *http.Request, s *session.Session)

// withSession resolves the caller's session from the 'user' query parameter.
func (s *Server) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := r.URL.Query().Get("user")
		if user == "" {
			http.Error(w, "Missing 'user' query parameter", http.StatusBadRequest)
			return
		}
		sess, err := s.Sessions.Open(r.Context(), user, r.URL.Query().Get("name"))
		if err != nil {
			log.Error("Failed to open session", "user", user, "error", err)
			writeError(w, err)
			return
		}
		h(w, r, sess)
	}
}

func (s *Server) HealthCheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.Debug("Received health check request")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK!")
	}
}

// LifetimeHandler lists the outcome counters persisted across restarts.
func (s *Server) LifetimeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Lifetime == nil {
			http.Error(w, "Lifetime counters are not persisted by this backend", http.StatusNotFound)
			return
		}
		totals, err := s.Lifetime.Totals(r.Context())
		if err != nil {
			log.Error("Failed to read lifetime counters", "error", err)
			http.Error(w, "Failed to read lifetime counters", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"totals": totals})
	}
}

// ViewHandler returns the caller's view. With ?after=<revision> it waits up
// to ?wait=<seconds> for a newer revision.
func (s *Server) ViewHandler() sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, sess *session.Session) {
		afterStr := r.URL.Query().Get("after")
		if afterStr == "" {
			writeView(w, r.Context(), sess)
			return
		}
		after, err := strconv.ParseUint(afterStr, 10, 64)
		if err != nil {
			http.Error(w, "Invalid 'after' parameter", http.StatusBadRequest)
			return
		}
		wait := defaultLongPoll
		if waitStr := r.URL.Query().Get("wait"); waitStr != "" {
			secs, err := strconv.Atoi(waitStr)
			if err != nil || secs < 0 {
				http.Error(w, "Invalid 'wait' parameter", http.StatusBadRequest)
				return
			}
			wait = min(time.Duration(secs)*time.Second, maxLongPoll)
		}

		ctx, cancel := context.WithTimeout(r.Context(), wait)
		defer cancel()
		v, err := sess.WaitFor(ctx, func(v session.View) bool { return v.Revision > after })
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func (s *Server) SendChallengeHandler() sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, sess *session.Session) {
		var req challengeRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.To == "" {
			http.Error(w, "Missing 'to'", http.StatusBadRequest)
			return
		}
		c, err := sess.SendChallenge(r.Context(), req.To, req.ToName, model.MatchKind(req.Kind), req.BestOf)
		if err != nil {
			writeError(w, err)
			return
		}
		log.Info("Challenge sent over HTTP", "challengeID", c.ID, "from", sess.UserID(), "to", req.To)
		writeJSON(w, http.StatusCreated, c)
	}
}

func (s *Server) RespondChallengeHandler() sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, sess *session.Session) {
		var req respondRequest
		if !decodeBody(w, r, &req) {
			return
		}
		respond(w, r, sess, sess.RespondToChallenge(r.Context(), req.ID, req.Accept))
	}
}

func (s *Server) OpenChallengeHandler() sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, sess *session.Session) {
		var req idRequest
		if !decodeBody(w, r, &req) {
			return
		}
		respond(w, r, sess, sess.OpenChallenge(r.Context(), req.ID))
	}
}

func (s *Server) MoveHandler() sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, sess *session.Session) {
		var req moveRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Index == nil {
			http.Error(w, "Missing 'index'", http.StatusBadRequest)
			return
		}
		respond(w, r, sess, sess.MakeMove(r.Context(), *req.Index))
	}
}

type rematchAction int

const (
	rematchRequest rematchAction = iota
	rematchAccept
	rematchDecline
)

func (s *Server) RematchHandler(action rematchAction) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, sess *session.Session) {
		var err error
		switch action {
		case rematchRequest:
			err = sess.RequestRematch(r.Context())
		case rematchAccept:
			err = sess.AcceptRematch(r.Context())
		case rematchDecline:
			err = sess.DeclineRematch(r.Context())
		}
		respond(w, r, sess, err)
	}
}

func (s *Server) ReadyHandler(ready bool) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, sess *session.Session) {
		if ready {
			respond(w, r, sess, sess.MarkReady(r.Context()))
			return
		}
		respond(w, r, sess, sess.CancelReady(r.Context()))
	}
}

func (s *Server) SpectatorsHandler() sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, sess *session.Session) {
		var req spectatorsRequest
		if !decodeBody(w, r, &req) {
			return
		}
		respond(w, r, sess, sess.ToggleSpectators(r.Context(), req.Allow))
	}
}

func (s *Server) SpectateHandler() sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, sess *session.Session) {
		var req idRequest
		if !decodeBody(w, r, &req) {
			return
		}
		respond(w, r, sess, sess.Spectate(r.Context(), req.ID))
	}
}

func (s *Server) LobbyHandler() sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, sess *session.Session) {
		respond(w, r, sess, sess.BackToLobby(r.Context()))
	}
}

// RecordChangesHandler receives record change notices pushed by Pub/Sub and
// refreshes the local subscribers of the changed record.
func (s *Server) RecordChangesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Feed == nil || s.Refresher == nil {
			http.Error(w, "Change feed is not configured", http.StatusNotFound)
			return
		}
		bodyBytes, err := io.ReadAll(r.Body)
		if err != nil {
			log.Error("Failed to read request body", "error", err)
			http.Error(w, "Failed to read request body", http.StatusInternalServerError)
			return
		}

		var pushMsg pushEnvelope
		if err := json.Unmarshal(bodyBytes, &pushMsg); err != nil {
			log.Error("Failed to unmarshal wrapper JSON", "error", err)
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		rawData, err := base64.StdEncoding.DecodeString(pushMsg.Message.Data)
		if err != nil {
			log.Error("Failed to decode base64 data", "error", err)
			http.Error(w, "Invalid base64 data", http.StatusBadRequest)
			return
		}

		notice, foreign, err := s.Feed.Decode(rawData)
		if err != nil {
			http.Error(w, "Invalid change notice", http.StatusBadRequest)
			return
		}
		if !foreign {
			log.Debug("Ignoring own record change", "collection", notice.Collection, "id", notice.ID)
			w.Write([]byte("OK"))
			return
		}
		if err := s.Refresher.Refresh(r.Context(), notice.Collection, notice.ID); err != nil {
			log.Error("Failed to refresh record", "collection", notice.Collection, "id", notice.ID, "error", err)
			// A non-2xx answer makes Pub/Sub redeliver.
			http.Error(w, "Failed to refresh record", http.StatusInternalServerError)
			return
		}
		log.Debug("Refreshed record from change feed", "collection", notice.Collection, "id", notice.ID, "version", notice.Version, "origin", notice.Origin)
		w.Write([]byte("OK"))
	}
}

func respond(w http.ResponseWriter, r *http.Request, sess *session.Session, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeView(w, r.Context(), sess)
}

func writeView(w http.ResponseWriter, ctx context.Context, sess *session.Session) {
	v, err := sess.View(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, recordstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, challenge.ErrInvalidBestOf),
		errors.Is(err, challenge.ErrSelfChallenge),
		errors.Is(err, engine.ErrInvalidMove):
		return http.StatusBadRequest
	case errors.Is(err, match.ErrNotAPlayer),
		errors.Is(err, match.ErrSpectatorsBlocked),
		errors.Is(err, challenge.ErrNotRecipient),
		errors.Is(err, series.ErrNotAPlayer),
		errors.Is(err, session.ErrSpectating):
		return http.StatusForbidden
	case errors.Is(err, match.ErrNotYourTurn),
		errors.Is(err, match.ErrMatchNotActive),
		errors.Is(err, challenge.ErrNotPending),
		errors.Is(err, rematch.ErrNotAllowed),
		errors.Is(err, series.ErrSeriesFinished),
		errors.Is(err, series.ErrNotSeriesGame),
		errors.Is(err, session.ErrNoMatch),
		errors.Is(err, session.ErrNoSeries),
		errors.Is(err, session.ErrGameNotOver):
		return http.StatusConflict
	case errors.Is(err, session.ErrClosed),
		recordstore.IsStoreError(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
