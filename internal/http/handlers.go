package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/kv"
	"bilancio/internal/log"
	"bilancio/internal/profile"
	"bilancio/internal/services"
)

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.ledger.Ping(ctx); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, newProfilesJSON(profile.All()))
}

func (s *Server) handleGetPeriod(w http.ResponseWriter, r *http.Request) {
	pp, err := ParsePeriodParams(r)
	if err != nil {
		s.fail(w, r, err, log.OpRead)
		return
	}
	rec, err := s.ledger.Period(r.Context(), pp.User, pp.Profile, pp.Year, pp.Month)
	if err != nil {
		s.fail(w, r, err, log.OpRead)
		return
	}
	writeJSON(w, r, http.StatusOK, newPeriodJSON(rec))
}

func (s *Server) handlePutPeriod(w http.ResponseWriter, r *http.Request) {
	pp, err := ParsePeriodParams(r)
	if err != nil {
		s.fail(w, r, err, log.OpSave)
		return
	}
	var req PeriodRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err, log.OpSave)
		return
	}
	rec, err := req.ToRecord(pp.Profile, pp.Year, pp.Month)
	if err != nil {
		s.fail(w, r, err, log.OpSave)
		return
	}
	s.save(w, r, pp, rec)
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	pp, err := ParsePeriodParams(r)
	if err != nil {
		s.fail(w, r, err, log.OpBalances)
		return
	}
	pb, err := s.ledger.Balances(r.Context(), pp.User, pp.Profile, pp.Year, pp.Month)
	if err != nil {
		s.fail(w, r, err, log.OpBalances)
		return
	}
	writeJSON(w, r, http.StatusOK, newBalancesResponse(pp.Profile, pb))
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var in ItemInput
	if err := decodeJSON(r, &in); err != nil {
		s.fail(w, r, err, log.OpSave)
		return
	}
	s.editItem(w, r, func(rec core.PeriodRecord, b profile.Bucket) (core.PeriodRecord, error) {
		return profile.AddItem(rec, b, sanitizeInput(in.Label), float64(in.Amount)), nil
	})
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	i, err := ParseItemIndex(r)
	if err != nil {
		s.fail(w, r, err, log.OpSave)
		return
	}
	var in ItemInput
	if err := decodeJSON(r, &in); err != nil {
		s.fail(w, r, err, log.OpSave)
		return
	}
	s.editItem(w, r, func(rec core.PeriodRecord, b profile.Bucket) (core.PeriodRecord, error) {
		return profile.UpdateItem(rec, b, i, sanitizeInput(in.Label), float64(in.Amount))
	})
}

func (s *Server) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	i, err := ParseItemIndex(r)
	if err != nil {
		s.fail(w, r, err, log.OpSave)
		return
	}
	s.editItem(w, r, func(rec core.PeriodRecord, b profile.Bucket) (core.PeriodRecord, error) {
		return profile.RemoveItem(rec, b, i)
	})
}

// editItem applies edit to the stored period as one conditional update.
func (s *Server) editItem(w http.ResponseWriter, r *http.Request, edit func(core.PeriodRecord, profile.Bucket) (core.PeriodRecord, error)) {
	pp, err := ParsePeriodParams(r)
	if err != nil {
		s.fail(w, r, err, log.OpSave)
		return
	}
	b, err := pp.Profile.Bucket(r.PathValue("bucket"))
	if err != nil {
		s.fail(w, r, err, log.OpSave)
		return
	}
	saved, err := s.ledger.EditPeriod(r.Context(), pp.User, pp.Profile, pp.Year, pp.Month, func(rec core.PeriodRecord) (core.PeriodRecord, error) {
		return edit(rec, b)
	})
	if err != nil {
		s.fail(w, r, err, log.OpSave)
		return
	}
	writeJSON(w, r, http.StatusOK, newPeriodJSON(saved))
}

func (s *Server) save(w http.ResponseWriter, r *http.Request, pp PeriodParams, rec core.PeriodRecord) {
	saved, err := s.ledger.SavePeriod(r.Context(), pp.User, pp.Profile, pp.Year, pp.Month, rec)
	if err != nil {
		s.fail(w, r, err, log.OpSave)
		return
	}
	writeJSON(w, r, http.StatusOK, newPeriodJSON(saved))
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	user, p, err := parseUserProfile(r)
	if err != nil {
		s.fail(w, r, err, log.OpReport)
		return
	}
	reports, err := s.ledger.Report(r.Context(), user, p)
	if err != nil {
		s.fail(w, r, err, log.OpReport)
		return
	}
	writeJSON(w, r, http.StatusOK, newReportResponse(user, p, reports))
}

// fail maps domain errors to HTTP statuses. Unexpected errors are logged
// and hidden behind a generic message.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, operation string) {
	status := statusFor(err)
	if status < http.StatusInternalServerError {
		writeError(w, r, status, err.Error())
		return
	}
	log.NewStructuredLogger(log.FromContext(r.Context())).LogError(r.Context(), "Request failed", err, operation, nil)
	writeError(w, r, status, "internal error")
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, services.ErrInvalidPeriod):
		return http.StatusBadRequest
	case errors.Is(err, profile.ErrUnknownProfile), errors.Is(err, profile.ErrItemIndex):
		return http.StatusNotFound
	case errors.Is(err, profile.ErrUnknownBucket), errors.Is(err, profile.ErrUnknownSource):
		return http.StatusUnprocessableEntity
	case errors.Is(err, kv.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
