package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	"retreat/internal/availability"
	"retreat/internal/conflict"
	"retreat/internal/database"
	"retreat/internal/metrics"
	"retreat/internal/models"
	"retreat/internal/service"
)

// MaxStayNights bounds every date range the API accepts.
const MaxStayNights = 90

// StayFields carries request dates as YYYY-MM-DD.
type StayFields struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

func (f StayFields) stay() (models.Stay, error) {
	if f.StartDate == "" || f.EndDate == "" {
		return models.Stay{}, fmt.Errorf("start_date and end_date are required")
	}
	start, err := models.ParseDate(f.StartDate)
	if err != nil {
		return models.Stay{}, fmt.Errorf("invalid start_date format; expected YYYY-MM-DD")
	}
	end, err := models.ParseDate(f.EndDate)
	if err != nil {
		return models.Stay{}, fmt.Errorf("invalid end_date format; expected YYYY-MM-DD")
	}
	s, err := models.NewStay(start, end)
	if err != nil {
		return models.Stay{}, err
	}
	if s.Nights() > MaxStayNights {
		return models.Stay{}, fmt.Errorf("stay exceeds maximum of %d nights", MaxStayNights)
	}
	return s, nil
}

// AddonFields is an add-on line of a request.
type AddonFields struct {
	AddonID  string               `json:"addon_id"`
	Category models.AddonCategory `json:"category,omitempty"`
	Quantity int                  `json:"quantity,omitempty"`
	Hours    float64              `json:"hours,omitempty"`
	Date     string               `json:"date,omitempty"`
	Guests   *models.GuestCount   `json:"guests,omitempty"`
}

// StayBody is the body of price, validate and booking requests.
type StayBody struct {
	StayFields
	SessionID string                  `json:"session_id,omitempty"`
	Rooms     []service.RoomSelection `json:"rooms"`
	Guests    models.GuestCount       `json:"guests"`
	Addons    []AddonFields           `json:"addons,omitempty"`
}

func (b StayBody) request() (service.StayRequest, error) {
	stay, err := b.stay()
	if err != nil {
		return service.StayRequest{}, err
	}
	req := service.StayRequest{SessionID: b.SessionID, Rooms: b.Rooms, Guests: b.Guests, Stay: stay}
	for i, a := range b.Addons {
		item := models.AddonItem{AddonID: a.AddonID, Category: a.Category, Quantity: a.Quantity, Hours: a.Hours, Guests: a.Guests}
		if a.Date != "" {
			d, err := models.ParseDate(a.Date)
			if err != nil {
				return service.StayRequest{}, fmt.Errorf("addons[%d]: invalid date format; expected YYYY-MM-DD", i)
			}
			item.Date = d
		}
		req.Addons = append(req.Addons, item)
	}
	return req, nil
}

// RoomsBody selects rooms over a date range.
type RoomsBody struct {
	StayFields
	SessionID string   `json:"session_id,omitempty"`
	RoomIDs   []string `json:"room_ids,omitempty"`
}

// SuggestionBody describes the request that could not be served.
type SuggestionBody struct {
	StayFields
	RoomIDs []string `json:"room_ids"`
	Guests  int      `json:"guests"`
}

// AvailabilityResponse is the reply of POST /api/availability.
type AvailabilityResponse struct {
	Checks         []availability.Check `json:"checks"`
	AvailableRooms []string             `json:"available_rooms"`
}

func (s *HTTPServer) writeEngineError(w http.ResponseWriter, err error) {
	var verrs models.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		writeError(w, http.StatusBadRequest, "validation failed", verrs.Messages()...)
	case errors.Is(err, models.ErrInvalidStay), errors.Is(err, service.ErrNoSession), errors.Is(err, service.ErrUnknownRoom):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, database.ErrBookingNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, database.ErrConcurrentModification):
		writeError(w, http.StatusConflict, "booking was modified; reload and retry")
	default:
		s.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	}
}

// POST /api/price
func (s *HTTPServer) handlePrice(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	metrics.IncHTTP("price")

	var body StayBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req, err := body.request()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	quote, err := s.engine.Quote(r.Context(), req)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// POST /api/availability
func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	metrics.IncHTTP("availability")

	var body RoomsBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	stay, err := body.stay()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	checks, err := s.engine.CheckAvailability(r.Context(), body.SessionID, body.RoomIDs, stay)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	free := availability.AvailableRooms(checks)
	if free == nil {
		free = []string{}
	}
	writeJSON(w, http.StatusOK, AvailabilityResponse{Checks: checks, AvailableRooms: free})
}

// GET /api/occupancy?start=YYYY-MM-DD&end=YYYY-MM-DD
func (s *HTTPServer) handleOccupancy(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	metrics.IncHTTP("occupancy")

	q := r.URL.Query()
	stay, err := StayFields{StartDate: q.Get("start"), EndDate: q.Get("end")}.stay()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	stats, err := s.engine.Occupancy(r.Context(), stay)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// POST /api/suggestions
func (s *HTTPServer) handleSuggestions(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	metrics.IncHTTP("suggestions")

	var body SuggestionBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	stay, err := body.stay()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Guests < 0 {
		writeError(w, http.StatusBadRequest, "guests must not be negative")
		return
	}
	out, err := s.engine.Suggest(r.Context(), conflict.SuggestionRequest{RoomIDs: body.RoomIDs, Stay: stay, Guests: body.Guests})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": out})
}

// POST /api/validate
func (s *HTTPServer) handleValidate(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	metrics.IncHTTP("validate")

	var body StayBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req, err := body.request()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.engine.Validate(r.Context(), req)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /api/locks
func (s *HTTPServer) handleAcquireLock(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	metrics.IncHTTP("lock_acquire")

	var body RoomsBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.SessionID == "" {
		writeError(w, http.StatusBadRequest, service.ErrNoSession.Error())
		return
	}
	if !s.limiter.Allow(body.SessionID) {
		writeError(w, http.StatusTooManyRequests, "too many lock requests; slow down")
		return
	}
	stay, err := body.stay()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.engine.Hold(r.Context(), body.SessionID, body.RoomIDs, stay)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /api/locks/:session
func (s *HTTPServer) handleLockStatus(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	metrics.IncHTTP("lock_status")

	session := ps.ByName("session")
	if !s.limiter.Allow(session) {
		writeError(w, http.StatusTooManyRequests, "too many lock requests; slow down")
		return
	}
	writeJSON(w, http.StatusOK, s.engine.LockStatus(r.Context(), session))
}

// DELETE /api/locks/:session
func (s *HTTPServer) handleReleaseLock(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	metrics.IncHTTP("lock_release")

	s.engine.Release(r.Context(), ps.ByName("session"))
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/bookings
func (s *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	metrics.IncHTTP("submit")

	var body StayBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req, err := body.request()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.engine.Submit(r.Context(), req)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if !res.Committed {
		writeJSON(w, http.StatusConflict, res)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// DELETE /api/bookings/:id?version=N
func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	metrics.IncHTTP("cancel")

	version, err := strconv.ParseInt(r.URL.Query().Get("version"), 10, 64)
	if err != nil || version <= 0 {
		writeError(w, http.StatusBadRequest, "version query parameter is required")
		return
	}
	if err := s.engine.Cancel(r.Context(), ps.ByName("id"), version); err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/rates/invalidate
func (s *HTTPServer) handleInvalidateRates(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	metrics.IncHTTP("rates_invalidate")

	s.engine.InvalidateRates(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "not ready", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
