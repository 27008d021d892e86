package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sdsbook/internal/engine"
	"github.com/xkilldash9x/sdsbook/internal/phone"
	"github.com/xkilldash9x/sdsbook/internal/schedule"
	"github.com/xkilldash9x/sdsbook/internal/store"
	"github.com/xkilldash9x/sdsbook/internal/vehicle"
	"github.com/xkilldash9x/sdsbook/internal/workflow"
)

type availabilityBody struct {
	Phone     string   `json:"telephone"`
	Days      []string `json:"days"`
	Timeframe string   `json:"timeframe"`
	Weeks     int      `json:"number_of_weeks"`
	Persist   bool     `json:"persist"`
}

type appointmentBody struct {
	ServiceCode string `json:"service_id"`
	Vehicle     string `json:"car"`
	Phone       string `json:"telephone"`
	DateTime    string `json:"date"`
	Transport   string `json:"transport_mode"`
}

// TimeframeView is a timeframe as reported to callers.
type TimeframeView struct {
	Day  string `json:"day"`
	Week string `json:"week"`
	Date string `json:"date,omitempty"`
	Time string `json:"time"`
}

// ViewTimeframes renders timeframes for output.
func ViewTimeframes(tfs []schedule.Timeframe) []TimeframeView {
	out := make([]TimeframeView, 0, len(tfs))
	for _, tf := range tfs {
		v := TimeframeView{Day: tf.Day.String(), Week: tf.Week, Time: tf.Time()}
		if !tf.Date.IsZero() {
			v.Date = tf.Date.Format(time.DateOnly)
		}
		out = append(out, v)
	}
	return out
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "time": s.now().UTC().Format(time.RFC3339)})
}

func (s *Server) handleGetCars(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := s.workflows.Lookup(r.Context(), workflow.LookupRequest{
		Phone: q.Get("telephone"),
		Car:   q.Get("car"),
		Tier:  q.Get("tier"),
	})
	if err != nil {
		respondFailure(w, err)
		return
	}
	if len(res.Accounts) > 0 {
		respondJSON(w, http.StatusOK, map[string]any{"message": res.Accounts})
		return
	}
	vehicles := res.Vehicles
	if vehicles == nil {
		vehicles = []vehicle.Record{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"message": vehicles})
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	var body availabilityBody
	if status, err := decodeJSONBody(w, r, &body); err != nil {
		respondError(w, status, engine.KindValidation, err.Error())
		return
	}
	res, err := s.workflows.Availability(r.Context(), workflow.AvailabilityRequest{
		Phone:     body.Phone,
		Days:      body.Days,
		Timeframe: body.Timeframe,
		Weeks:     body.Weeks,
		Persist:   body.Persist,
	})
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ViewTimeframes(res.Timeframes))
}

func (s *Server) handleMakeAppointment(w http.ResponseWriter, r *http.Request) {
	var body appointmentBody
	if status, err := decodeJSONBody(w, r, &body); err != nil {
		respondError(w, status, engine.KindValidation, err.Error())
		return
	}
	out, err := s.workflows.Book(r.Context(), workflow.AppointmentRequest{
		ServiceCode: body.ServiceCode,
		Vehicle:     body.Vehicle,
		Phone:       body.Phone,
		DateTime:    body.DateTime,
		Transport:   body.Transport,
	})
	if err != nil {
		respondFailure(w, err)
		return
	}
	s.logger.Info("Appointment booked.",
		zap.String("request_id", RequestID(r.Context())),
		zap.Int64("appointment_id", out.ID),
	)
	respondJSON(w, http.StatusOK, out)
}

// customerPhone reads and normalizes the telephone query parameter.
func customerPhone(r *http.Request) (string, error) {
	digits, err := phone.Normalize(r.URL.Query().Get("telephone"))
	if err != nil {
		return "", &engine.ValidationError{Op: "telephone", Err: err}
	}
	return digits, nil
}

func (s *Server) storeDisabled(w http.ResponseWriter, enabled bool) bool {
	if enabled {
		return false
	}
	respondError(w, http.StatusServiceUnavailable, "persistence_disabled", "no database is configured")
	return true
}

// respondStoreError reports a store failure, keeping internals out of the response.
func (s *Server) respondStoreError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	s.logger.Error("Store request failed.", zap.String("request_id", RequestID(r.Context())), zap.Error(err))
	respondError(w, http.StatusInternalServerError, engine.KindInternal, "storage error")
}

func (s *Server) handleListAppointments(w http.ResponseWriter, r *http.Request) {
	if s.storeDisabled(w, s.appointments != nil) {
		return
	}
	digits, err := customerPhone(r)
	if err != nil {
		respondFailure(w, err)
		return
	}
	list, err := s.appointments.AppointmentsByPhone(r.Context(), digits)
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	if list == nil {
		list = []store.Appointment{}
	}
	respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetAppointment(w http.ResponseWriter, r *http.Request) {
	if s.storeDisabled(w, s.appointments != nil) {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		respondError(w, http.StatusBadRequest, engine.KindValidation, "appointment id must be a positive integer")
		return
	}
	a, err := s.appointments.AppointmentByID(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, a)
}

// handleDeleteAppointments removes a customer's appointments, or only those
// on the day given as date=YYYY-MM-DD.
func (s *Server) handleDeleteAppointments(w http.ResponseWriter, r *http.Request) {
	if s.storeDisabled(w, s.appointments != nil) {
		return
	}
	digits, err := customerPhone(r)
	if err != nil {
		respondFailure(w, err)
		return
	}

	var n int64
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		day, perr := time.ParseInLocation(time.DateOnly, raw, s.cfg.Schedule().LoadLocation())
		if perr != nil {
			respondError(w, http.StatusBadRequest, engine.KindValidation, "date must be YYYY-MM-DD")
			return
		}
		n, err = s.appointments.DeleteAppointmentsByPhoneAndDate(r.Context(), digits, day)
	} else {
		n, err = s.appointments.DeleteAppointmentsByPhone(r.Context(), digits)
	}
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

// handleStoredAvailability aggregates the stored snapshot for
// days=Monday,Tuesday between from and to (HH:MM, whole grid by default).
func (s *Server) handleStoredAvailability(w http.ResponseWriter, r *http.Request) {
	if s.storeDisabled(w, s.snapshots != nil) {
		return
	}
	q := r.URL.Query()
	days, err := schedule.ParseWeekdays(splitList(q.Get("days")))
	if err != nil {
		respondFailure(w, &engine.ValidationError{Op: "days", Err: err})
		return
	}
	from, to := q.Get("from"), q.Get("to")
	if from == "" {
		from = schedule.Opens.String()
	}
	if to == "" {
		to = schedule.Closes.Add(-1).String()
	}
	span, err := schedule.ParseRange(from + "-" + to)
	if err != nil {
		respondFailure(w, &engine.ValidationError{Op: "timeframe", Err: err})
		return
	}

	now := s.now().In(s.cfg.Schedule().LoadLocation())
	tfs, err := s.snapshots.AvailableTimeframes(r.Context(), days, span, now)
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ViewTimeframes(tfs))
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
