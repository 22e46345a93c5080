package api

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/booking-engine/internal/apperror"
	"github.com/hackgods/booking-engine/internal/availability"
	"github.com/hackgods/booking-engine/internal/booking"
	"github.com/hackgods/booking-engine/internal/schedule"
)

const (
	headerActorID   = "X-Actor-ID"
	headerActorRole = "X-Actor-Role"
)

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperror.Invalid("%s must be a valid UUID", name)
	}
	return id, nil
}

// actorFromRequest reads the caller identity injected by the gateway.
func actorFromRequest(r *http.Request) (booking.Actor, error) {
	role := booking.Role(strings.ToLower(strings.TrimSpace(r.Header.Get(headerActorRole))))
	if !role.Valid() {
		return booking.Actor{}, booking.ErrForbidden
	}

	actor := booking.Actor{Role: role}
	if raw := strings.TrimSpace(r.Header.Get(headerActorID)); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return booking.Actor{}, apperror.Invalid("%s must be a valid UUID", headerActorID)
		}
		actor.ID = id
	}
	return actor, nil
}

// slotLength reads the booking length of an availability query: either a
// service_id, whose total duration the service resolves, or a raw duration.
func slotLength(q url.Values) (serviceID uuid.UUID, duration int, err error) {
	switch {
	case q.Get("service_id") != "":
		serviceID, err = uuid.Parse(q.Get("service_id"))
		if err != nil {
			return uuid.Nil, 0, apperror.Invalid("service_id must be a valid UUID")
		}
		return serviceID, 0, nil

	case q.Get("duration") != "":
		duration, err = strconv.Atoi(q.Get("duration"))
		if err != nil {
			return uuid.Nil, 0, apperror.Invalid("duration must be an integer number of minutes")
		}
		return uuid.Nil, duration, nil
	}
	return uuid.Nil, 0, apperror.Invalid("either duration or service_id is required")
}

func dateParam(q url.Values, name string) (civil.Date, error) {
	d, err := civil.ParseDate(q.Get(name))
	if err != nil {
		return civil.Date{}, apperror.Invalid("%s must be a date in YYYY-MM-DD format", name)
	}
	return d, nil
}

func getAvailabilityHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuidParam(r, "providerID")
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		q := r.URL.Query()
		date, err := dateParam(q, "date")
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		serviceID, duration, err := slotLength(q)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		resp := AvailabilityResponse{ProviderID: providerID, Date: date.String(), DurationMinutes: duration}

		if serviceID != uuid.Nil {
			resp.Slots, resp.DurationMinutes, err = svc.QueryServiceAvailability(r.Context(), providerID, serviceID, date)
			resp.ServiceID = &serviceID
		} else {
			resp.Slots, err = svc.QueryAvailability(r.Context(), providerID, date, duration)
		}
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func getAvailabilityRangeHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuidParam(r, "providerID")
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		q := r.URL.Query()
		from, err := dateParam(q, "from")
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		to, err := dateParam(q, "to")
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		serviceID, duration, err := slotLength(q)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		var days []availability.DaySlots
		if serviceID != uuid.Nil {
			days, duration, err = svc.QueryServiceRange(r.Context(), providerID, serviceID, from, to)
		} else {
			days, err = svc.QueryRange(r.Context(), providerID, from, to, duration)
		}
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		resp := RangeAvailabilityResponse{
			ProviderID:      providerID,
			From:            from.String(),
			To:              to.String(),
			DurationMinutes: duration,
			Days:            make([]DayAvailability, 0, len(days)),
		}
		if serviceID != uuid.Nil {
			resp.ServiceID = &serviceID
		}
		for _, d := range days {
			resp.Days = append(resp.Days, DayAvailability{Date: d.Date.String(), Slots: d.Slots})
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func checkSlotHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuidParam(r, "providerID")
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		var req CheckSlotRequest
		if err := decodeJSON(r, &req); err != nil {
			writeServiceError(w, r, err)
			return
		}

		// Both already passed validation.
		date, _ := civil.ParseDate(req.Date)
		start, _ := schedule.ParseTimeOfDay(req.Time)

		query := availability.Query{
			ProviderID: providerID,
			Date:       date,
			Start:      start,
			Duration:   req.DurationMinutes,
		}
		if req.ExcludeBookingID != "" {
			query.ExcludeBookingID = uuid.MustParse(req.ExcludeBookingID)
		}

		res, err := svc.CheckSlot(r.Context(), query)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, CheckSlotResponse{Available: res.Available, Reason: string(res.Reason)})
	}
}

func createBookingHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateBookingRequest
		if err := decodeJSON(r, &req); err != nil {
			writeServiceError(w, r, err)
			return
		}

		date, _ := civil.ParseDate(req.Date)
		start, _ := schedule.ParseTimeOfDay(req.Time)

		b, err := svc.CreateBooking(r.Context(), booking.CreateRequest{
			ClientID:   uuid.MustParse(req.ClientID),
			ProviderID: uuid.MustParse(req.ProviderID),
			ServiceID:  uuid.MustParse(req.ServiceID),
			Date:       date,
			Start:      start,
			Notes:      req.Notes,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, b)
	}
}

// listFilter reads the query of GET /bookings. Owner and range checks
// belong to the service.
func listFilter(q url.Values) (booking.ListFilter, error) {
	var f booking.ListFilter

	for name, dst := range map[string]*uuid.UUID{"client_id": &f.ClientID, "provider_id": &f.ProviderID} {
		if raw := q.Get(name); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				return f, apperror.Invalid("%s must be a valid UUID", name)
			}
			*dst = id
		}
	}

	if raw := q.Get("status"); raw != "" {
		f.Status = booking.Status(strings.ToUpper(raw))
	}

	for name, dst := range map[string]*civil.Date{"from": &f.From, "to": &f.To} {
		if q.Get(name) != "" {
			d, err := dateParam(q, name)
			if err != nil {
				return f, err
			}
			*dst = d
		}
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return f, apperror.Invalid("limit must be a positive integer")
		}
		f.Limit = limit
	}

	return f, nil
}

func listBookingsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		filter, err := listFilter(r.URL.Query())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		bookings, err := svc.ListBookings(r.Context(), filter, actor)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, BookingListResponse{Bookings: bookings})
	}
}

func getBookingHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		b, err := svc.GetBooking(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, b)
	}
}

func bookingHistoryHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		events, err := svc.History(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"booking_id": id, "events": events})
	}
}

func transitionBookingHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		actor, err := actorFromRequest(r)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		var req TransitionRequest
		if err := decodeJSON(r, &req); err != nil {
			writeServiceError(w, r, err)
			return
		}

		b, err := svc.TransitionBooking(r.Context(), id, booking.Status(req.Status), actor)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, b)
	}
}

func cancelBookingHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		actor, err := actorFromRequest(r)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		var req CancelRequest
		if err := decodeJSON(r, &req); err != nil {
			writeServiceError(w, r, err)
			return
		}

		b, err := svc.CancelBooking(r.Context(), id, req.Reason, actor)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, b)
	}
}
