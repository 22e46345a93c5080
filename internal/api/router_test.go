package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/hackgods/booking-engine/internal/apperror"
	"github.com/hackgods/booking-engine/internal/availability"
	"github.com/hackgods/booking-engine/internal/booking"
	"github.com/hackgods/booking-engine/internal/catalog"
	"github.com/hackgods/booking-engine/internal/metrics"
	redisclient "github.com/hackgods/booking-engine/internal/redis"
	"github.com/hackgods/booking-engine/internal/schedule"
)

type fakeAvailability struct {
	slots     []schedule.TimeOfDay
	days      []availability.DaySlots
	duration  int
	err       error
	result    availability.Result
	lastQuery availability.Query
	lastDur   int
	lastFrom  civil.Date
	lastTo    civil.Date
}

func (f *fakeAvailability) QueryAvailability(_ context.Context, _ uuid.UUID, _ civil.Date, duration int) ([]schedule.TimeOfDay, error) {
	f.lastDur = duration
	return f.slots, f.err
}

func (f *fakeAvailability) QueryServiceAvailability(context.Context, uuid.UUID, uuid.UUID, civil.Date) ([]schedule.TimeOfDay, int, error) {
	return f.slots, f.duration, f.err
}

func (f *fakeAvailability) QueryRange(_ context.Context, _ uuid.UUID, from, to civil.Date, duration int) ([]availability.DaySlots, error) {
	f.lastFrom, f.lastTo, f.lastDur = from, to, duration
	return f.days, f.err
}

func (f *fakeAvailability) QueryServiceRange(_ context.Context, _, _ uuid.UUID, from, to civil.Date) ([]availability.DaySlots, int, error) {
	f.lastFrom, f.lastTo = from, to
	return f.days, f.duration, f.err
}

func (f *fakeAvailability) CheckSlot(_ context.Context, q availability.Query) (availability.Result, error) {
	f.lastQuery = q
	return f.result, f.err
}

type fakeBookings struct {
	booking    *booking.Booking
	list       []booking.Booking
	err        error
	lastCreate booking.CreateRequest
	lastFilter booking.ListFilter
	lastActor  booking.Actor
	lastTarget booking.Status
	lastReason string
}

func (f *fakeBookings) CreateBooking(_ context.Context, req booking.CreateRequest) (*booking.Booking, error) {
	f.lastCreate = req
	return f.booking, f.err
}

func (f *fakeBookings) GetBooking(context.Context, uuid.UUID) (*booking.Booking, error) {
	return f.booking, f.err
}

func (f *fakeBookings) ListBookings(_ context.Context, filter booking.ListFilter, actor booking.Actor) ([]booking.Booking, error) {
	f.lastFilter, f.lastActor = filter, actor
	return f.list, f.err
}

func (f *fakeBookings) History(_ context.Context, id uuid.UUID) ([]booking.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []booking.Event{{BookingID: id, Type: booking.EventBookingCreated, ToStatus: booking.StatusPending, ActorRole: booking.RoleClient}}, nil
}

func (f *fakeBookings) TransitionBooking(_ context.Context, _ uuid.UUID, target booking.Status, actor booking.Actor) (*booking.Booking, error) {
	f.lastTarget, f.lastActor = target, actor
	return f.booking, f.err
}

func (f *fakeBookings) CancelBooking(_ context.Context, _ uuid.UUID, reason string, actor booking.Actor) (*booking.Booking, error) {
	f.lastReason, f.lastActor = reason, actor
	return f.booking, f.err
}

type testServer struct {
	handler  http.Handler
	avail    *fakeAvailability
	bookings *fakeBookings
	registry *prometheus.Registry
}

func newTestServer(t *testing.T, limit rate.Limit, burst int) *testServer {
	t.Helper()

	reg := prometheus.NewRegistry()
	ts := &testServer{
		avail:    &fakeAvailability{},
		bookings: &fakeBookings{},
		registry: reg,
	}

	ok := func(context.Context) error { return nil }
	ts.handler = NewRouter(RouterConfig{
		Bookings:     ts.bookings,
		Availability: ts.avail,
		Health:       NewHealthHandler(ok, ok, "test", "v0"),
		Metrics:      metrics.New(reg),
		Gatherer:     reg,
		Logger:       zerolog.Nop(),
		RateLimit:    limit,
		RateBurst:    burst,
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func sampleBooking() *booking.Booking {
	expires := time.Date(2024, time.March, 1, 12, 10, 0, 0, time.UTC)
	return &booking.Booking{
		ID:                   uuid.New(),
		ProviderID:           uuid.New(),
		ClientID:             uuid.New(),
		ServiceID:            uuid.New(),
		Date:                 civil.Date{Year: 2024, Month: time.March, Day: 4},
		Start:                600,
		TotalDurationMinutes: 60,
		PriceCents:           10000,
		CommissionCents:      1500,
		Status:               booking.StatusPending,
		ExpiresAt:            &expires,
	}
}

func TestGetAvailability(t *testing.T) {
	ts := newTestServer(t, rate.Inf, 1)
	ts.avail.slots = []schedule.TimeOfDay{540, 570, 660}
	providerID := uuid.New()

	rec := ts.do(t, http.MethodGet, "/providers/"+providerID.String()+"/availability?date=2024-03-04&duration=60", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"provider_id": "`+providerID.String()+`",
		"date": "2024-03-04",
		"duration_minutes": 60,
		"slots": ["09:00", "09:30", "11:00"]
	}`, rec.Body.String())
	assert.Equal(t, 60, ts.avail.lastDur)
}

func TestGetAvailabilityEmptyIsOK(t *testing.T) {
	ts := newTestServer(t, rate.Inf, 1)
	ts.avail.slots = []schedule.TimeOfDay{}

	rec := ts.do(t, http.MethodGet, "/providers/"+uuid.NewString()+"/availability?date=2024-03-04&duration=30", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"slots":[]`)
}

func TestGetAvailabilityByService(t *testing.T) {
	ts := newTestServer(t, rate.Inf, 1)
	ts.avail.slots = []schedule.TimeOfDay{540}
	ts.avail.duration = 75
	serviceID := uuid.New()

	rec := ts.do(t, http.MethodGet, "/providers/"+uuid.NewString()+"/availability?date=2024-03-04&service_id="+serviceID.String(), nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp AvailabilityResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 75, resp.DurationMinutes)
	require.NotNil(t, resp.ServiceID)
	assert.Equal(t, serviceID, *resp.ServiceID)
}

func TestGetAvailabilityBadInput(t *testing.T) {
	ts := newTestServer(t, rate.Inf, 1)
	provider := "/providers/" + uuid.NewString() + "/availability"

	for _, path := range []string{
		"/providers/not-a-uuid/availability?date=2024-03-04&duration=30",
		provider + "?date=04-03-2024&duration=30",
		provider + "?date=2024-03-04",
		provider + "?date=2024-03-04&duration=abc",
		provider + "?date=2024-03-04&service_id=nope",
	} {
		rec := ts.do(t, http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		assert.Equal(t, "INVALID_INPUT", decodeError(t, rec).Error, path)
	}
}

func TestGetAvailabilityRange(t *testing.T) {
	ts := newTestServer(t, rate.Inf, 1)
	monday := civil.Date{Year: 2024, Month: time.March, Day: 4}
	ts.avail.days = []availability.DaySlots{
		{Date: monday, Slots: []schedule.TimeOfDay{540, 600}},
		{Date: monday.AddDays(1), Slots: []schedule.TimeOfDay{}},
	}
	providerID := uuid.New()

	rec := ts.do(t, http.MethodGet, "/providers/"+providerID.String()+"/availability/range?from=2024-03-04&to=2024-03-05&duration=45", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"provider_id": "`+providerID.String()+`",
		"from": "2024-03-04",
		"to": "2024-03-05",
		"duration_minutes": 45,
		"days": [
			{"date": "2024-03-04", "slots": ["09:00", "10:00"]},
			{"date": "2024-03-05", "slots": []}
		]
	}`, rec.Body.String())
	assert.Equal(t, monday, ts.avail.lastFrom)
	assert.Equal(t, monday.AddDays(1), ts.avail.lastTo)
	assert.Equal(t, 45, ts.avail.lastDur)
}

func TestGetAvailabilityRangeByService(t *testing.T) {
	ts := newTestServer(t, rate.Inf, 1)
	ts.avail.duration = 90
	serviceID := uuid.New()

	rec := ts.do(t, http.MethodGet, "/providers/"+uuid.NewString()+"/availability/range?from=2024-03-04&to=2024-03-04&service_id="+serviceID.String(), nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp RangeAvailabilityResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 90, resp.DurationMinutes)
	require.NotNil(t, resp.ServiceID)
	assert.Equal(t, serviceID, *resp.ServiceID)
	assert.NotNil(t, resp.Days)
}

func TestGetAvailabilityRangeBadInput(t *testing.T) {
	ts := newTestServer(t, rate.Inf, 1)
	base := "/providers/" + uuid.NewString() + "/availability/range"

	for _, path := range []string{
		base + "?to=2024-03-05&duration=30",
		base + "?from=2024-03-04&to=tomorrow&duration=30",
		base + "?from=2024-03-04&to=2024-03-05",
	} {
		rec := ts.do(t, http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}

	ts.avail.err = apperror.Invalid("a range may cover at most 31 days")
	rec := ts.do(t, http.MethodGet, base+"?from=2024-03-01&to=2024-06-01&duration=30", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckSlot(t *testing.T) {
	ts := newTestServer(t, rate.Inf, 1)
	ts.avail.result = availability.Result{Reason: apperror.SlotAlreadyBooked}
	exclude := uuid.New()

	rec := ts.do(t, http.MethodPost, "/providers/"+uuid.NewString()+"/availability/check", map[string]any{
		"date":               "2024-03-04",
		"time":               "10:30",
		"duration_minutes":   60,
		"exclude_booking_id": exclude.String(),
	}, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"available":false,"reason":"ALREADY_BOOKED"}`, rec.Body.String())
	assert.Equal(t, schedule.TimeOfDay(630), ts.avail.lastQuery.Start)
	assert.Equal(t, exclude, ts.avail.lastQuery.ExcludeBookingID)
}

func TestCreateBooking(t *testing.T) {
	ts := newTestServer(t, rate.Inf, 1)
	ts.bookings.booking = sampleBooking()
	clientID, providerID, serviceID := uuid.New(), uuid.New(), uuid.New()

	rec := ts.do(t, http.MethodPost, "/bookings", map[string]any{
		"client_id":   clientID,
		"provider_id": providerID,
		"service_id":  serviceID,
		"date":        "2024-03-04",
		"time":        "10:00",
		"notes":       "window seat",
	}, nil)

	require.Equal(t, http.StatusCreated, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "PENDING", body["status"])
	assert.Equal(t, "2024-03-04", body["date"])
	assert.Equal(t, "10:00", body["time"])
	assert.EqualValues(t, 10000, body["price_cents"])
	assert.EqualValues(t, 1500, body["commission_cents"])

	got := ts.bookings.lastCreate
	assert.Equal(t, clientID, got.ClientID)
	assert.Equal(t, providerID, got.ProviderID)
	assert.Equal(t, serviceID, got.ServiceID)
	assert.Equal(t, schedule.TimeOfDay(600), got.Start)
	assert.Equal(t, "window seat", got.Notes)
}

func TestCreateBookingValidation(t *testing.T) {
	ts := newTestServer(t, rate.Inf, 1)

	rec := ts.do(t, http.MethodPost, "/bookings", map[string]any{
		"client_id":   "nope",
		"provider_id": uuid.NewString(),
		"service_id":  uuid.NewString(),
		"date":        "2024-02-30",
		"time":        "24:00",
	}, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "INVALID_INPUT", resp.Error)
	assert.Contains(t, resp.Details, "client_id must be a valid UUID")
	assert.Contains(t, resp.Details, "date must be a date")
	assert.Contains(t, resp.Details, "time must be a time")
}

func TestCreateBookingErrorMapping(t *testing.T) {
	tests := []struct {
		err        error
		status     int
		code       string
		retryAfter bool
	}{
		{err: availability.ErrSlotAlreadyBooked, status: http.StatusConflict, code: "ALREADY_BOOKED"},
		{err: redisclient.ErrLockNotAcquired, status: http.StatusConflict, code: "LOCK_CONTENTION", retryAfter: true},
		{err: availability.ErrOutsideWorkingHours, status: http.StatusUnprocessableEntity, code: "OUTSIDE_HOURS"},
		{err: availability.ErrExceptionBlocked, status: http.StatusUnprocessableEntity, code: "EXCEPTION_BLOCKED"},
		{err: catalog.ErrServiceNotFound, status: http.StatusNotFound, code: "NOT_FOUND"},
		{err: errors.New("pool closed"), status: http.StatusInternalServerError, code: "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			ts := newTestServer(t, rate.Inf, 1)
			ts.bookings.err = tt.err

			rec := ts.do(t, http.MethodPost, "/bookings", map[string]any{
				"client_id":   uuid.NewString(),
				"provider_id": uuid.NewString(),
				"service_id":  uuid.NewString(),
				"date":        "2024-03-04",
				"time":        "10:00",
			}, nil)

			assert.Equal(t, tt.status, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, tt.code, resp.Error)
			assert.NotContains(t, resp.Details, "pool closed")
			if tt.retryAfter {
				assert.Equal(t, "1", rec.Header().Get("Retry-After"))
			} else {
				assert.Empty(t, rec.Header().Get("Retry-After"))
			}
		})
	}
}

func TestTransitionReadsActorHeaders(t *testing.T) {
	ts := newTestServer(t, rate.Inf, 1)
	b := sampleBooking()
	b.Status = booking.StatusConfirmed
	ts.bookings.booking = b
	providerID := uuid.New()

	rec := ts.do(t, http.MethodPost, "/bookings/"+b.ID.String()+"/transitions",
		map[string]string{"status": "IN_PROGRESS"},
		map[string]string{headerActorID: providerID.String(), headerActorRole: "Provider"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, booking.StatusInProgress, ts.bookings.lastTarget)
	assert.Equal(t, booking.Actor{ID: providerID, Role: booking.RoleProvider}, ts.bookings.lastActor)
}

func TestTransitionErrors(t *testing.T) {
	ts := newTestServer(t, rate.Inf, 1)
	path := "/bookings/" + uuid.NewString() + "/transitions"
	admin := map[string]string{headerActorRole: "admin"}

	rec := ts.do(t, http.MethodPost, path, map[string]string{"status": "CONFIRMED"}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "missing role")

	rec = ts.do(t, http.MethodPost, path, map[string]string{"status": "ARCHIVED"}, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ts.bookings.err = booking.ErrInvalidTransition
	rec = ts.do(t, http.MethodPost, path, map[string]string{"status": "CONFIRMED"}, admin)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INVALID_TRANSITION", decodeError(t, rec).Error)

	ts.bookings.err = booking.ErrBookingNotFound
	rec = ts.do(t, http.MethodPost, path, map[string]string{"status": "CONFIRMED"}, admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelBooking(t *testing.T) {
	ts := newTestServer(t, rate.Inf, 1)
	ts.bookings.booking = sampleBooking()
	clientID := uuid.New()

	rec := ts.do(t, http.MethodPost, "/bookings/"+uuid.NewString()+"/cancel",
		map[string]string{"reason": "double booked elsewhere"},
		map[string]string{headerActorID: clientID.String(), headerActorRole: "client"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "double booked elsewhere", ts.bookings.lastReason)
	assert.Equal(t, clientID, ts.bookings.lastActor.ID)

	rec = ts.do(t, http.MethodPost, "/bookings/"+uuid.NewString()+"/cancel",
		map[string]string{"reason": "x"},
		map[string]string{headerActorID: "bad", headerActorRole: "client"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetBookingAndHistory(t *testing.T) {
	ts := newTestServer(t, rate.Inf, 1)
	b := sampleBooking()
	ts.bookings.booking = b

	rec := ts.do(t, http.MethodGet, "/bookings/"+b.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), b.ID.String())

	rec = ts.do(t, http.MethodGet, "/bookings/"+b.ID.String()+"/events", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), booking.EventBookingCreated)

	rec = ts.do(t, http.MethodGet, "/bookings/123", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListBookings(t *testing.T) {
	ts := newTestServer(t, rate.Inf, 1)
	b := sampleBooking()
	ts.bookings.list = []booking.Booking{*b}

	rec := ts.do(t, http.MethodGet,
		"/bookings?client_id="+b.ClientID.String()+"&status=pending&from=2024-03-01&to=2024-03-31&limit=10", nil,
		map[string]string{headerActorID: b.ClientID.String(), headerActorRole: "client"})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Bookings []map[string]any `json:"bookings"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Bookings, 1)
	assert.Equal(t, b.ID.String(), resp.Bookings[0]["id"])

	assert.Equal(t, booking.ListFilter{
		ClientID: b.ClientID,
		Status:   booking.StatusPending,
		From:     civil.Date{Year: 2024, Month: time.March, Day: 1},
		To:       civil.Date{Year: 2024, Month: time.March, Day: 31},
		Limit:    10,
	}, ts.bookings.lastFilter)
	assert.Equal(t, booking.Actor{ID: b.ClientID, Role: booking.RoleClient}, ts.bookings.lastActor)
}

func TestListBookingsErrors(t *testing.T) {
	ts := newTestServer(t, rate.Inf, 1)
	providerID := uuid.NewString()
	provider := map[string]string{headerActorID: providerID, headerActorRole: "provider"}

	rec := ts.do(t, http.MethodGet, "/bookings?provider_id="+providerID, nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "missing role")

	for _, query := range []string{
		"?provider_id=nope",
		"?provider_id=" + providerID + "&from=March",
		"?provider_id=" + providerID + "&limit=0",
		"?provider_id=" + providerID + "&limit=ten",
	} {
		rec = ts.do(t, http.MethodGet, "/bookings"+query, nil, provider)
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}

	ts.bookings.err = booking.ErrListForbidden
	rec = ts.do(t, http.MethodGet, "/bookings?client_id="+uuid.NewString(), nil, provider)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", decodeError(t, rec).Error)
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, rate.Limit(0.001), 2)
	path := "/bookings/" + uuid.NewString()
	ts.bookings.booking = sampleBooking()

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, path, nil, nil).Code)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, path, nil, nil).Code)

	rec := ts.do(t, http.MethodGet, path, nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMITED", decodeError(t, rec).Error)

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/health/live", nil, nil).Code, "health is not rate limited")
}

func TestRequestIDAndMetrics(t *testing.T) {
	ts := newTestServer(t, rate.Inf, 1)
	ts.bookings.booking = sampleBooking()

	rec := ts.do(t, http.MethodGet, "/bookings/"+uuid.NewString(), nil, map[string]string{"X-Request-ID": "req-42"})
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))

	rec = ts.do(t, http.MethodGet, "/health/live", nil, nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	families, err := ts.registry.Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range families {
		if mf.GetName() != "http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "route" && lp.GetValue() == "/bookings/{id}" {
					found = true
				}
			}
		}
	}
	assert.True(t, found, "requests are labelled by route pattern")

	rec = ts.do(t, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}
