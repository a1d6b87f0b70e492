package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwestberg/physiobook/internal/booking"
	"github.com/mwestberg/physiobook/internal/bookings"
	"github.com/mwestberg/physiobook/internal/identity"
	"github.com/mwestberg/physiobook/internal/schedule"
)

// memStore implements bookings.Store in memory.
type memStore struct {
	bookings  []booking.Booking
	nextID    int
	createErr error
}

func (f *memStore) ListActive(_ context.Context, userID string) ([]booking.Booking, error) {
	var out []booking.Booking
	for _, b := range f.bookings {
		if b.UserID == userID && b.Active() {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *memStore) ListAllActive(context.Context) ([]booking.Booking, error) {
	var out []booking.Booking
	for _, b := range f.bookings {
		if b.Active() {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *memStore) Create(_ context.Context, userID string, date time.Time, serviceType booking.ServiceType) (*booking.Booking, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	b := booking.Booking{
		ID:          string(rune('a' + f.nextID)),
		UserID:      userID,
		Date:        date,
		ServiceType: serviceType,
		Status:      booking.StatusPending,
	}
	f.bookings = append(f.bookings, b)
	return &b, nil
}

func (f *memStore) Cancel(_ context.Context, bookingID, userID string) error {
	for i, b := range f.bookings {
		if b.ID == bookingID && b.UserID == userID {
			f.bookings[i].Status = booking.StatusCancelled
		}
	}
	return nil
}

type recordingMailer struct {
	confirmed []string
	cancelled []string
}

func (m *recordingMailer) BookingConfirmed(_ context.Context, to, _ string, _ booking.Booking) error {
	m.confirmed = append(m.confirmed, to)
	return nil
}

func (m *recordingMailer) BookingCancelled(_ context.Context, to, _ string, _ booking.Booking) error {
	m.cancelled = append(m.cancelled, to)
	return nil
}

// Wednesday morning, mid work week.
var testNow = time.Date(2026, 9, 9, 9, 0, 0, 0, time.UTC)

func newHandler(store *memStore, mailer Mailer) *BookingHandler {
	svc := bookings.NewService(store, booking.DefaultRules(), nil, nil)
	h := NewBookingHandler(svc, nil, nil, mailer, nil)
	h.now = func() time.Time { return testNow }
	return h
}

func authed(req *http.Request) *http.Request {
	return req.WithContext(identity.WithIdentity(req.Context(), identity.Identity{
		UserID: "u1", Email: "amy@example.com", Name: "Amy",
	}))
}

func TestListRequiresIdentity(t *testing.T) {
	h := newHandler(&memStore{}, nil)

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/bookings", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListReturnsOwnBookings(t *testing.T) {
	store := &memStore{bookings: []booking.Booking{
		{ID: "b1", UserID: "u1", Date: testNow.Add(5 * time.Hour), Status: booking.StatusConfirmed},
		{ID: "b2", UserID: "u2", Date: testNow.Add(6 * time.Hour), Status: booking.StatusConfirmed},
	}}
	h := newHandler(store, nil)

	rec := httptest.NewRecorder()
	h.List(rec, authed(httptest.NewRequest(http.MethodGet, "/api/bookings", nil)))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Bookings []booking.Booking `json:"bookings"`
		Count    int               `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "b1", resp.Bookings[0].ID)
}

func TestCreateAllowed(t *testing.T) {
	mailer := &recordingMailer{}
	h := newHandler(&memStore{}, mailer)

	body := `{"date":"2026-09-09","time":"14:00","service_type":"physio"}`
	rec := httptest.NewRecorder()
	h.Create(rec, authed(httptest.NewRequest(http.MethodPost, "/api/bookings", strings.NewReader(body))))

	require.Equal(t, http.StatusCreated, rec.Code)
	var created booking.Booking
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, booking.ServicePhysio, created.ServiceType)
	assert.Equal(t, []string{"amy@example.com"}, mailer.confirmed)
}

func TestCreateDailyConflictPrompts(t *testing.T) {
	store := &memStore{bookings: []booking.Booking{
		{ID: "b1", UserID: "u1", Date: time.Date(2026, 9, 9, 16, 0, 0, 0, time.UTC), Status: booking.StatusConfirmed},
	}}
	h := newHandler(store, nil)

	body := `{"date":"2026-09-09","time":"16:30","service_type":"physio"}`
	rec := httptest.NewRecorder()
	h.Create(rec, authed(httptest.NewRequest(http.MethodPost, "/api/bookings", strings.NewReader(body))))

	require.Equal(t, http.StatusConflict, rec.Code)
	var resp attemptResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "conflict_prompt", resp.State)
	require.NotNil(t, resp.Conflict)
	assert.Equal(t, "b1", resp.Conflict.ID)
}

func TestCreateTooSoonRejected(t *testing.T) {
	h := newHandler(&memStore{}, nil)

	body := `{"date":"2026-09-09","time":"09:15","service_type":"physio"}`
	rec := httptest.NewRecorder()
	h.Create(rec, authed(httptest.NewRequest(http.MethodPost, "/api/bookings", strings.NewReader(body))))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var resp attemptResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "rejected", resp.State)
}

func TestCreateRejectsBadPayload(t *testing.T) {
	h := newHandler(&memStore{}, nil)

	body := `{"date":"tomorrow","time":"14:00","service_type":"physio"}`
	rec := httptest.NewRecorder()
	h.Create(rec, authed(httptest.NewRequest(http.MethodPost, "/api/bookings", strings.NewReader(body))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReplaceIncompleteSurfacesConflict(t *testing.T) {
	store := &memStore{bookings: []booking.Booking{
		{ID: "b1", UserID: "u1", Date: time.Date(2026, 9, 9, 16, 0, 0, 0, time.UTC), Status: booking.StatusConfirmed},
	}}
	h := newHandler(store, nil)
	store.createErr = errors.New("storage down")

	body := `{"cancel_id":"b1","date":"2026-09-09","time":"16:30","service_type":"physio"}`
	rec := httptest.NewRecorder()
	h.Replace(rec, authed(httptest.NewRequest(http.MethodPost, "/api/bookings/replace", strings.NewReader(body))))

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "pick a slot again")
}

func TestReplaceSucceeds(t *testing.T) {
	store := &memStore{bookings: []booking.Booking{
		{ID: "b1", UserID: "u1", Date: time.Date(2026, 9, 9, 16, 0, 0, 0, time.UTC), Status: booking.StatusConfirmed},
	}}
	mailer := &recordingMailer{}
	h := newHandler(store, mailer)

	body := `{"cancel_id":"b1","date":"2026-09-09","time":"16:30","service_type":"massage"}`
	rec := httptest.NewRecorder()
	h.Replace(rec, authed(httptest.NewRequest(http.MethodPost, "/api/bookings/replace", strings.NewReader(body))))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Len(t, mailer.confirmed, 1)
}

func TestCancelSendsEmail(t *testing.T) {
	store := &memStore{bookings: []booking.Booking{
		{ID: "b1", UserID: "u1", Date: time.Date(2026, 9, 9, 16, 0, 0, 0, time.UTC), Status: booking.StatusConfirmed},
	}}
	mailer := &recordingMailer{}
	h := newHandler(store, mailer)

	router := chi.NewRouter()
	router.Delete("/api/bookings/{id}", h.Cancel)

	req := authed(httptest.NewRequest(http.MethodDelete, "/api/bookings/b1", nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"amy@example.com"}, mailer.cancelled)
	assert.Equal(t, booking.StatusCancelled, store.bookings[0].Status)
}

func TestNextAvailable(t *testing.T) {
	h := newHandler(&memStore{}, nil)

	rec := httptest.NewRecorder()
	h.NextAvailable(rec, httptest.NewRequest(http.MethodGet, "/api/bookings/next-available", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Available bool             `json:"available"`
		Next      booking.NextSlot `json:"next"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Available)
	assert.Equal(t, "10:00", resp.Next.TimeLabel)
	assert.Equal(t, 100, resp.Next.AvailabilityPercent)
}

func TestCalendarOverlaysSchedule(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	sched := schedule.NewStore(client)
	day := time.Date(2026, 9, 9, 0, 0, 0, 0, time.UTC)
	require.NoError(t, sched.SetSlot(context.Background(), day, "14:00", booking.ServiceMassage))

	store := &memStore{}
	svc := bookings.NewService(store, booking.DefaultRules(), nil, nil)
	h := NewBookingHandler(svc, sched, nil, nil, nil)
	h.now = func() time.Time { return testNow }

	rec := httptest.NewRecorder()
	h.Calendar(rec, httptest.NewRequest(http.MethodGet, "/api/calendar", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Days []calendarDay `json:"days"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	// Mid-week: Wednesday through Friday remain.
	require.Len(t, resp.Days, 3)
	assert.Equal(t, "Wednesday", resp.Days[0].DayName)

	var found bool
	for _, slot := range resp.Days[0].Slots {
		if slot.Time == "14:00" {
			found = true
			assert.Equal(t, booking.ServiceMassage, slot.ServiceType)
		} else {
			assert.Equal(t, booking.ServicePhysio, slot.ServiceType)
		}
	}
	assert.True(t, found)
}
