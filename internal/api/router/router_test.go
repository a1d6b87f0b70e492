package router

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwestberg/physiobook/internal/booking"
	"github.com/mwestberg/physiobook/internal/bookings"
	"github.com/mwestberg/physiobook/internal/http/handlers"
	httpmiddleware "github.com/mwestberg/physiobook/internal/http/middleware"
	"github.com/mwestberg/physiobook/internal/identity"
	"github.com/mwestberg/physiobook/internal/observability/metrics"
	"github.com/mwestberg/physiobook/internal/schedule"
	"github.com/mwestberg/physiobook/pkg/logging"
)

const testSecret = "router-test-secret"

type memStore struct {
	bookings []booking.Booking
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
	return f.bookings, nil
}

func (f *memStore) Create(_ context.Context, userID string, date time.Time, serviceType booking.ServiceType) (*booking.Booking, error) {
	b := booking.Booking{ID: "b1", UserID: userID, Date: date, ServiceType: serviceType, Status: booking.StatusPending}
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

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	svc := bookings.NewService(&memStore{}, booking.DefaultRules(), nil, nil)
	return New(&Config{
		BookingHandler:  handlers.NewBookingHandler(svc, nil, nil, nil, nil),
		ScheduleHandler: schedule.NewHandler(schedule.NewStore(client), nil),
		AuthSecret:      testSecret,
	})
}

func token(t *testing.T, role string) string {
	t.Helper()
	tok, err := httpmiddleware.IssueToken(testSecret, identity.Identity{
		UserID: "u1", Email: "amy@example.com", Name: "Amy", Role: role,
	}, time.Hour)
	require.NoError(t, err)
	return tok
}

func TestHealthIsPublic(t *testing.T) {
	r := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestBookingAPIRequiresAuth(t *testing.T) {
	r := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/bookings/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBookingAPIWithToken(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/bookings/", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, ""))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminRequiresAdminRole(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/schedule", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, ""))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminScheduleWithAdminToken(t *testing.T) {
	r := newTestRouter(t)

	body := `{"date":"2026-09-09","time":"14:00","service_type":"massage"}`
	req := httptest.NewRequest(http.MethodPut, "/admin/schedule/slot", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token(t, identity.RoleAdmin))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin/schedule?week=2026-09-09", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, identity.RoleAdmin))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "massage")
}

func TestWatchStreamsChangeEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	watcher := bookings.NewWatcher(client, nil)
	svc := bookings.NewService(&memStore{}, booking.DefaultRules(), nil, nil)
	r := New(&Config{
		Logger:         logging.Default(),
		Metrics:        metrics.NewBookingMetrics(prometheus.NewRegistry()),
		BookingHandler: handlers.NewBookingHandler(svc, nil, watcher, nil, nil),
		AuthSecret:     testSecret,
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/bookings/watch", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token(t, ""))

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// The subscribe can race the first publish, so keep firing until the
	// stream delivers; fires coalesce server-side.
	go func() {
		for ctx.Err() == nil {
			watcher.BookingsChanged(ctx, "u1")
			time.Sleep(20 * time.Millisecond)
		}
	}()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if strings.Contains(scanner.Text(), "event: change") {
			return
		}
	}
	t.Fatal("no change event arrived on the stream")
}

func TestUnknownRouteIs404(t *testing.T) {
	r := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
