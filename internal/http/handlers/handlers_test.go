// README: Handler tests over gin with stubbed auth and in-memory services.
package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"ridesafe/internal/http/handlers"
	httpmiddleware "ridesafe/internal/http/middleware"
	"ridesafe/internal/infra"
	"ridesafe/internal/maps"
	"ridesafe/internal/modules/emergency"
	"ridesafe/internal/modules/location"
	"ridesafe/internal/modules/profile"
	"ridesafe/internal/modules/ride"
	"ridesafe/internal/types"
)

const sessionID = "5b7f6f0e-3c1a-4d8e-9a57-1c2b3d4e5f60"

// stubTokenVerifier is a test double for infra.TokenVerifier.
type stubTokenVerifier struct {
	token *infra.FirebaseToken
	err   error
}

func (s *stubTokenVerifier) VerifyIDToken(_ context.Context, _ string) (*infra.FirebaseToken, error) {
	return s.token, s.err
}

func makeVerifier(uid, role string) *stubTokenVerifier {
	claims := map[string]interface{}{}
	if role != "" {
		claims["role"] = role
	}
	return &stubTokenVerifier{token: &infra.FirebaseToken{UID: uid, Claims: claims}}
}

func newEngine(verifier infra.TokenVerifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(httpmiddleware.Auth(verifier))
	return r
}

func doRequest(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer sometoken")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type fakeRides struct {
	startSess *ride.Session
	startErr  error
	stopSess  *ride.Session
	stopErr   error
	current   *ride.Session
	snap      *ride.Snapshot
	getErr    error
	gotRider  types.ID
}

func (f *fakeRides) Start(_ context.Context, riderID types.ID) (*ride.Session, error) {
	f.gotRider = riderID
	return f.startSess, f.startErr
}

func (f *fakeRides) Stop(_ context.Context, riderID types.ID) (*ride.Session, error) {
	f.gotRider = riderID
	return f.stopSess, f.stopErr
}

func (f *fakeRides) Current(_ context.Context, _ types.ID) (*ride.Session, error) {
	return f.current, nil
}

func (f *fakeRides) Snapshot(_ types.ID) (ride.Snapshot, bool) {
	if f.snap == nil {
		return ride.Snapshot{}, false
	}
	return *f.snap, true
}

func (f *fakeRides) Get(_ context.Context, riderID, id types.ID) (*ride.Session, []ride.Point, error) {
	f.gotRider = riderID
	if f.getErr != nil {
		return nil, nil, f.getErr
	}
	return &ride.Session{ID: id, RiderID: riderID, Status: ride.StatusEnded}, []ride.Point{{SessionID: id}}, nil
}

func rideRouter(rides *fakeRides, uid string) *gin.Engine {
	r := newEngine(makeVerifier(uid, ""))
	h := handlers.NewRideHandler(rides)
	r.POST("/api/rides/start", h.Start)
	r.POST("/api/rides/stop", h.Stop)
	r.GET("/api/rides/current", h.Current)
	r.GET("/api/rides/:id", h.Get)
	return r
}

func TestRideStart(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"ok", nil, http.StatusCreated},
		{"already running", ride.ErrSessionActive, http.StatusConflict},
		{"permission denied", fmt.Errorf("initial position: %w", location.ErrPermissionDenied), http.StatusForbidden},
		{"no fix yet", fmt.Errorf("initial position: %w", location.ErrPositionUnavailable), http.StatusServiceUnavailable},
		{"remote down", fmt.Errorf("activate session: %w", errors.New("conn refused")), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rides := &fakeRides{startErr: tc.err}
			if tc.err == nil {
				rides.startSess = &ride.Session{ID: sessionID, RiderID: "rider1", Status: ride.StatusActive}
			}
			w := doRequest(rideRouter(rides, "rider1"), http.MethodPost, "/api/rides/start", nil)
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, w.Code, w.Body.String())
			}
			if rides.gotRider != "rider1" {
				t.Errorf("expected caller rider1, got %q", rides.gotRider)
			}
		})
	}
}

func TestRideStop(t *testing.T) {
	ended := &ride.Session{ID: sessionID, Status: ride.StatusEnded, DistanceMeters: 11.1}
	tests := []struct {
		name string
		sess *ride.Session
		err  error
		want int
	}{
		{"idle", nil, nil, http.StatusNoContent},
		{"ended", ended, nil, http.StatusOK},
		{"remote close failed", ended, errors.New("end session: boom"), http.StatusAccepted},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rides := &fakeRides{stopSess: tc.sess, stopErr: tc.err}
			w := doRequest(rideRouter(rides, "rider1"), http.MethodPost, "/api/rides/stop", nil)
			if w.Code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, w.Code)
			}
		})
	}
}

func TestRideCurrent(t *testing.T) {
	live := &fakeRides{snap: &ride.Snapshot{Session: &ride.Session{ID: sessionID}, Points: 3}}
	w := doRequest(rideRouter(live, "rider1"), http.MethodGet, "/api/rides/current", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"points":3`) {
		t.Errorf("expected live snapshot, got %d %s", w.Code, w.Body.String())
	}

	idle := &fakeRides{}
	w = doRequest(rideRouter(idle, "rider1"), http.MethodGet, "/api/rides/current", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", w.Code)
	}
}

func TestRideGet(t *testing.T) {
	w := doRequest(rideRouter(&fakeRides{}, "rider1"), http.MethodGet, "/api/rides/not-a-uuid", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for malformed id, got %d", w.Code)
	}

	w = doRequest(rideRouter(&fakeRides{getErr: ride.ErrNotFound}, "rider1"), http.MethodGet, "/api/rides/"+sessionID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for foreign session, got %d", w.Code)
	}

	w = doRequest(rideRouter(&fakeRides{}, "rider1"), http.MethodGet, "/api/rides/"+sessionID, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"points"`) {
		t.Errorf("expected 200 with points, got %d %s", w.Code, w.Body.String())
	}
}

type fakeNearby struct {
	riders []location.RiderLocation
	err    error
	radius float64
}

func (f *fakeNearby) Nearby(_ context.Context, _ types.Coordinate, radiusKm float64) ([]location.RiderLocation, error) {
	f.radius = radiusKm
	return f.riders, f.err
}

func locationRouter(feeds *location.Feeds, nearby *fakeNearby) *gin.Engine {
	r := newEngine(makeVerifier("rider1", ""))
	h := handlers.NewLocationHandler(feeds, nearby)
	r.PUT("/api/location/permission", h.SetPermission)
	r.POST("/api/location/samples", h.PushSamples)
	r.GET("/api/riders/nearby", h.Nearby)
	return r
}

func TestPushSamplesRequiresPermission(t *testing.T) {
	feeds := location.NewFeeds(nil)
	r := locationRouter(feeds, &fakeNearby{})
	body := map[string]any{"samples": []map[string]any{{"coordinate": map[string]float64{"lat": 20.605, "lng": -100.4}}}}

	w := doRequest(r, http.MethodPost, "/api/location/samples", body)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 before permission, got %d", w.Code)
	}

	w = doRequest(r, http.MethodPut, "/api/location/permission", map[string]bool{"granted": true})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	w = doRequest(r, http.MethodPost, "/api/location/samples", body)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	pos, err := feeds.For("rider1").CurrentPosition(context.Background())
	if err != nil {
		t.Fatalf("CurrentPosition: %v", err)
	}
	if pos.Lat != 20.605 || pos.Lng != -100.4 {
		t.Errorf("unexpected position %+v", pos)
	}
}

func TestPushSamplesRejectsBadBodies(t *testing.T) {
	feeds := location.NewFeeds(nil)
	feeds.For("rider1").SetPermission(true)
	r := locationRouter(feeds, &fakeNearby{})
	tests := []struct {
		name string
		body interface{}
	}{
		{"not json", "{"},
		{"unknown field", `{"samples":[],"extra":1}`},
		{"empty samples", map[string]any{"samples": []any{}}},
		{"latitude out of range", map[string]any{"samples": []map[string]any{{"coordinate": map[string]float64{"lat": 91, "lng": 0}}}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := doRequest(r, http.MethodPost, "/api/location/samples", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", w.Code)
			}
		})
	}
}

func TestNearby(t *testing.T) {
	nearby := &fakeNearby{riders: []location.RiderLocation{{RiderID: "r2", DistanceKm: 0.4}}}
	r := locationRouter(location.NewFeeds(nil), nearby)

	if w := doRequest(r, http.MethodGet, "/api/riders/nearby", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without origin, got %d", w.Code)
	}
	w := doRequest(r, http.MethodGet, "/api/riders/nearby?lat=20.6&lng=-100.4", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "r2") {
		t.Errorf("expected r2, got %d %s", w.Code, w.Body.String())
	}
	if nearby.radius != 5 {
		t.Errorf("expected default radius 5, got %v", nearby.radius)
	}

	nearby.err = location.ErrBadRadius
	if w := doRequest(r, http.MethodGet, "/api/riders/nearby?lat=20.6&lng=-100.4&radius_km=80", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad radius, got %d", w.Code)
	}
}

type fakeProfiles struct {
	saved   *profile.Profile
	medical *profile.MedicalRecord
	saveErr error
	pending []string
	warmErr error
}

func (f *fakeProfiles) GetProfile(_ context.Context, _ types.ID) (*profile.Profile, error) {
	if f.saved == nil {
		return nil, profile.ErrNotFound
	}
	return f.saved, nil
}

func (f *fakeProfiles) SaveProfile(_ context.Context, p profile.Profile) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = &p
	return nil
}

func (f *fakeProfiles) GetMedical(_ context.Context, _ types.ID) (*profile.MedicalRecord, error) {
	if f.medical == nil {
		return nil, profile.ErrNotFound
	}
	return f.medical, nil
}

func (f *fakeProfiles) SaveMedical(_ context.Context, m profile.MedicalRecord) error {
	f.medical = &m
	return nil
}

func (f *fakeProfiles) GetStatus(_ context.Context, userID types.ID) (*profile.ParamedicStatus, error) {
	return &profile.ParamedicStatus{UserID: userID}, nil
}

func (f *fakeProfiles) SetOnDuty(_ context.Context, _ types.ID, _ bool) error { return nil }

func (f *fakeProfiles) WarmUp(_ context.Context, _ types.ID) error { return f.warmErr }

func (f *fakeProfiles) SyncAll(_ context.Context, _ types.ID) error { return nil }

func (f *fakeProfiles) PendingKinds(_ context.Context, _ types.ID) ([]string, error) {
	return f.pending, nil
}

func profileRouter(p *fakeProfiles) *gin.Engine {
	r := newEngine(makeVerifier("user1", ""))
	h := handlers.NewProfileHandler(p)
	r.GET("/api/profile", h.GetProfile)
	r.PUT("/api/profile", h.PutProfile)
	r.PUT("/api/medical", h.PutMedical)
	r.POST("/api/sync/warmup", h.WarmUp)
	r.GET("/api/sync/pending", h.Pending)
	return r
}

func TestProfileGetAndPut(t *testing.T) {
	p := &fakeProfiles{}
	r := profileRouter(p)

	if w := doRequest(r, http.MethodGet, "/api/profile", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	w := doRequest(r, http.MethodPut, "/api/profile", map[string]string{"display_name": "Ana"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if p.saved == nil || p.saved.ID != "user1" || p.saved.DisplayName != "Ana" {
		t.Errorf("expected profile saved for caller, got %+v", p.saved)
	}
	if w := doRequest(r, http.MethodPut, "/api/profile", map[string]string{"id": "someone-else"}); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for id in body, got %d", w.Code)
	}

	p.saveErr = fmt.Errorf("%w: display_name too long", profile.ErrBadRequest)
	if w := doRequest(r, http.MethodPut, "/api/profile", map[string]string{"display_name": "x"}); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestMedicalPutUsesCaller(t *testing.T) {
	p := &fakeProfiles{}
	w := doRequest(profileRouter(p), http.MethodPut, "/api/medical", map[string]any{"blood_type": "O+", "age": 30})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if p.medical.UserID != "user1" || p.medical.BloodType != "O+" {
		t.Errorf("unexpected record %+v", p.medical)
	}
}

func TestSyncEndpoints(t *testing.T) {
	p := &fakeProfiles{}
	r := profileRouter(p)
	w := doRequest(r, http.MethodGet, "/api/sync/pending", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"pending":[]`) {
		t.Errorf("expected empty pending list, got %s", w.Body.String())
	}
	if w := doRequest(r, http.MethodPost, "/api/sync/warmup", nil); w.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", w.Code)
	}
	p.warmErr = errors.New("remote down")
	if w := doRequest(r, http.MethodPost, "/api/sync/warmup", nil); w.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", w.Code)
	}
}

type fakeEmergencies struct {
	triggerID  types.ID
	triggerErr error
	incident   *emergency.Incident
	resolveErr error
	near       *types.Coordinate
}

func (f *fakeEmergencies) TriggerForUser(_ context.Context, _ types.ID, _ string) (types.ID, error) {
	return f.triggerID, f.triggerErr
}

func (f *fakeEmergencies) Resolve(_ context.Context, _, _ types.ID) (*emergency.Incident, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return f.incident, nil
}

func (f *fakeEmergencies) Get(_ context.Context, _ types.ID) (*emergency.Incident, []emergency.Event, error) {
	if f.incident == nil {
		return nil, nil, emergency.ErrNotFound
	}
	return f.incident, nil, nil
}

func (f *fakeEmergencies) ListPending(_ context.Context, near *types.Coordinate, _ int) ([]emergency.Incident, error) {
	f.near = near
	return nil, nil
}

func emergencyRouter(e *fakeEmergencies, uid, role string) *gin.Engine {
	r := newEngine(makeVerifier(uid, role))
	h := handlers.NewEmergencyHandler(e)
	r.POST("/api/emergencies", h.Trigger)
	r.GET("/api/emergencies", h.List)
	r.GET("/api/emergencies/:id", h.Get)
	r.POST("/api/emergencies/:id/resolve", h.Resolve)
	return r
}

func TestTrigger(t *testing.T) {
	tests := []struct {
		name     string
		id       types.ID
		err      error
		want     int
		contains string
	}{
		{"recorded", sessionID, nil, http.StatusCreated, `"event_recorded":true`},
		{"event write failed", "", &emergency.PartialFailureError{IncidentID: sessionID, Err: errors.New("boom")}, http.StatusCreated, `"event_recorded":false`},
		{"no position", "", fmt.Errorf("resolve position: %w", location.ErrPositionUnavailable), http.StatusServiceUnavailable, "position"},
		{"incident failed", "", errors.New("insert failed"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := &fakeEmergencies{triggerID: tc.id, triggerErr: tc.err}
			w := doRequest(emergencyRouter(e, "rider1", ""), http.MethodPost, "/api/emergencies", map[string]string{"route_context": "commute"})
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, w.Code)
			}
			if !strings.Contains(w.Body.String(), tc.contains) {
				t.Errorf("expected %q in %s", tc.contains, w.Body.String())
			}
		})
	}
}

func TestTriggerWithoutBody(t *testing.T) {
	e := &fakeEmergencies{triggerID: sessionID}
	w := doRequest(emergencyRouter(e, "rider1", ""), http.MethodPost, "/api/emergencies", nil)
	if w.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", w.Code)
	}
}

func TestEmergencyGetVisibility(t *testing.T) {
	inc := &emergency.Incident{ID: sessionID, TriggerUserID: "rider1", Status: emergency.StatusPending, CreatedAt: time.Now()}
	tests := []struct {
		uid, role string
		want      int
	}{
		{"rider1", "", http.StatusOK},
		{"rider2", "", http.StatusNotFound},
		{"medic", "paramedic", http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.uid, func(t *testing.T) {
			w := doRequest(emergencyRouter(&fakeEmergencies{incident: inc}, tc.uid, tc.role), http.MethodGet, "/api/emergencies/"+sessionID, nil)
			if w.Code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, w.Code)
			}
		})
	}
}

func TestEmergencyResolveAndList(t *testing.T) {
	e := &fakeEmergencies{resolveErr: emergency.ErrInvalidState}
	r := emergencyRouter(e, "medic", "paramedic")
	if w := doRequest(r, http.MethodPost, "/api/emergencies/"+sessionID+"/resolve", nil); w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
	if w := doRequest(r, http.MethodGet, "/api/emergencies?lat=abc&lng=1", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	w := doRequest(r, http.MethodGet, "/api/emergencies?lat=20.6&lng=-100.4", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"incidents":[]`) {
		t.Errorf("expected empty list, got %d %s", w.Code, w.Body.String())
	}
	if e.near == nil || e.near.Lat != 20.6 {
		t.Errorf("expected origin passed through, got %+v", e.near)
	}
}

type fakeHospitals struct {
	place *maps.Place
	err   error
}

func (f fakeHospitals) NearestHospital(_ context.Context, _ types.Coordinate, _ uint) (*maps.Place, error) {
	return f.place, f.err
}

func TestNearestHospital(t *testing.T) {
	tests := []struct {
		name   string
		finder fakeHospitals
		query  string
		want   int
	}{
		{"found", fakeHospitals{place: &maps.Place{Name: "Hospital General"}}, "?lat=20.6&lng=-100.4", http.StatusOK},
		{"missing origin", fakeHospitals{}, "", http.StatusBadRequest},
		{"none nearby", fakeHospitals{err: maps.ErrNoResult}, "?lat=20.6&lng=-100.4", http.StatusNotFound},
		{"api down", fakeHospitals{err: errors.New("quota")}, "?lat=20.6&lng=-100.4", http.StatusBadGateway},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := newEngine(makeVerifier("rider1", ""))
			r.GET("/api/hospitals/nearest", handlers.NewHospitalHandler(tc.finder).Nearest)
			w := doRequest(r, http.MethodGet, "/api/hospitals/nearest"+tc.query, nil)
			if w.Code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, w.Code)
			}
		})
	}
}
