// README: Emergency service records SOS activations as incident + event and
// lets paramedics list and resolve them.
package emergency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmcloughlin/geohash"

	"ridesafe/internal/modules/location"
	"ridesafe/internal/modules/profile"
	"ridesafe/internal/pkg/validator"
	"ridesafe/internal/types"
)

const (
	geocodeTimeout = 3 * time.Second
	// precision 5 cells are roughly 4.9 km x 4.9 km
	nearbyPrecision = 5
	NotifyTopic     = "emergencies"
)

// Geocoder resolves a coordinate to a street address.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, c types.Coordinate) (string, error)
}

// ProfileSource reads the user's records, local cache first.
type ProfileSource interface {
	GetProfile(ctx context.Context, userID types.ID) (*profile.Profile, error)
	GetMedical(ctx context.Context, userID types.ID) (*profile.MedicalRecord, error)
}

// PositionSource exposes the last accepted sample of a rider's running ride.
type PositionSource interface {
	LastPosition(riderID types.ID) (types.Coordinate, bool)
}

// PositionFallback is asked when no ride is running.
type PositionFallback func(ctx context.Context, riderID types.ID) (types.Coordinate, error)

// Notifier announces new incidents to listening paramedics.
type Notifier interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

type Deps struct {
	Store     *Store
	Geocoder  Geocoder
	Profiles  ProfileSource
	Positions PositionSource
	Fallback  PositionFallback
	Notifier  Notifier
	Logger    *slog.Logger
}

type Service struct {
	store     *Store
	geocoder  Geocoder
	profiles  ProfileSource
	positions PositionSource
	fallback  PositionFallback
	notifier  Notifier
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     deps.Store,
		geocoder:  deps.Geocoder,
		profiles:  deps.Profiles,
		positions: deps.Positions,
		fallback:  deps.Fallback,
		notifier:  deps.Notifier,
		logger:    logger.With(slog.String("component", "emergency")),
		now:       time.Now,
	}
}

type TriggerCommand struct {
	User         types.ID
	Profile      profile.Profile
	Medical      *profile.MedicalRecord
	RouteContext string
	Coordinate   types.Coordinate
}

// Trigger writes the incident, then its sos_triggered event. No event is
// written when the incident fails. When the event fails the incident stays
// pending and a *PartialFailureError carrying its id is returned.
func (s *Service) Trigger(ctx context.Context, cmd TriggerCommand) (types.ID, error) {
	if cmd.User.Empty() || !cmd.Coordinate.Valid() {
		return "", ErrBadRequest
	}
	now := s.now()
	payload := SOSPayload{
		UserID:       cmd.User,
		Name:         displayName(cmd.Profile),
		Phone:        cmd.Profile.Phone,
		RouteContext: cmd.RouteContext,
		Coordinate:   cmd.Coordinate,
		Medical:      medicalSummary(cmd.Medical),
		TriggeredAt:  now,
	}
	if err := validator.ValidateStruct(payload); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	inc := &Incident{
		TriggerUserID: cmd.User,
		Status:        StatusPending,
		Location:      cmd.Coordinate,
		Geohash:       geohash.Encode(cmd.Coordinate.Lat, cmd.Coordinate.Lng),
		CreatedAt:     now,
	}
	if err := s.store.CreateIncident(ctx, inc); err != nil {
		s.logger.Error("create incident", slog.String("user_id", cmd.User.String()), slog.Any("err", err))
		return "", fmt.Errorf("create incident: %w", err)
	}

	payload.Address = s.address(ctx, cmd.Coordinate)
	raw, err := json.Marshal(payload)
	if err != nil {
		return inc.ID, &PartialFailureError{IncidentID: inc.ID, Err: err}
	}
	ev := &Event{EmergencyID: inc.ID, Type: EventSOSTriggered, Payload: raw}
	if err := s.store.AppendEvent(ctx, ev); err != nil {
		s.logger.Error("append sos event", slog.String("incident_id", inc.ID.String()), slog.Any("err", err))
		return inc.ID, &PartialFailureError{IncidentID: inc.ID, Err: err}
	}

	s.notify(ctx, inc, raw)
	s.logger.Info("sos triggered",
		slog.String("incident_id", inc.ID.String()), slog.String("geohash", inc.Geohash))
	return inc.ID, nil
}

// TriggerForUser resolves the profile from the local cache and the position
// from the running ride, falling back to the device feed.
func (s *Service) TriggerForUser(ctx context.Context, userID types.ID, routeContext string) (types.ID, error) {
	if userID.Empty() {
		return "", ErrBadRequest
	}
	cmd := TriggerCommand{User: userID, RouteContext: routeContext, Profile: profile.Profile{ID: userID}}

	if s.profiles != nil {
		if p, err := s.profiles.GetProfile(ctx, userID); err == nil {
			cmd.Profile = *p
		} else if !errors.Is(err, profile.ErrNotFound) {
			s.logger.Warn("load profile for sos", slog.String("user_id", userID.String()), slog.Any("err", err))
		}
		if m, err := s.profiles.GetMedical(ctx, userID); err == nil {
			cmd.Medical = m
		} else if !errors.Is(err, profile.ErrNotFound) {
			s.logger.Warn("load medical record for sos", slog.String("user_id", userID.String()), slog.Any("err", err))
		}
	}

	coord, err := s.position(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("resolve position: %w", err)
	}
	cmd.Coordinate = coord
	return s.Trigger(ctx, cmd)
}

func (s *Service) position(ctx context.Context, userID types.ID) (types.Coordinate, error) {
	if s.positions != nil {
		if c, ok := s.positions.LastPosition(userID); ok {
			return c, nil
		}
	}
	if s.fallback != nil {
		return s.fallback(ctx, userID)
	}
	return types.Coordinate{}, location.ErrPositionUnavailable
}

// address is best effort; SOS events are written without it on failure.
func (s *Service) address(ctx context.Context, c types.Coordinate) string {
	if s.geocoder == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, geocodeTimeout)
	defer cancel()
	addr, err := s.geocoder.ReverseGeocode(ctx, c)
	if err != nil {
		s.logger.Warn("reverse geocode", slog.Any("err", err))
		return ""
	}
	return addr
}

func (s *Service) notify(ctx context.Context, inc *Incident, payload []byte) {
	if s.notifier == nil {
		return
	}
	msg, err := json.Marshal(struct {
		Type     string          `json:"type"`
		Incident *Incident       `json:"incident"`
		Payload  json.RawMessage `json:"payload"`
	}{Type: EventSOSTriggered, Incident: inc, Payload: payload})
	if err != nil {
		return
	}
	if err := s.notifier.Publish(ctx, NotifyTopic, msg); err != nil {
		s.logger.Warn("notify paramedics", slog.String("incident_id", inc.ID.String()), slog.Any("err", err))
	}
}

// Resolve closes a pending incident on behalf of a paramedic.
func (s *Service) Resolve(ctx context.Context, incidentID, paramedicID types.ID) (*Incident, error) {
	if incidentID.Empty() || paramedicID.Empty() {
		return nil, ErrBadRequest
	}
	ok, err := s.store.Resolve(ctx, incidentID, paramedicID, s.now())
	if err != nil {
		return nil, err
	}
	inc, err := s.store.Get(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidState
	}
	return inc, nil
}

// Get returns the incident with its events.
func (s *Service) Get(ctx context.Context, incidentID types.ID) (*Incident, []Event, error) {
	inc, err := s.store.Get(ctx, incidentID)
	if err != nil {
		return nil, nil, err
	}
	events, err := s.store.Events(ctx, incidentID)
	if err != nil {
		return nil, nil, err
	}
	return inc, events, nil
}

// ListPending lists pending incidents. With a near coordinate only incidents
// in its geohash cell and the eight around it are returned.
func (s *Service) ListPending(ctx context.Context, near *types.Coordinate, limit int) ([]Incident, error) {
	if near == nil {
		return s.store.ListPending(ctx, nil, limit)
	}
	if !near.Valid() {
		return nil, ErrBadRequest
	}
	cell := geohash.EncodeWithPrecision(near.Lat, near.Lng, nearbyPrecision)
	cells := append([]string{cell}, geohash.Neighbors(cell)...)
	return s.store.ListPending(ctx, cells, limit)
}

func displayName(p profile.Profile) string {
	if p.RealDisplayName != "" {
		return p.RealDisplayName
	}
	return p.DisplayName
}

func medicalSummary(m *profile.MedicalRecord) *MedicalSummary {
	if m == nil {
		return nil
	}
	return &MedicalSummary{
		BloodType:                m.BloodType,
		Allergies:                m.Allergies,
		Medications:              m.Medications,
		Conditions:               m.Conditions,
		Age:                      m.Age,
		EmergencyContactRelation: m.EmergencyContactRelation,
		EmergencyContactPhone:    m.EmergencyContactPhone,
	}
}
