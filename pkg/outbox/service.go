package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/incentives-backend/pkg/db/models"
	"github.com/angelmondragon/incentives-backend/pkg/enums"
	"github.com/angelmondragon/incentives-backend/pkg/logger"
)

// DomainEvent is what services hand to Emit. Version and OccurredAt default to the current
// envelope version and now.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

var eventAggregates = map[enums.OutboxEventType]enums.OutboxAggregateType{
	enums.EventSettlementFinished:   enums.AggregateSettlementRun,
	enums.EventSettlementCancelled:  enums.AggregateSettlementRun,
	enums.EventIncentiveRuleChanged: enums.AggregateIncentiveRule,
}

func (e DomainEvent) validate() error {
	want, ok := eventAggregates[e.EventType]
	switch {
	case !ok:
		return fmt.Errorf("unknown outbox event type %q", e.EventType)
	case e.AggregateType != want:
		return fmt.Errorf("event %s belongs to aggregate %s, got %q", e.EventType, want, e.AggregateType)
	case e.AggregateID == uuid.Nil:
		return fmt.Errorf("event %s missing aggregate id", e.EventType)
	case e.Version < 0 || e.Version > CurrentEnvelopeVersion:
		return fmt.Errorf("event %s has unsupported envelope version %d", e.EventType, e.Version)
	}
	return nil
}

// Emitter is the dependency domain services take.
type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error
}

type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

// Emit writes event inside tx, so the event exists exactly when the state change commits.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if err := event.validate(); err != nil {
		return err
	}

	envelope, err := s.envelope(event)
	if err != nil {
		return err
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", event.EventType, err)
	}
	if err := s.repo.Insert(tx, models.OutboxEvent{
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       body,
	}); err != nil {
		return err
	}

	if s.logg != nil && ctx != nil {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"event_id":     envelope.EventID,
			"event_type":   event.EventType,
			"aggregate_id": event.AggregateID.String(),
		}), "outbox event queued")
	}
	return nil
}

func (s *Service) envelope(event DomainEvent) (PayloadEnvelope, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return PayloadEnvelope{}, fmt.Errorf("marshal %s payload: %w", event.EventType, err)
	}
	env := PayloadEnvelope{
		Version:    event.Version,
		EventID:    uuid.NewString(),
		OccurredAt: event.OccurredAt.UTC(),
		Actor:      event.Actor,
		Data:       data,
	}
	if env.Version == 0 {
		env.Version = CurrentEnvelopeVersion
	}
	if event.OccurredAt.IsZero() {
		env.OccurredAt = s.now().UTC()
	}
	return env, nil
}
