package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"identity-reconciliation/internal/metrics"
	"identity-reconciliation/internal/models"
)

// ErrMissingIdentifier is returned when a request carries neither an email
// nor a phone number.
var ErrMissingIdentifier = errors.New("either email or phoneNumber must be provided")

// publishTimeout bounds how long a committed request waits on the event sink.
const publishTimeout = 2 * time.Second

// Outcome describes which write, if any, an identify call performed.
type Outcome string

const (
	OutcomeCreatedPrimary  Outcome = "created_primary"
	OutcomeLinkedSecondary Outcome = "linked_secondary"
	OutcomeMerged          Outcome = "merged"
	OutcomeUnchanged       Outcome = "unchanged"
	OutcomeFailed          Outcome = "failed"
)

// Publisher receives link events once the writes behind them are committed.
type Publisher interface {
	Publish(ctx context.Context, event models.LinkEvent) error
}

// ReconciliationService handles identity reconciliation logic
type ReconciliationService struct {
	tx        Transactor
	logger    *zap.Logger
	metrics   *metrics.Metrics
	publisher Publisher
	now       func() time.Time
}

// Option configures a ReconciliationService.
type Option func(*ReconciliationService)

// WithLogger sets the logger; the default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(s *ReconciliationService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *ReconciliationService) {
		s.metrics = m
	}
}

// WithPublisher sets where link events are sent.
func WithPublisher(p Publisher) Option {
	return func(s *ReconciliationService) {
		s.publisher = p
	}
}

// NewReconciliationService creates a new reconciliation service
func NewReconciliationService(tx Transactor, opts ...Option) *ReconciliationService {
	s := &ReconciliationService{
		tx:     tx,
		logger: zap.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// resolution is what one unit of work produced.
type resolution struct {
	view     models.ContactResponse
	outcome  Outcome
	created  []models.Contact
	demoted  []int64
	relinked []int64
	events   []models.LinkEvent
}

// Identify links the observed email/phone pair into its identity cluster and
// returns the consolidated view. Matching, merging and inserting all happen
// inside one storage transaction.
func (s *ReconciliationService) Identify(ctx context.Context, req models.IdentifyRequest) (*models.IdentifyResponse, error) {
	start := time.Now()
	req = req.Normalized()
	if req.Email == nil && req.PhoneNumber == nil {
		return nil, ErrMissingIdentifier
	}

	var res resolution
	err := s.tx.RunInTx(ctx, func(store Store) error {
		var err error
		res, err = s.resolve(ctx, store, req)
		return err
	})
	if err != nil {
		s.metrics.ObserveIdentify(string(OutcomeFailed), start)
		return nil, fmt.Errorf("identify: %w", err)
	}

	s.metrics.ObserveIdentify(string(res.outcome), start)
	for _, c := range res.created {
		s.metrics.IncrementContactsCreated(string(c.LinkPrecedence))
	}
	s.metrics.AddMerged(len(res.demoted), len(res.relinked))

	s.logger.Debug("identify resolved",
		zap.String("outcome", string(res.outcome)),
		zap.Int64("primary_id", res.view.PrimaryContactID),
		zap.Int("secondary_count", len(res.view.SecondaryContactIDs)),
		zap.Duration("took", time.Since(start)),
	)

	// writes are committed; events go out even if the caller has gone away
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	s.publish(pubCtx, res.events)

	return &models.IdentifyResponse{Contact: res.view}, nil
}

// resolve runs matcher, assembler, mutator and projector against one store.
func (s *ReconciliationService) resolve(ctx context.Context, store Store, req models.IdentifyRequest) (resolution, error) {
	var res resolution

	candidates, err := findCandidates(ctx, store, req.Email, req.PhoneNumber)
	if err != nil {
		return res, err
	}

	state, err := assemble(ctx, store, candidates, s.logger)
	if err != nil {
		return res, err
	}

	if state == nil {
		created, err := store.Create(ctx, models.NewContact{
			Email:          req.Email,
			PhoneNumber:    req.PhoneNumber,
			LinkPrecedence: models.PrecedencePrimary,
		})
		if err != nil {
			return res, fmt.Errorf("create primary contact: %w", err)
		}
		res.outcome = OutcomeCreatedPrimary
		res.created = append(res.created, created)
		res.events = append(res.events, s.event(models.EventContactCreated, created.ID, created.ID))
		res.view = project([]models.Contact{created}, created)
		return res, nil
	}

	res.outcome = OutcomeUnchanged

	if state.Merge != nil {
		demoted, relinked, err := applyMerge(ctx, store, state)
		if err != nil {
			return res, err
		}
		res.outcome = OutcomeMerged
		res.demoted = demoted
		res.relinked = relinked
		res.events = append(res.events, s.event(models.EventClustersMerged, state.Primary.ID, demoted...))
	}

	created, err := linkSecondary(ctx, store, state, req.Email, req.PhoneNumber)
	if err != nil {
		return res, err
	}
	if created != nil {
		if res.outcome == OutcomeUnchanged {
			res.outcome = OutcomeLinkedSecondary
		}
		res.created = append(res.created, *created)
		res.events = append(res.events, s.event(models.EventContactLinked, state.Primary.ID, created.ID))
	}

	res.view = project(state.Members, state.Primary)
	return res, nil
}

func (s *ReconciliationService) event(t models.LinkEventType, primaryID int64, contactIDs ...int64) models.LinkEvent {
	return models.LinkEvent{
		Type:       t,
		PrimaryID:  primaryID,
		ContactIDs: contactIDs,
		OccurredAt: s.now(),
	}
}

// publish sends committed events. Failures are logged and counted; the
// writes they describe already happened.
func (s *ReconciliationService) publish(ctx context.Context, events []models.LinkEvent) {
	if s.publisher == nil {
		return
	}
	for _, e := range events {
		if err := s.publisher.Publish(ctx, e); err != nil {
			s.metrics.IncrementEventsDropped()
			s.logger.Warn("failed to publish link event",
				zap.String("type", string(e.Type)),
				zap.Int64("primary_id", e.PrimaryID),
				zap.Error(err),
			)
		}
	}
}
