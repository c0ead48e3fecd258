package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/repairhub/notify/internal/model"
	"github.com/repairhub/notify/internal/repository"
	"github.com/repairhub/notify/internal/repository/postgres"
	"github.com/repairhub/notify/internal/service/policy"
	"github.com/repairhub/notify/internal/service/template"
	apperrors "github.com/repairhub/notify/pkg/errors"
	"github.com/repairhub/notify/pkg/logger"
	"github.com/repairhub/notify/pkg/metrics"
	"github.com/repairhub/notify/pkg/queue"
)

// CreateRequest is the sole inbound unit of work: one domain event for one
// recipient. EventID is the caller-supplied idempotency key.
type CreateRequest struct {
	EventID           string
	Recipient         model.Recipient
	TemplateName      string
	Context           model.TemplateContext
	PriorityOverride  *model.Priority
	RelatedEntityType *string
	RelatedEntityID   *uuid.UUID
	ActionURL         *string
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*model.Notification, error)
	MarkRead(ctx context.Context, id uuid.UUID, recipient model.Recipient) error
	MarkAllRead(ctx context.Context, recipient model.Recipient) (int64, error)
	UnreadCount(ctx context.Context, recipient model.Recipient) (int64, error)
	List(ctx context.Context, recipient model.Recipient, filter model.ListFilter) ([]*model.Notification, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Notification, error)
	DeliveryHistory(ctx context.Context, notificationID uuid.UUID) ([]*model.DeliveryLog, error)
}

type service struct {
	repo      repository.NotificationRepository
	taskRepo  repository.DeliveryTaskRepository
	prefRepo  repository.PreferenceRepository
	logRepo   repository.DeliveryLogRepository
	resolver  *template.Resolver
	deliveryQ queue.Queue
	metrics   *metrics.Metrics
	logger    *logger.Logger
	now       func() time.Time
}

func NewService(
	repo repository.NotificationRepository,
	taskRepo repository.DeliveryTaskRepository,
	prefRepo repository.PreferenceRepository,
	logRepo repository.DeliveryLogRepository,
	resolver *template.Resolver,
	deliveryQ queue.Queue,
	m *metrics.Metrics,
	l *logger.Logger,
) Service {
	return &service{
		repo:      repo,
		taskRepo:  taskRepo,
		prefRepo:  prefRepo,
		logRepo:   logRepo,
		resolver:  resolver,
		deliveryQ: deliveryQ,
		metrics:   m,
		logger:    l,
		now:       time.Now,
	}
}

// WithClock overrides the service clock; quiet-hours decisions and
// timestamps follow it. Used by tests.
func (s *service) WithClock(now func() time.Time) *service {
	s.now = now
	return s
}

// Create renders the event, computes eligible channels and writes the
// notification row, its delivery tasks and suppression records in one
// transaction, then hands the tasks to the queue. A task row is deleted only
// after the queue accepts it, so an enqueue failure or a crash here leaves
// it for the relay. Template and context errors return without any writes.
// A repeated EventID is a no-op returning the existing row.
func (s *service) Create(ctx context.Context, req CreateRequest) (*model.Notification, error) {
	if err := s.validate(req); err != nil {
		s.metrics.CreationFailures.WithLabelValues("invalid_request").Inc()
		return nil, err
	}

	rendered, err := s.resolver.Resolve(ctx, req.TemplateName, req.Context)
	if err != nil {
		s.metrics.CreationFailures.WithLabelValues(failureReason(err)).Inc()
		s.logger.Warn("notification dropped at template resolution",
			"template", req.TemplateName, "event_id", req.EventID, "error", err.Error())
		return nil, err
	}

	if existing, err := s.repo.GetByEventID(ctx, req.EventID, req.Recipient); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	priority := rendered.Template.DefaultPriority
	if req.PriorityOverride != nil {
		priority = *req.PriorityOverride
	}

	pref, err := s.prefRepo.Get(ctx, req.Recipient)
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}

	eligible, suppressed := policy.Eligible(pref, priority, s.now())

	now := s.now()
	n := &model.Notification{
		ID:                uuid.New(),
		EventID:           req.EventID,
		RecipientType:     req.Recipient.Type,
		RecipientID:       req.Recipient.ID,
		Title:             rendered.Title,
		Message:           rendered.Message,
		Category:          rendered.Template.Category,
		Priority:          priority,
		RelatedEntityType: req.RelatedEntityType,
		RelatedEntityID:   req.RelatedEntityID,
		ActionURL:         req.ActionURL,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	tasks, err := s.buildTasks(n, rendered, pref, eligible)
	if err != nil {
		s.metrics.CreationFailures.WithLabelValues("render_failed").Inc()
		return nil, err
	}

	err = s.repo.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.repo.CreateTx(ctx, tx, n); err != nil {
			return err
		}
		for _, task := range tasks {
			if err := s.taskRepo.CreateTx(ctx, tx, task); err != nil {
				return err
			}
		}
		for _, sup := range suppressed {
			entry := &model.DeliveryLog{
				NotificationID:   n.ID,
				Channel:          sup.Channel,
				Status:           model.DeliveryStatusOptedOut,
				Destination:      pref.Destination(sup.Channel),
				ProviderResponse: strPtr(sup.Reason),
				CreatedAt:        now,
			}
			if err := s.logRepo.AppendTx(ctx, tx, entry); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, postgres.ErrDuplicateEvent) {
		// Raced with a concurrent call holding the same idempotency key.
		return s.repo.GetByEventID(ctx, req.EventID, req.Recipient)
	}
	if err != nil {
		return nil, err
	}

	s.metrics.NotificationsCreated.WithLabelValues(string(priority), string(n.Category)).Inc()
	for _, sup := range suppressed {
		s.metrics.ChannelSuppressed.WithLabelValues(string(sup.Channel), sup.Reason).Inc()
	}

	// Fast-path handoff. Tasks are already durable in the outbox; a failure
	// here leaves the row for the relay, never an error to the caller.
	for _, task := range tasks {
		if err := s.deliveryQ.Enqueue(ctx, task); err != nil {
			s.metrics.DeliveryFailure.WithLabelValues(string(task.Channel), "enqueue_failed").Inc()
			s.logger.Warn("enqueue failed, task left to the relay",
				"notification_id", n.ID.String(), "channel", string(task.Channel), "error", err.Error())
			continue
		}
		if err := s.taskRepo.Delete(ctx, task.ID); err != nil {
			// Worst case the relay enqueues it again; delivery is
			// at-least-once.
			s.logger.Error(err, "failed to delete handed-off task",
				"notification_id", n.ID.String(), "channel", string(task.Channel))
		}
	}

	return n, nil
}

// buildTasks renders channel content lazily: only channels that survived the
// policy/preference intersection pay the rendering cost.
func (s *service) buildTasks(
	n *model.Notification,
	rendered *template.Rendered,
	pref *model.NotificationPreference,
	eligible []model.Channel,
) ([]*model.DeliveryTask, error) {
	now := s.now()
	var tasks []*model.DeliveryTask
	for _, ch := range eligible {
		if ch == model.ChannelInApp {
			// In-app delivery is the row itself; no task needed.
			continue
		}

		var subject, body string
		var err error
		switch ch {
		case model.ChannelEmail:
			subject, body, err = rendered.EmailContent()
		case model.ChannelSMS:
			body, err = rendered.SMSContent()
		}
		if err != nil {
			return nil, err
		}

		tasks = append(tasks, &model.DeliveryTask{
			ID:             uuid.New(),
			NotificationID: n.ID,
			Channel:        ch,
			RecipientType:  n.RecipientType,
			RecipientID:    n.RecipientID,
			Destination:    pref.Destination(ch),
			Subject:        subject,
			Body:           body,
			Attempt:        1,
			NotBefore:      now,
			EnqueuedAt:     now,
		})
	}
	return tasks, nil
}

func (s *service) MarkRead(ctx context.Context, id uuid.UUID, recipient model.Recipient) error {
	return s.repo.MarkRead(ctx, id, recipient)
}

func (s *service) MarkAllRead(ctx context.Context, recipient model.Recipient) (int64, error) {
	return s.repo.MarkAllRead(ctx, recipient)
}

func (s *service) UnreadCount(ctx context.Context, recipient model.Recipient) (int64, error) {
	return s.repo.UnreadCount(ctx, recipient)
}

func (s *service) List(ctx context.Context, recipient model.Recipient, filter model.ListFilter) ([]*model.Notification, error) {
	return s.repo.List(ctx, recipient, filter)
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	return s.repo.Get(ctx, id)
}

func (s *service) DeliveryHistory(ctx context.Context, notificationID uuid.UUID) ([]*model.DeliveryLog, error) {
	return s.logRepo.ListByNotification(ctx, notificationID)
}

func (s *service) validate(req CreateRequest) error {
	if req.EventID == "" {
		return apperrors.NewBadRequest("event_id is required", nil)
	}
	if req.Recipient.ID == uuid.Nil {
		return apperrors.NewBadRequest("recipient id is required", nil)
	}
	if req.Recipient.Type == "" {
		return apperrors.NewBadRequest("recipient type is required", nil)
	}
	if req.TemplateName == "" {
		return apperrors.NewBadRequest("template name is required", nil)
	}
	if req.PriorityOverride != nil && !req.PriorityOverride.Valid() {
		return apperrors.NewBadRequest(fmt.Sprintf("invalid priority %q", *req.PriorityOverride), nil)
	}
	return nil
}

func failureReason(err error) string {
	switch apperrors.Code(err) {
	case apperrors.ErrTemplateNotFound:
		return "template_not_found"
	case apperrors.ErrTemplateInactive:
		return "template_inactive"
	case apperrors.ErrMissingContext:
		return "missing_context"
	}
	return "internal"
}

func strPtr(s string) *string { return &s }
