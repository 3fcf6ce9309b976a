package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bookon/bookon-api/internal/models"
	"github.com/bookon/bookon-api/internal/repository"
	appErrors "github.com/bookon/bookon-api/pkg/errors"
	"github.com/bookon/bookon-api/pkg/forms"
	"github.com/bookon/bookon-api/pkg/jobs"
	"github.com/bookon/bookon-api/pkg/lifecycle"
	"github.com/bookon/bookon-api/pkg/notify"
	"github.com/bookon/bookon-api/pkg/richtext"
)

const (
	broadcastResource = "broadcasts"
	// DeliveryJobType tags queue jobs produced by the broadcast service.
	DeliveryJobType = "broadcast.deliver"
	dueBatchLimit   = 50
)

type broadcastRepository interface {
	List(ctx context.Context, filter models.BroadcastFilter) ([]models.Broadcast, int, error)
	Stats(ctx context.Context, filter models.BroadcastFilter) (models.StatusStats, error)
	FindByID(ctx context.Context, id string) (*models.Broadcast, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.Broadcast, error)
	Create(ctx context.Context, b *models.Broadcast) error
	Update(ctx context.Context, b *models.Broadcast) error
	UpdateStatus(ctx context.Context, id, from, to string) error
	SetSchedule(ctx context.Context, id string, at *time.Time) error
	StartDelivery(ctx context.Context, id string, recipients int) error
	SaveProgress(ctx context.Context, p models.DeliveryProgress) error
	Delete(ctx context.Context, id string) error
}

type audienceResolver interface {
	Count(ctx context.Context, a models.Audience) (int, error)
	Recipients(ctx context.Context, a models.Audience, offset, limit int) ([]models.Recipient, error)
}

type notificationWriter interface {
	CreateMany(ctx context.Context, items []models.Notification) error
}

type senderResolver interface {
	For(channel string) (notify.Sender, error)
}

type jobDispatcher interface {
	TryEnqueue(job jobs.Job) error
}

// DeliveryJob is the payload of a broadcast delivery job: send the batch
// starting at Offset.
type DeliveryJob struct {
	BroadcastID string
	Offset      int
}

// BroadcastConfig tunes delivery.
type BroadcastConfig struct {
	BatchSize int
	Location  *time.Location
	Now       func() time.Time
}

// TransitionOptions carries the extra input some broadcast actions need.
type TransitionOptions struct {
	ScheduledFor string `json:"scheduledFor"`
}

// BroadcastService manages broadcasts and drives their delivery.
type BroadcastService struct {
	repo          broadcastRepository
	audience      audienceResolver
	notifications notificationWriter
	templates     templateReader
	senders       senderResolver
	validator     *forms.Validator
	renderer      *richtext.Renderer
	cache         *CacheService
	metrics       *MetricsService
	logger        *zap.Logger
	cfg           BroadcastConfig

	mu    sync.RWMutex
	queue jobDispatcher
}

// NewBroadcastService constructs a BroadcastService. The delivery queue is
// attached afterwards with UseQueue since the queue's handler is Deliver.
func NewBroadcastService(repo broadcastRepository, audience audienceResolver, notifications notificationWriter, templates templateReader, senders senderResolver, validate *forms.Validator, cache *CacheService, metrics *MetricsService, logger *zap.Logger, cfg BroadcastConfig) *BroadcastService {
	if validate == nil {
		validate = forms.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &BroadcastService{
		repo:          repo,
		audience:      audience,
		notifications: notifications,
		templates:     templates,
		senders:       senders,
		validator:     validate,
		renderer:      richtext.New(),
		cache:         cache,
		metrics:       metrics,
		logger:        logger,
		cfg:           cfg,
	}
}

// UseQueue attaches the delivery queue.
func (s *BroadcastService) UseQueue(queue jobDispatcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = queue
}

// List returns broadcasts with status counts.
func (s *BroadcastService) List(ctx context.Context, actor Actor, filter models.BroadcastFilter) (*ListResult[models.Broadcast], error) {
	filter.OwnerID = actor.scope()
	return cachedList(ctx, s.cache, broadcastResource, filter, func() (*ListResult[models.Broadcast], error) {
		items, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, internalError(err, "failed to list broadcasts")
		}
		stats, err := s.repo.Stats(ctx, filter)
		if err != nil {
			return nil, internalError(err, "failed to count broadcasts")
		}
		return &ListResult[models.Broadcast]{Items: items, Pagination: filter.Paginate(total), Stats: stats}, nil
	})
}

// Get returns a broadcast the actor can access.
func (s *BroadcastService) Get(ctx context.Context, actor Actor, id string) (*models.Broadcast, error) {
	b, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "broadcast")
	}
	if !actor.canAccess(b.CreatedBy) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "broadcast not found")
	}
	return b, nil
}

// PreviewAudience counts the recipients an audience resolves to.
func (s *BroadcastService) PreviewAudience(ctx context.Context, audience models.Audience) (*models.AudiencePreview, error) {
	if err := s.validator.Engine().Struct(audience); err != nil {
		return nil, fieldError("audienceType", "Choose who should receive this broadcast")
	}
	if audience.Type != forms.AudienceAllParents && len(trimAll(audience.IDs)) == 0 {
		return nil, fieldError("audienceIds", "Select at least one recipient group")
	}
	count, err := s.audience.Count(ctx, audience)
	if err != nil {
		return nil, internalError(err, "failed to resolve audience")
	}
	return &models.AudiencePreview{Count: count}, nil
}

// Create stores a broadcast and either starts sending it or schedules it.
func (s *BroadcastService) Create(ctx context.Context, actor Actor, form forms.BroadcastForm) (*models.Broadcast, error) {
	b := &models.Broadcast{Status: lifecycle.BroadcastDraft, CreatedBy: actor.UserID}
	at, err := s.apply(ctx, b, form)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, b); err != nil {
		return nil, internalError(err, "failed to create broadcast")
	}
	invalidateList(ctx, s.cache, broadcastResource)
	return s.dispatch(ctx, b, form.SendNow, at)
}

// Update edits a draft or scheduled broadcast, then sends or (re)schedules it.
func (s *BroadcastService) Update(ctx context.Context, actor Actor, id string, form forms.BroadcastForm) (*models.Broadcast, error) {
	b, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if b.Status != lifecycle.BroadcastDraft && b.Status != lifecycle.BroadcastScheduled {
		return nil, preconditionFailed("only draft or scheduled broadcasts can be edited")
	}
	at, err := s.apply(ctx, b, form)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, b); err != nil {
		return nil, internalError(err, "failed to update broadcast")
	}
	invalidateList(ctx, s.cache, broadcastResource)
	return s.dispatch(ctx, b, form.SendNow, at)
}

// Transition applies schedule, unschedule, send, pause or resume.
func (s *BroadcastService) Transition(ctx context.Context, actor Actor, id, action string, opts TransitionOptions) (*models.Broadcast, error) {
	b, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	next, err := resolveAction(lifecycle.KindBroadcast, b.Status, action)
	if err != nil {
		return nil, err
	}

	switch action {
	case lifecycle.ActionSchedule:
		at := b.ScheduledFor
		if strings.TrimSpace(opts.ScheduledFor) != "" {
			parsed, err := s.parseSchedule(opts.ScheduledFor)
			if err != nil {
				return nil, err
			}
			at = &parsed
		}
		if at == nil {
			return nil, fieldError("scheduledFor", forms.MsgSendChoice)
		}
		return s.schedule(ctx, b, *at)
	case lifecycle.ActionSend:
		return s.startSending(ctx, b)
	}

	if err := s.repo.UpdateStatus(ctx, b.ID, b.Status, next); err != nil {
		return nil, statusUpdateError(err, "broadcast")
	}
	s.metrics.RecordTransition(string(lifecycle.KindBroadcast), action)
	invalidateList(ctx, s.cache, broadcastResource)
	b.Status = next

	if action == lifecycle.ActionResume {
		if err := s.enqueue(DeliveryJob{BroadcastID: b.ID, Offset: b.DeliveredOffset}); err != nil {
			s.rollback(ctx, b, lifecycle.BroadcastPaused)
			return nil, err
		}
	}
	return b, nil
}

// Delete removes a broadcast that has not started sending.
func (s *BroadcastService) Delete(ctx context.Context, actor Actor, id string) error {
	b, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if b.Status != lifecycle.BroadcastDraft && b.Status != lifecycle.BroadcastScheduled {
		return preconditionFailed("only draft or scheduled broadcasts can be deleted")
	}
	if err := s.repo.Delete(ctx, b.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "broadcast not found")
		}
		return internalError(err, "failed to delete broadcast")
	}
	invalidateList(ctx, s.cache, broadcastResource)
	return nil
}

// DispatchDue promotes every scheduled broadcast whose send time has passed
// and returns how many started sending.
func (s *BroadcastService) DispatchDue(ctx context.Context) (int, error) {
	due, err := s.repo.ListDue(ctx, s.cfg.Now().UTC(), dueBatchLimit)
	if err != nil {
		return 0, internalError(err, "failed to list due broadcasts")
	}
	started := 0
	for i := range due {
		if _, err := s.startSending(ctx, &due[i]); err != nil {
			if errors.Is(err, appErrors.ErrConflict) {
				continue
			}
			s.logger.Error("failed to dispatch scheduled broadcast", zap.String("broadcast_id", due[i].ID), zap.Error(err))
			continue
		}
		started++
	}
	s.metrics.RecordDispatched(started)
	return started, nil
}

// RunDispatcher calls DispatchDue every interval until ctx is cancelled.
func (s *BroadcastService) RunDispatcher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.DispatchDue(ctx); err != nil {
				s.logger.Warn("broadcast dispatcher run failed", zap.Error(err))
			} else if n > 0 {
				s.logger.Info("scheduled broadcasts started", zap.Int("count", n))
			}
		}
	}
}

// Deliver is the queue handler. It sends the audience batch by batch,
// records progress after each one and re-reads the broadcast in between so a
// pause stops delivery at the next batch boundary.
func (s *BroadcastService) Deliver(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(DeliveryJob)
	if !ok {
		s.logger.Error("unexpected delivery payload", zap.String("job_id", job.ID))
		return jobs.ErrSkip
	}
	offset := payload.Offset
	for {
		b, err := s.repo.FindByID(ctx, payload.BroadcastID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return jobs.ErrSkip
			}
			return fmt.Errorf("load broadcast: %w", err)
		}
		// paused, finished or deleted in the meantime
		if b.Status != lifecycle.BroadcastSending {
			return jobs.ErrSkip
		}
		if b.DeliveredOffset > offset {
			offset = b.DeliveredOffset
		}

		audience := models.Audience{Type: b.AudienceType, IDs: b.AudienceIDs}
		recipients, err := s.audience.Recipients(ctx, audience, offset, s.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("resolve recipients: %w", err)
		}

		sent, failed, lastErr := s.sendBatch(ctx, b, recipients)
		if sent == 0 && failed > 0 {
			return fmt.Errorf("every message in batch failed: %s", lastErr)
		}

		progress := models.DeliveryProgress{BroadcastID: b.ID, Offset: offset + len(recipients), Sent: sent, Failed: failed}
		if lastErr != "" {
			progress.LastError = &lastErr
		}
		if err := s.repo.SaveProgress(ctx, progress); err != nil {
			return fmt.Errorf("save progress: %w", err)
		}

		if len(recipients) < s.cfg.BatchSize {
			action := lifecycle.ActionComplete
			if b.SentCount+sent == 0 && b.FailedCount+failed > 0 {
				action = lifecycle.ActionFail
			}
			return s.finish(ctx, b, action)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		offset = progress.Offset
	}
}

// FailDelivery is the queue's dead-letter hook: a batch that kept failing
// fails the whole broadcast.
func (s *BroadcastService) FailDelivery(ctx context.Context, job jobs.Job, cause error) {
	s.metrics.RecordDeadLetter()
	payload, ok := job.Payload.(DeliveryJob)
	if !ok {
		return
	}
	b, err := s.repo.FindByID(ctx, payload.BroadcastID)
	if err != nil {
		s.logger.Error("failed to load broadcast for dead letter", zap.String("broadcast_id", payload.BroadcastID), zap.Error(err))
		return
	}
	msg := cause.Error()
	if err := s.repo.SaveProgress(ctx, models.DeliveryProgress{BroadcastID: b.ID, Offset: b.DeliveredOffset, LastError: &msg}); err != nil {
		s.logger.Warn("failed to record delivery error", zap.String("broadcast_id", b.ID), zap.Error(err))
	}
	if b.Status != lifecycle.BroadcastSending && b.Status != lifecycle.BroadcastPaused {
		return
	}
	if err := s.finish(ctx, b, lifecycle.ActionFail); err != nil {
		s.logger.Error("failed to mark broadcast failed", zap.String("broadcast_id", b.ID), zap.Error(err))
	}
}

func (s *BroadcastService) finish(ctx context.Context, b *models.Broadcast, action string) error {
	next, err := lifecycle.Next(lifecycle.KindBroadcast, b.Status, action)
	if err != nil {
		return jobs.ErrSkip
	}
	if err := s.repo.UpdateStatus(ctx, b.ID, b.Status, next); err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			// paused while the last batch was in flight; resume finishes it
			return nil
		}
		return fmt.Errorf("finish broadcast: %w", err)
	}
	s.metrics.RecordTransition(string(lifecycle.KindBroadcast), action)
	invalidateList(ctx, s.cache, broadcastResource)

	title := fmt.Sprintf("Broadcast %q sent", b.Name)
	if next == lifecycle.BroadcastFailed {
		title = fmt.Sprintf("Broadcast %q failed", b.Name)
	}
	link := "/communications/broadcasts/" + b.ID
	if err := s.notifications.CreateMany(ctx, []models.Notification{{UserID: b.CreatedBy, Title: title, Body: b.Subject, Link: &link}}); err != nil {
		s.logger.Warn("failed to notify broadcast owner", zap.String("broadcast_id", b.ID), zap.Error(err))
	}
	return nil
}

func (s *BroadcastService) sendBatch(ctx context.Context, b *models.Broadcast, recipients []models.Recipient) (sent, failed int, lastErr string) {
	for _, channel := range b.Channels {
		if channel == forms.ChannelPush {
			n, err := s.pushBatch(ctx, b, recipients)
			if err != nil {
				failed += len(recipients)
				lastErr = err.Error()
				s.metrics.RecordDelivery(channel, false, len(recipients))
				continue
			}
			sent += n
			s.metrics.RecordDelivery(channel, true, n)
			continue
		}

		sender, err := s.senders.For(channel)
		if err != nil {
			failed += len(recipients)
			lastErr = err.Error()
			s.metrics.RecordDelivery(channel, false, len(recipients))
			continue
		}
		ok, bad := 0, 0
		for _, r := range recipients {
			to := r.Email
			if channel == forms.ChannelSMS {
				if r.Phone == nil || *r.Phone == "" {
					continue
				}
				to = *r.Phone
			}
			values := mergeValues(r)
			msg := notify.Message{
				To:      to,
				Name:    r.FullName,
				Subject: richtext.Personalize(b.Subject, values),
				HTML:    richtext.Personalize(b.BodyHTML, values),
				Text:    richtext.Personalize(b.Body, values),
			}
			if _, err := sender.Send(ctx, msg); err != nil {
				bad++
				lastErr = err.Error()
				s.logger.Warn("broadcast message failed", zap.String("broadcast_id", b.ID), zap.String("channel", channel), zap.Error(err))
				continue
			}
			ok++
		}
		sent += ok
		failed += bad
		s.metrics.RecordDelivery(channel, true, ok)
		s.metrics.RecordDelivery(channel, false, bad)
	}
	return sent, failed, lastErr
}

func (s *BroadcastService) pushBatch(ctx context.Context, b *models.Broadcast, recipients []models.Recipient) (int, error) {
	if len(recipients) == 0 {
		return 0, nil
	}
	items := make([]models.Notification, 0, len(recipients))
	for _, r := range recipients {
		values := mergeValues(r)
		items = append(items, models.Notification{
			UserID: r.UserID,
			Title:  richtext.Personalize(b.Subject, values),
			Body:   richtext.Personalize(b.Body, values),
		})
	}
	if err := s.notifications.CreateMany(ctx, items); err != nil {
		return 0, fmt.Errorf("create push notifications: %w", err)
	}
	return len(items), nil
}

func mergeValues(r models.Recipient) map[string]string {
	first := r.FullName
	if fields := strings.Fields(r.FullName); len(fields) > 0 {
		first = fields[0]
	}
	return map[string]string{
		"first_name": first,
		"full_name":  r.FullName,
		"name":       r.FullName,
		"email":      r.Email,
	}
}

// dispatch sends or schedules a freshly saved broadcast.
func (s *BroadcastService) dispatch(ctx context.Context, b *models.Broadcast, sendNow bool, at *time.Time) (*models.Broadcast, error) {
	if sendNow {
		return s.startSending(ctx, b)
	}
	if at == nil {
		return b, nil
	}
	return s.schedule(ctx, b, *at)
}

func (s *BroadcastService) schedule(ctx context.Context, b *models.Broadcast, at time.Time) (*models.Broadcast, error) {
	if !at.After(s.cfg.Now()) {
		return nil, fieldError("scheduledFor", "Send time must be in the future")
	}
	if err := s.repo.SetSchedule(ctx, b.ID, &at); err != nil {
		return nil, internalError(err, "failed to schedule broadcast")
	}
	b.ScheduledFor = &at
	if b.Status != lifecycle.BroadcastScheduled {
		next, err := resolveAction(lifecycle.KindBroadcast, b.Status, lifecycle.ActionSchedule)
		if err != nil {
			return nil, err
		}
		if err := s.repo.UpdateStatus(ctx, b.ID, b.Status, next); err != nil {
			return nil, statusUpdateError(err, "broadcast")
		}
		s.metrics.RecordTransition(string(lifecycle.KindBroadcast), lifecycle.ActionSchedule)
		b.Status = next
	}
	invalidateList(ctx, s.cache, broadcastResource)
	return b, nil
}

func (s *BroadcastService) startSending(ctx context.Context, b *models.Broadcast) (*models.Broadcast, error) {
	next, err := resolveAction(lifecycle.KindBroadcast, b.Status, lifecycle.ActionSend)
	if err != nil {
		return nil, err
	}
	count, err := s.audience.Count(ctx, models.Audience{Type: b.AudienceType, IDs: b.AudienceIDs})
	if err != nil {
		return nil, internalError(err, "failed to resolve audience")
	}
	if err := s.repo.UpdateStatus(ctx, b.ID, b.Status, next); err != nil {
		return nil, statusUpdateError(err, "broadcast")
	}
	if err := s.repo.StartDelivery(ctx, b.ID, count); err != nil {
		return nil, internalError(err, "failed to start delivery")
	}
	s.metrics.RecordTransition(string(lifecycle.KindBroadcast), lifecycle.ActionSend)
	invalidateList(ctx, s.cache, broadcastResource)

	previous := b.Status
	b.Status = next
	b.RecipientCount = count
	b.SentCount, b.FailedCount, b.DeliveredOffset = 0, 0, 0
	b.LastError = nil
	if err := s.enqueue(DeliveryJob{BroadcastID: b.ID}); err != nil {
		s.rollback(ctx, b, previous)
		return nil, err
	}
	return b, nil
}

// rollback returns a broadcast whose delivery job could not be queued to the
// status it had before, so it is never left sending with no worker behind it.
func (s *BroadcastService) rollback(ctx context.Context, b *models.Broadcast, to string) {
	if err := s.repo.UpdateStatus(ctx, b.ID, b.Status, to); err != nil {
		s.logger.Error("failed to roll back broadcast status",
			zap.String("broadcast_id", b.ID), zap.String("status", to), zap.Error(err))
		return
	}
	b.Status = to
	invalidateList(ctx, s.cache, broadcastResource)
}

func (s *BroadcastService) enqueue(payload DeliveryJob) error {
	s.mu.RLock()
	queue := s.queue
	s.mu.RUnlock()
	if queue == nil {
		return appErrors.Clone(appErrors.ErrInternal, "delivery queue is not running")
	}
	job := jobs.Job{ID: payload.BroadcastID, Type: DeliveryJobType, Payload: payload, Enqueued: time.Now().UTC()}
	if err := queue.TryEnqueue(job); err != nil {
		if errors.Is(err, jobs.ErrQueueFull) {
			return appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "delivery queue is busy, try again shortly")
		}
		return internalError(err, "failed to enqueue broadcast delivery")
	}
	return nil
}

// apply validates form and copies it onto b, returning the parsed send time.
func (s *BroadcastService) apply(ctx context.Context, b *models.Broadcast, form forms.BroadcastForm) (*time.Time, error) {
	if errs := s.validator.Struct(form); !errs.Valid() {
		return nil, invalidForm("broadcast", errs)
	}
	var at *time.Time
	if !form.SendNow {
		parsed, err := s.parseSchedule(form.ScheduledFor)
		if err != nil {
			return nil, err
		}
		if !parsed.After(s.cfg.Now()) {
			return nil, fieldError("scheduledFor", "Send time must be in the future")
		}
		at = &parsed
	}

	b.TemplateID = nil
	if id := strings.TrimSpace(form.TemplateID); id != "" {
		tpl, err := s.templates.FindByID(ctx, id)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return nil, internalError(err, "failed to load template")
			}
			return nil, fieldError("templateId", "Selected template does not exist")
		}
		if tpl.Status != lifecycle.TemplateActive {
			return nil, fieldError("templateId", "Selected template is not active")
		}
		b.TemplateID = &tpl.ID
	}

	html, err := s.renderer.HTML(form.Body)
	if err != nil {
		return nil, fieldError("body", "Message content could not be rendered")
	}
	b.Name = strings.TrimSpace(form.Name)
	b.Subject = strings.TrimSpace(form.Subject)
	b.Body = form.Body
	b.BodyHTML = html
	b.Channels = trimAll(form.Channels)
	b.AudienceType = form.AudienceType
	b.AudienceIDs = nil
	if form.AudienceType != forms.AudienceAllParents {
		b.AudienceIDs = trimAll(form.AudienceIDs)
	}
	return at, nil
}

func (s *BroadcastService) parseSchedule(raw string) (time.Time, error) {
	at, err := forms.ParseSchedule(raw, s.cfg.Location)
	if err != nil {
		return time.Time{}, fieldError("scheduledFor", "Send time must look like 2025-01-01T10:00")
	}
	return at.UTC(), nil
}
