package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookon/bookon-api/internal/models"
	"github.com/bookon/bookon-api/internal/repository"
	appErrors "github.com/bookon/bookon-api/pkg/errors"
	"github.com/bookon/bookon-api/pkg/forms"
	"github.com/bookon/bookon-api/pkg/jobs"
	"github.com/bookon/bookon-api/pkg/lifecycle"
	"github.com/bookon/bookon-api/pkg/notify"
)

var broadcastNow = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

type mockBroadcastRepo struct {
	items map[string]*models.Broadcast
}

func newMockBroadcastRepo(items ...*models.Broadcast) *mockBroadcastRepo {
	repo := &mockBroadcastRepo{items: map[string]*models.Broadcast{}}
	for _, b := range items {
		repo.items[b.ID] = b
	}
	return repo
}

func (m *mockBroadcastRepo) List(ctx context.Context, filter models.BroadcastFilter) ([]models.Broadcast, int, error) {
	var out []models.Broadcast
	for _, b := range m.items {
		out = append(out, *b)
	}
	return out, len(out), nil
}

func (m *mockBroadcastRepo) Stats(ctx context.Context, filter models.BroadcastFilter) (models.StatusStats, error) {
	return models.StatusStats{}, nil
}

func (m *mockBroadcastRepo) FindByID(ctx context.Context, id string) (*models.Broadcast, error) {
	b, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *b
	return &cp, nil
}

func (m *mockBroadcastRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]models.Broadcast, error) {
	var out []models.Broadcast
	for _, b := range m.items {
		if b.Status == lifecycle.BroadcastScheduled && b.ScheduledFor != nil && !b.ScheduledFor.After(now) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *mockBroadcastRepo) Create(ctx context.Context, b *models.Broadcast) error {
	b.ID = "bc-new"
	cp := *b
	m.items[b.ID] = &cp
	return nil
}

func (m *mockBroadcastRepo) Update(ctx context.Context, b *models.Broadcast) error {
	cp := *b
	m.items[b.ID] = &cp
	return nil
}

func (m *mockBroadcastRepo) UpdateStatus(ctx context.Context, id, from, to string) error {
	b, ok := m.items[id]
	if !ok || b.Status != from {
		return repository.ErrStaleStatus
	}
	b.Status = to
	return nil
}

func (m *mockBroadcastRepo) SetSchedule(ctx context.Context, id string, at *time.Time) error {
	m.items[id].ScheduledFor = at
	return nil
}

func (m *mockBroadcastRepo) StartDelivery(ctx context.Context, id string, recipients int) error {
	b := m.items[id]
	b.RecipientCount = recipients
	b.SentCount, b.FailedCount, b.DeliveredOffset = 0, 0, 0
	return nil
}

func (m *mockBroadcastRepo) SaveProgress(ctx context.Context, p models.DeliveryProgress) error {
	b := m.items[p.BroadcastID]
	b.SentCount += p.Sent
	b.FailedCount += p.Failed
	b.DeliveredOffset = p.Offset
	if p.LastError != nil {
		b.LastError = p.LastError
	}
	return nil
}

func (m *mockBroadcastRepo) Delete(ctx context.Context, id string) error {
	delete(m.items, id)
	return nil
}

type mockAudience struct {
	recipients []models.Recipient
}

func (m *mockAudience) Count(ctx context.Context, a models.Audience) (int, error) {
	return len(m.recipients), nil
}

func (m *mockAudience) Recipients(ctx context.Context, a models.Audience, offset, limit int) ([]models.Recipient, error) {
	if offset >= len(m.recipients) {
		return nil, nil
	}
	end := offset + limit
	if end > len(m.recipients) {
		end = len(m.recipients)
	}
	return m.recipients[offset:end], nil
}

type mockNotificationWriter struct {
	created []models.Notification
}

func (m *mockNotificationWriter) CreateMany(ctx context.Context, items []models.Notification) error {
	m.created = append(m.created, items...)
	return nil
}

type recordingSender struct {
	sent []notify.Message
	err  error
}

func (s *recordingSender) Send(ctx context.Context, msg notify.Message) (notify.Result, error) {
	if s.err != nil {
		return notify.Result{}, s.err
	}
	s.sent = append(s.sent, msg)
	return notify.Result{MessageID: "msg", SentAt: broadcastNow}, nil
}

type mockQueue struct {
	jobs []jobs.Job
	err  error
}

func (q *mockQueue) TryEnqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *mockQueue) last(t *testing.T) DeliveryJob {
	t.Helper()
	require.NotEmpty(t, q.jobs)
	return q.jobs[len(q.jobs)-1].Payload.(DeliveryJob)
}

type broadcastFixture struct {
	svc           *BroadcastService
	repo          *mockBroadcastRepo
	email         *recordingSender
	sms           *recordingSender
	notifications *mockNotificationWriter
	queue         *mockQueue
}

func newBroadcastFixture(items ...*models.Broadcast) *broadcastFixture {
	phone := "+447700900001"
	f := &broadcastFixture{
		repo:          newMockBroadcastRepo(items...),
		email:         &recordingSender{},
		sms:           &recordingSender{},
		notifications: &mockNotificationWriter{},
		queue:         &mockQueue{},
	}
	audience := &mockAudience{recipients: []models.Recipient{
		{UserID: "p1", Email: "amy@example.com", FullName: "Amy Pond", Phone: &phone},
		{UserID: "p2", Email: "rory@example.com", FullName: "Rory Williams"},
		{UserID: "p3", Email: "clara@example.com", FullName: "Clara Oswald"},
	}}
	router := notify.NewRouter(nil).Handle(forms.ChannelEmail, f.email).Handle(forms.ChannelSMS, f.sms)
	f.svc = NewBroadcastService(f.repo, audience, f.notifications, newMockTemplateRepo(welcomeTemplate()), router, nil, nil, nil, nil, BroadcastConfig{
		BatchSize: 2,
		Location:  time.UTC,
		Now:       func() time.Time { return broadcastNow },
	})
	f.svc.UseQueue(f.queue)
	return f
}

func sendingBroadcast(status string) *models.Broadcast {
	return &models.Broadcast{
		ID: "bc-1", Name: "Term dates", Subject: "Hello {{first_name}}", Body: "Term starts Monday",
		Channels: []string{forms.ChannelEmail}, AudienceType: forms.AudienceAllParents,
		Status: status, CreatedBy: business.UserID,
	}
}

func validBroadcastForm() forms.BroadcastForm {
	return forms.BroadcastForm{
		Name: "Term dates", Subject: "Hello {{first_name}}", Body: "Term starts **Monday**",
		Channels: []string{forms.ChannelEmail}, AudienceType: forms.AudienceAllParents,
	}
}

func TestBroadcastServiceCreateRequiresSendChoice(t *testing.T) {
	f := newBroadcastFixture()

	_, err := f.svc.Create(context.Background(), business, validBroadcastForm())
	appErr := assertCode(t, appErrors.ErrValidation, err)
	assert.Equal(t, forms.MsgSendChoice, appErr.Fields["scheduledFor"])
	assert.Empty(t, f.repo.items)
}

func TestBroadcastServiceCreateScheduled(t *testing.T) {
	f := newBroadcastFixture()
	form := validBroadcastForm()
	form.ScheduledFor = "2025-01-01T10:00"

	b, err := f.svc.Create(context.Background(), business, form)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.BroadcastScheduled, b.Status)
	require.NotNil(t, b.ScheduledFor)
	assert.Equal(t, time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC), *b.ScheduledFor)
	assert.Contains(t, b.BodyHTML, "<strong>Monday</strong>")
	assert.Equal(t, lifecycle.BroadcastScheduled, f.repo.items["bc-new"].Status)
	assert.Empty(t, f.queue.jobs)

	form.ScheduledFor = "2025-01-01T08:00"
	_, err = f.svc.Create(context.Background(), business, form)
	appErr := assertCode(t, appErrors.ErrValidation, err)
	assert.Equal(t, "Send time must be in the future", appErr.Fields["scheduledFor"])
}

func TestBroadcastServiceSendNowEnqueuesDelivery(t *testing.T) {
	f := newBroadcastFixture()
	form := validBroadcastForm()
	form.SendNow = true

	b, err := f.svc.Create(context.Background(), business, form)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.BroadcastSending, b.Status)
	assert.Equal(t, 3, b.RecipientCount)
	require.Len(t, f.queue.jobs, 1)
	assert.Equal(t, DeliveryJobType, f.queue.jobs[0].Type)
	assert.Equal(t, DeliveryJob{BroadcastID: "bc-new"}, f.queue.last(t))
}

func TestBroadcastServiceDeliverBatchesUntilComplete(t *testing.T) {
	f := newBroadcastFixture(sendingBroadcast(lifecycle.BroadcastSending))

	require.NoError(t, f.svc.Deliver(context.Background(), jobs.Job{Payload: DeliveryJob{BroadcastID: "bc-1"}}))
	require.Len(t, f.email.sent, 3)
	assert.Equal(t, "Hello Amy", f.email.sent[0].Subject)
	assert.Empty(t, f.queue.jobs)

	stored := f.repo.items["bc-1"]
	assert.Equal(t, lifecycle.BroadcastSent, stored.Status)
	assert.Equal(t, 3, stored.SentCount)
	assert.Equal(t, 3, stored.DeliveredOffset)

	require.Len(t, f.notifications.created, 1)
	owner := f.notifications.created[0]
	assert.Equal(t, business.UserID, owner.UserID)
	assert.Equal(t, `Broadcast "Term dates" sent`, owner.Title)
	require.NotNil(t, owner.Link)
	assert.Equal(t, "/communications/broadcasts/bc-1", *owner.Link)
}

type pausingSender struct {
	repo *mockBroadcastRepo
	sent int
}

func (s *pausingSender) Send(ctx context.Context, msg notify.Message) (notify.Result, error) {
	s.sent++
	s.repo.items["bc-1"].Status = lifecycle.BroadcastPaused
	return notify.Result{MessageID: "msg"}, nil
}

func TestBroadcastServiceDeliverStopsAtBatchBoundaryWhenPaused(t *testing.T) {
	f := newBroadcastFixture(sendingBroadcast(lifecycle.BroadcastSending))
	sender := &pausingSender{repo: f.repo}
	f.svc.senders = notify.NewRouter(nil).Handle(forms.ChannelEmail, sender)

	err := f.svc.Deliver(context.Background(), jobs.Job{Payload: DeliveryJob{BroadcastID: "bc-1"}})
	assert.ErrorIs(t, err, jobs.ErrSkip)
	assert.Equal(t, 2, sender.sent)
	stored := f.repo.items["bc-1"]
	assert.Equal(t, lifecycle.BroadcastPaused, stored.Status)
	assert.Equal(t, 2, stored.DeliveredOffset)
}

type countingSender struct {
	sent int32
}

func (s *countingSender) Send(ctx context.Context, msg notify.Message) (notify.Result, error) {
	atomic.AddInt32(&s.sent, 1)
	return notify.Result{MessageID: "msg"}, nil
}

func TestBroadcastServiceDeliverDrainsRealQueueWhenBufferIsFull(t *testing.T) {
	var items []*models.Broadcast
	for _, id := range []string{"bc-1", "bc-2", "bc-3", "bc-4"} {
		b := sendingBroadcast(lifecycle.BroadcastSending)
		b.ID = id
		items = append(items, b)
	}
	f := newBroadcastFixture(items...)
	sender := &countingSender{}
	f.svc.senders = notify.NewRouter(nil).Handle(forms.ChannelEmail, sender)

	q := jobs.NewQueue("broadcasts", f.svc.Deliver, jobs.QueueConfig{Workers: 1, BufferSize: 2, RetryDelay: time.Millisecond})
	f.svc.UseQueue(q)
	q.Start(context.Background())

	enqueued := make(chan error, 1)
	go func() {
		for _, b := range items {
			if err := q.Enqueue(jobs.Job{ID: b.ID, Type: DeliveryJobType, Payload: DeliveryJob{BroadcastID: b.ID}}); err != nil {
				enqueued <- err
				return
			}
		}
		enqueued <- nil
	}()

	select {
	case err := <-enqueued:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("enqueue blocked behind the delivery workers")
	}
	require.Eventually(t, func() bool { return atomic.LoadInt32(&sender.sent) == 12 }, 3*time.Second, 5*time.Millisecond)
	q.Stop()

	for _, b := range items {
		assert.Equal(t, lifecycle.BroadcastSent, f.repo.items[b.ID].Status, b.ID)
	}
}

func TestBroadcastServiceSendRollsBackWhenQueueRejects(t *testing.T) {
	f := newBroadcastFixture()
	f.queue.err = errors.New("queue broadcasts stopped")
	form := validBroadcastForm()
	form.SendNow = true

	_, err := f.svc.Create(context.Background(), business, form)
	assertCode(t, appErrors.ErrInternal, err)
	assert.Equal(t, lifecycle.BroadcastDraft, f.repo.items["bc-new"].Status)

	f.queue.err = fmt.Errorf("queue broadcasts: %w", jobs.ErrQueueFull)
	_, err = f.svc.Transition(context.Background(), business, "bc-new", lifecycle.ActionSend, TransitionOptions{})
	assertCode(t, appErrors.ErrServiceUnavailable, err)
	assert.Equal(t, lifecycle.BroadcastDraft, f.repo.items["bc-new"].Status)
}

func TestBroadcastServiceDispatchDueRetriesAfterQueueRejects(t *testing.T) {
	due := sendingBroadcast(lifecycle.BroadcastScheduled)
	past := broadcastNow.Add(-time.Minute)
	due.ScheduledFor = &past
	f := newBroadcastFixture(due)
	f.queue.err = fmt.Errorf("queue broadcasts: %w", jobs.ErrQueueFull)

	n, err := f.svc.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, lifecycle.BroadcastScheduled, f.repo.items["bc-1"].Status)

	f.queue.err = nil
	n, err = f.svc.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, lifecycle.BroadcastSending, f.repo.items["bc-1"].Status)
}

func TestBroadcastServiceResumeRollsBackWhenQueueRejects(t *testing.T) {
	b := sendingBroadcast(lifecycle.BroadcastPaused)
	b.DeliveredOffset = 2
	f := newBroadcastFixture(b)
	f.queue.err = fmt.Errorf("queue broadcasts: %w", jobs.ErrQueueFull)

	_, err := f.svc.Transition(context.Background(), business, "bc-1", lifecycle.ActionResume, TransitionOptions{})
	assertCode(t, appErrors.ErrServiceUnavailable, err)
	assert.Equal(t, lifecycle.BroadcastPaused, f.repo.items["bc-1"].Status)
}

func TestBroadcastServiceDeliverSkipsRecipientsWithoutPhone(t *testing.T) {
	b := sendingBroadcast(lifecycle.BroadcastSending)
	b.Channels = []string{forms.ChannelSMS, forms.ChannelPush}
	f := newBroadcastFixture(b)

	require.NoError(t, f.svc.Deliver(context.Background(), jobs.Job{Payload: DeliveryJob{BroadcastID: "bc-1"}}))
	require.Len(t, f.sms.sent, 1)
	assert.Equal(t, "+447700900001", f.sms.sent[0].To)
	// one push notification per recipient plus the owner's completion notice
	assert.Len(t, f.notifications.created, 4)
	assert.Equal(t, 4, f.repo.items["bc-1"].SentCount)
}

func TestBroadcastServiceDeliverSkipsWhenNotSending(t *testing.T) {
	f := newBroadcastFixture(sendingBroadcast(lifecycle.BroadcastPaused))

	err := f.svc.Deliver(context.Background(), jobs.Job{Payload: DeliveryJob{BroadcastID: "bc-1"}})
	assert.ErrorIs(t, err, jobs.ErrSkip)
	assert.Empty(t, f.email.sent)

	err = f.svc.Deliver(context.Background(), jobs.Job{Payload: DeliveryJob{BroadcastID: "missing"}})
	assert.ErrorIs(t, err, jobs.ErrSkip)

	err = f.svc.Deliver(context.Background(), jobs.Job{Payload: "garbage"})
	assert.ErrorIs(t, err, jobs.ErrSkip)
}

func TestBroadcastServiceDeliverFailedBatchIsRetried(t *testing.T) {
	f := newBroadcastFixture(sendingBroadcast(lifecycle.BroadcastSending))
	f.email.err = errors.New("provider down")
	job := jobs.Job{Payload: DeliveryJob{BroadcastID: "bc-1"}}

	err := f.svc.Deliver(context.Background(), job)
	require.Error(t, err)
	assert.NotErrorIs(t, err, jobs.ErrSkip)
	assert.Equal(t, 0, f.repo.items["bc-1"].DeliveredOffset)

	f.svc.FailDelivery(context.Background(), job, err)
	stored := f.repo.items["bc-1"]
	assert.Equal(t, lifecycle.BroadcastFailed, stored.Status)
	require.NotNil(t, stored.LastError)
	assert.Contains(t, *stored.LastError, "provider down")
	require.Len(t, f.notifications.created, 1)
	assert.Equal(t, `Broadcast "Term dates" failed`, f.notifications.created[0].Title)
}

func TestBroadcastServiceResumeContinuesFromOffset(t *testing.T) {
	b := sendingBroadcast(lifecycle.BroadcastPaused)
	b.DeliveredOffset = 2
	f := newBroadcastFixture(b)

	resumed, err := f.svc.Transition(context.Background(), business, "bc-1", lifecycle.ActionResume, TransitionOptions{})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.BroadcastSending, resumed.Status)
	assert.Equal(t, DeliveryJob{BroadcastID: "bc-1", Offset: 2}, f.queue.last(t))
}

func TestBroadcastServiceTransitionRules(t *testing.T) {
	f := newBroadcastFixture(sendingBroadcast(lifecycle.BroadcastSending))
	ctx := context.Background()

	_, err := f.svc.Transition(ctx, business, "bc-1", lifecycle.ActionComplete, TransitionOptions{})
	assertCode(t, appErrors.ErrInvalidTransition, err)
	_, err = f.svc.Transition(ctx, rival, "bc-1", lifecycle.ActionPause, TransitionOptions{})
	assertCode(t, appErrors.ErrNotFound, err)
	assertCode(t, appErrors.ErrPreconditionFailed, f.svc.Delete(ctx, business, "bc-1"))

	draft := sendingBroadcast(lifecycle.BroadcastDraft)
	draft.ID = "bc-2"
	f.repo.items[draft.ID] = draft
	_, err = f.svc.Transition(ctx, business, "bc-2", lifecycle.ActionSchedule, TransitionOptions{})
	appErr := assertCode(t, appErrors.ErrValidation, err)
	assert.Equal(t, forms.MsgSendChoice, appErr.Fields["scheduledFor"])

	scheduled, err := f.svc.Transition(ctx, business, "bc-2", lifecycle.ActionSchedule, TransitionOptions{ScheduledFor: "2025-01-02T08:30"})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.BroadcastScheduled, scheduled.Status)
}

func TestBroadcastServiceDispatchDue(t *testing.T) {
	due := sendingBroadcast(lifecycle.BroadcastScheduled)
	past := broadcastNow.Add(-time.Minute)
	due.ScheduledFor = &past
	later := sendingBroadcast(lifecycle.BroadcastScheduled)
	later.ID = "bc-2"
	future := broadcastNow.Add(time.Hour)
	later.ScheduledFor = &future
	f := newBroadcastFixture(due, later)

	n, err := f.svc.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, lifecycle.BroadcastSending, f.repo.items["bc-1"].Status)
	assert.Equal(t, lifecycle.BroadcastScheduled, f.repo.items["bc-2"].Status)
	assert.Equal(t, DeliveryJob{BroadcastID: "bc-1"}, f.queue.last(t))
}

func TestBroadcastServicePreviewAudience(t *testing.T) {
	f := newBroadcastFixture()

	preview, err := f.svc.PreviewAudience(context.Background(), models.Audience{Type: forms.AudienceAllParents})
	require.NoError(t, err)
	assert.Equal(t, 3, preview.Count)

	_, err = f.svc.PreviewAudience(context.Background(), models.Audience{Type: forms.AudienceCourse})
	appErr := assertCode(t, appErrors.ErrValidation, err)
	assert.Contains(t, appErr.Fields, "audienceIds")
}
