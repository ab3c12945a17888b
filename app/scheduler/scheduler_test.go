package scheduler

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ibnu-sodik/wage-backend/app/message"
	"github.com/ibnu-sodik/wage-backend/app/wa"
	"github.com/ibnu-sodik/wage-backend/models"
	"github.com/ibnu-sodik/wage-backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rkey struct{ job, nokey uint }

type fakeRecipientRepo struct {
	mu   sync.Mutex
	rows map[rkey]*models.Recipient
}

func newFakeRecipientRepo(rows ...*models.Recipient) *fakeRecipientRepo {
	r := &fakeRecipientRepo{rows: make(map[rkey]*models.Recipient)}
	for _, row := range rows {
		r.rows[rkey{row.JobID, row.Nokey}] = row
	}
	return r
}

func (r *fakeRecipientRepo) get(job, nokey uint) *models.Recipient {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[rkey{job, nokey}]
}

func (r *fakeRecipientRepo) ByKey(_ context.Context, jobID, nokey, tenantID uint) (*models.Recipient, error) {
	return r.get(jobID, nokey), nil
}

func (r *fakeRecipientRepo) ListPendingDue(_ context.Context, jobID, tenantID uint, now time.Time) ([]*models.Recipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Recipient
	for _, row := range r.rows {
		if row.JobID == jobID && row.Eligible(now) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *fakeRecipientRepo) SaveBatch(_ context.Context, rows []*models.Recipient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range rows {
		r.rows[rkey{row.JobID, row.Nokey}] = row
	}
	return nil
}

func (r *fakeRecipientRepo) MarkSent(_ context.Context, jobID, nokey, tenantID uint, deliveredAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row := r.rows[rkey{jobID, nokey}]
	if row.Outcome != models.OutcomePending {
		return nil
	}
	row.Outcome = models.OutcomeSent
	row.DeliveredAt = &deliveredAt
	row.LastError = nil
	row.NextAttemptAt = nil
	return nil
}

func (r *fakeRecipientRepo) MarkFailed(_ context.Context, jobID, nokey, tenantID uint, lastError string, retryCount int, failedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row := r.rows[rkey{jobID, nokey}]
	if row.Outcome != models.OutcomePending {
		return nil
	}
	row.Outcome = models.OutcomeFailed
	row.LastError = &lastError
	row.RetryCount = retryCount
	row.DeliveredAt = &failedAt
	return nil
}

func (r *fakeRecipientRepo) ScheduleRetry(_ context.Context, jobID, nokey, tenantID uint, lastError string, retryCount int, nextAttemptAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row := r.rows[rkey{jobID, nokey}]
	if row.Outcome != models.OutcomePending {
		return nil
	}
	row.LastError = &lastError
	row.RetryCount = retryCount
	row.NextAttemptAt = &nextAttemptAt
	return nil
}

func (r *fakeRecipientRepo) RecordAttempt(_ context.Context, jobID, nokey, tenantID uint, lastError string, retryCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row := r.rows[rkey{jobID, nokey}]
	if row.Outcome != models.OutcomePending {
		return nil
	}
	row.LastError = &lastError
	row.RetryCount = retryCount
	return nil
}

func (r *fakeRecipientRepo) Postpone(_ context.Context, jobID, nokey, tenantID uint, nextAttemptAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row := r.rows[rkey{jobID, nokey}]
	if row.Outcome != models.OutcomePending {
		return nil
	}
	row.NextAttemptAt = &nextAttemptAt
	return nil
}

func (r *fakeRecipientRepo) ClearNextAttempt(_ context.Context, jobID, nokey, tenantID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[rkey{jobID, nokey}].NextAttemptAt = nil
	return nil
}

func (r *fakeRecipientRepo) CountOutcomes(_ context.Context, jobID, tenantID uint, lock bool) (models.OutcomeCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var c models.OutcomeCounts
	for _, row := range r.rows {
		if row.JobID != jobID {
			continue
		}
		c.TotalCount++
		switch row.Outcome {
		case models.OutcomeSent:
			c.SentCount++
		case models.OutcomeFailed:
			c.FailCount++
		}
	}
	return c, nil
}

type fakeJobRepo struct {
	mu       sync.Mutex
	due      []*models.BroadcastJob
	statuses map[uint]models.BroadcastJobStatus
	listDone chan struct{} // when set, ListDue blocks until closed
	listed   int32
}

func newFakeJobRepo(due ...*models.BroadcastJob) *fakeJobRepo {
	return &fakeJobRepo{due: due, statuses: make(map[uint]models.BroadcastJobStatus)}
}

func (r *fakeJobRepo) ByKey(_ context.Context, id, tenantID uint) (*models.BroadcastJob, error) {
	for _, j := range r.due {
		if j.ID == id {
			return j, nil
		}
	}
	return nil, nil
}

func (r *fakeJobRepo) ListDue(_ context.Context, now time.Time, limit int) ([]*models.BroadcastJob, error) {
	atomic.AddInt32(&r.listed, 1)
	if r.listDone != nil {
		<-r.listDone
	}
	return r.due, nil
}

func (r *fakeJobRepo) ByFilter(_ context.Context, filter models.BroadcastJobFilter, orderBy string, limit, offset int) ([]*models.BroadcastJob, error) {
	return r.due, nil
}

func (r *fakeJobRepo) Save(_ context.Context, job *models.BroadcastJob) error { return nil }

func (r *fakeJobRepo) UpdateStatus(_ context.Context, id, tenantID uint, status models.BroadcastJobStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[id] = status
	return nil
}

func (r *fakeJobRepo) status(id uint) models.BroadcastJobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statuses[id]
}

type fakeTemplateRepo struct {
	tpl *models.MessageTemplate
	err error
}

func (r *fakeTemplateRepo) ByKey(_ context.Context, id, tenantID uint) (*models.MessageTemplate, error) {
	return r.tpl, r.err
}
func (r *fakeTemplateRepo) Save(_ context.Context, tpl *models.MessageTemplate) error { return nil }

type fakeUserRepo struct{ user *models.User }

func (r *fakeUserRepo) ByID(_ context.Context, id uint) (*models.User, error)         { return r.user, nil }
func (r *fakeUserRepo) ByEmail(_ context.Context, email string) (*models.User, error) { return r.user, nil }
func (r *fakeUserRepo) Save(_ context.Context, user *models.User) error               { return nil }

// repoAggregator recomputes status from the fake rows, like the transactional
// aggregator does against postgres
type repoAggregator struct {
	jobs *fakeJobRepo
	recs *fakeRecipientRepo
}

func (a *repoAggregator) Refresh(ctx context.Context, jobID, tenantID uint) (models.BroadcastJobStatus, error) {
	counts, _ := a.recs.CountOutcomes(ctx, jobID, tenantID, false)
	status := models.ComputeBroadcastStatus(counts)
	return status, a.jobs.UpdateStatus(ctx, jobID, tenantID, status)
}

type fakeSender struct {
	mu          sync.Mutex
	connected   bool
	err         error
	delay       time.Duration
	sent        []string
	inFlight    int
	maxInFlight int
}

func (s *fakeSender) Connected() bool { return s.connected }

func (s *fakeSender) Send(_ context.Context, to string, msg wa.Message) error {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}
	s.mu.Unlock()

	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight--
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, to)
	return nil
}

func (s *fakeSender) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func (s *fakeSender) peakInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxInFlight
}

type fakeSessions struct {
	sender *fakeSender
	err    error
}

func (f *fakeSessions) Ensure(_ context.Context, tenant, device string) (Sender, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.sender, nil
}

type fakePublisher struct {
	mu    sync.Mutex
	tasks []DeliveryTask
	err   error
}

func (p *fakePublisher) Publish(_ context.Context, task DeliveryTask) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.tasks = append(p.tasks, task)
	return nil
}

func pendingRecipient(jobID, nokey uint, retries int) *models.Recipient {
	return &models.Recipient{
		JobID:         jobID,
		Nokey:         nokey,
		TenantID:      7,
		ContactNumber: fmt.Sprintf("6281%07d", nokey),
		ContactName:   fmt.Sprintf("Contact %d", nokey),
		RetryCount:    retries,
	}
}

func liveJob(id uint) *models.BroadcastJob {
	return &models.BroadcastJob{
		ID:          id,
		TenantID:    7,
		DeviceID:    "device-a",
		Kind:        models.MessageKindLive,
		MessageText: utils.ToPtr("Halo {name}"),
		DeliveryAt:  utils.UTCNowAdd(-time.Minute),
		Status:      models.BroadcastStatusScheduled,
	}
}

func newDispatcher(recs *fakeRecipientRepo, policy RetryPolicy) *Dispatcher {
	return NewDispatcher(recs, message.NewBuilder("", "", message.DefaultLimits()), policy, RateWindow{})
}

func newScheduler(jobs *fakeJobRepo, recs *fakeRecipientRepo, sessions SessionProvider, cfg Config) *BroadcastScheduler {
	policy := RetryPolicy{MaxRetries: 3, BaseBackoff: 60 * time.Second}
	return NewBroadcastScheduler(
		jobs, recs,
		&fakeTemplateRepo{}, &fakeUserRepo{user: &models.User{ID: 7, FirstName: "Toko", LastName: "Maju", Email: "cs@tokomaju.id"}},
		sessions,
		newDispatcher(recs, policy),
		&repoAggregator{jobs: jobs, recs: recs},
		policy, cfg,
		log.New(io.Discard, "", 0),
	)
}

func TestDispatchFailureSchedulesExponentialBackoff(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, BaseBackoff: 60 * time.Second}

	cases := []struct {
		retries   int
		wantCount int
		wantDelay time.Duration
	}{
		{retries: 0, wantCount: 1, wantDelay: 60 * time.Second},
		{retries: 1, wantCount: 2, wantDelay: 120 * time.Second},
		{retries: 2, wantCount: 3, wantDelay: 240 * time.Second},
	}
	for _, tc := range cases {
		rec := pendingRecipient(1, 1, tc.retries)
		recs := newFakeRecipientRepo(rec)
		d := newDispatcher(recs, policy)
		sess := &fakeSender{connected: true, err: assert.AnError}

		before := utils.UTCNow()
		result, dec, err := d.DispatchOne(context.Background(), liveJob(1), rec, sess, nil, message.Sender{}, true)
		require.NoError(t, err)
		assert.Equal(t, ResultRetry, result)
		assert.Equal(t, tc.wantDelay, dec.Delay)

		row := recs.get(1, 1)
		assert.Equal(t, models.OutcomePending, row.Outcome)
		assert.Equal(t, tc.wantCount, row.RetryCount)
		require.NotNil(t, row.NextAttemptAt)
		assert.WithinDuration(t, before.Add(tc.wantDelay), *row.NextAttemptAt, 2*time.Second)
	}
}

func TestDispatchFailureBeyondBudgetIsTerminal(t *testing.T) {
	rec := pendingRecipient(1, 1, 3)
	recs := newFakeRecipientRepo(rec)
	d := newDispatcher(recs, RetryPolicy{MaxRetries: 3, BaseBackoff: 60 * time.Second})
	sess := &fakeSender{connected: true, err: assert.AnError}

	result, dec, err := d.DispatchOne(context.Background(), liveJob(1), rec, sess, nil, message.Sender{}, true)
	require.NoError(t, err)
	assert.Equal(t, ResultFailed, result)
	assert.True(t, dec.Terminal)

	row := recs.get(1, 1)
	assert.Equal(t, models.OutcomeFailed, row.Outcome)
	assert.Equal(t, 4, row.RetryCount)
	require.NotNil(t, row.DeliveredAt, "terminal failure records its timestamp")
	require.NotNil(t, row.LastError)
}

func TestDispatchSuccessClearsRetryState(t *testing.T) {
	rec := pendingRecipient(1, 1, 2)
	rec.LastError = utils.ToPtr("previous failure")
	rec.NextAttemptAt = utils.UTCNowAddPtr(-time.Minute)
	recs := newFakeRecipientRepo(rec)
	d := newDispatcher(recs, DefaultRetryPolicy())
	sess := &fakeSender{connected: true}

	result, _, err := d.DispatchOne(context.Background(), liveJob(1), rec, sess, nil, message.Sender{}, true)
	require.NoError(t, err)
	assert.Equal(t, ResultSent, result)

	row := recs.get(1, 1)
	assert.Equal(t, models.OutcomeSent, row.Outcome)
	assert.Nil(t, row.LastError)
	assert.Nil(t, row.NextAttemptAt)
	require.NotNil(t, row.DeliveredAt)
}

func TestDispatchQueueModeLeavesScheduleToCaller(t *testing.T) {
	rec := pendingRecipient(1, 1, 0)
	recs := newFakeRecipientRepo(rec)
	d := newDispatcher(recs, RetryPolicy{MaxRetries: 3, BaseBackoff: 60 * time.Second})
	sess := &fakeSender{connected: true, err: assert.AnError}

	result, dec, err := d.DispatchOne(context.Background(), liveJob(1), rec, sess, nil, message.Sender{}, false)
	require.NoError(t, err)
	assert.Equal(t, ResultRetry, result)
	assert.Equal(t, 60*time.Second, dec.Delay)

	row := recs.get(1, 1)
	assert.Equal(t, 1, row.RetryCount)
	assert.Nil(t, row.NextAttemptAt, "queue mode must not write the row schedule")
}

func TestDisconnectedSessionFailsThroughRetryPath(t *testing.T) {
	rec := pendingRecipient(1, 1, 0)
	recs := newFakeRecipientRepo(rec)
	d := newDispatcher(recs, DefaultRetryPolicy())

	result, _, err := d.DispatchOne(context.Background(), liveJob(1), rec, &fakeSender{connected: false}, nil, message.Sender{}, true)
	require.NoError(t, err)
	assert.Equal(t, ResultRetry, result)

	row := recs.get(1, 1)
	require.NotNil(t, row.LastError)
	assert.Contains(t, *row.LastError, "not connected")
}

func TestRunOnceDispatchesAndAggregates(t *testing.T) {
	job := liveJob(1)
	recs := newFakeRecipientRepo(
		pendingRecipient(1, 1, 0),
		pendingRecipient(1, 2, 0),
		pendingRecipient(1, 3, 0),
	)
	jobs := newFakeJobRepo(job)
	sess := &fakeSender{connected: true}
	s := newScheduler(jobs, recs, &fakeSessions{sender: sess}, Config{PollInterval: time.Hour, DeviceConcurrency: 5})

	s.RunOnce(context.Background())

	assert.Equal(t, 3, sess.sentCount())
	for nokey := uint(1); nokey <= 3; nokey++ {
		assert.Equal(t, models.OutcomeSent, recs.get(1, nokey).Outcome)
	}
	assert.Equal(t, models.BroadcastStatusSent, jobs.status(1))
}

func TestRunOnceDeliversWholeJobUnderTightDeviceCap(t *testing.T) {
	job := liveJob(1)
	recs := newFakeRecipientRepo(
		pendingRecipient(1, 1, 0),
		pendingRecipient(1, 2, 0),
		pendingRecipient(1, 3, 0),
	)
	jobs := newFakeJobRepo(job)
	sess := &fakeSender{connected: true, delay: 10 * time.Millisecond}
	s := newScheduler(jobs, recs, &fakeSessions{sender: sess}, Config{PollInterval: time.Hour, DeviceConcurrency: 1})

	s.RunOnce(context.Background())

	assert.Equal(t, 3, sess.sentCount(), "a job must not starve itself on its own device slot")
	assert.Equal(t, 1, sess.peakInFlight(), "sends within one job are sequential")
	for nokey := uint(1); nokey <= 3; nokey++ {
		assert.Equal(t, models.OutcomeSent, recs.get(1, nokey).Outcome)
	}
	assert.Equal(t, models.BroadcastStatusSent, jobs.status(1))
}

func TestRunOnceDefersRecipientsWhenDeviceSlotsAreTaken(t *testing.T) {
	job := liveJob(1)
	recs := newFakeRecipientRepo(
		pendingRecipient(1, 1, 0),
		pendingRecipient(1, 2, 0),
	)
	jobs := newFakeJobRepo(job)
	sess := &fakeSender{connected: true}
	s := newScheduler(jobs, recs, &fakeSessions{sender: sess}, Config{PollInterval: time.Hour, DeviceConcurrency: 1})

	// another job holds the device's only slot for the whole cycle
	require.True(t, s.limiter.TryAcquire(job.DeviceID))
	defer s.limiter.Release(job.DeviceID)

	s.RunOnce(context.Background())

	assert.Equal(t, 0, sess.sentCount())
	for nokey := uint(1); nokey <= 2; nokey++ {
		row := recs.get(1, nokey)
		assert.Equal(t, models.OutcomePending, row.Outcome)
		require.NotNil(t, row.NextAttemptAt)
		assert.Equal(t, 0, row.RetryCount, "limiter deferral must not consume the retry budget")
	}
}

func TestRunOnceSkipsOverlappingCycle(t *testing.T) {
	jobs := newFakeJobRepo()
	jobs.listDone = make(chan struct{})
	recs := newFakeRecipientRepo()
	s := newScheduler(jobs, recs, &fakeSessions{sender: &fakeSender{connected: true}}, Config{PollInterval: time.Hour})

	done := make(chan struct{})
	go func() {
		s.RunOnce(context.Background())
		close(done)
	}()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&jobs.listed) == 1 }, 2*time.Second, 5*time.Millisecond)

	s.RunOnce(context.Background()) // overlaps the blocked cycle
	assert.Equal(t, int32(1), atomic.LoadInt32(&jobs.listed), "overlapping cycle must not poll again")

	close(jobs.listDone)
	<-done
}

func TestRunOnceSettlesJobWithNoPendingRecipients(t *testing.T) {
	job := liveJob(1)
	sent := pendingRecipient(1, 1, 0)
	sent.Outcome = models.OutcomeSent
	failed := pendingRecipient(1, 2, 1)
	failed.Outcome = models.OutcomeFailed
	recs := newFakeRecipientRepo(sent, failed)
	jobs := newFakeJobRepo(job)
	s := newScheduler(jobs, recs, &fakeSessions{sender: &fakeSender{connected: true}}, Config{PollInterval: time.Hour})

	s.RunOnce(context.Background())

	assert.Equal(t, models.BroadcastStatusSent, jobs.status(1))
}

func TestRunOnceQueueModeEnqueuesAndClearsSchedule(t *testing.T) {
	job := liveJob(1)
	rec := pendingRecipient(1, 1, 0)
	rec.NextAttemptAt = utils.UTCNowAddPtr(-time.Minute)
	recs := newFakeRecipientRepo(rec)
	jobs := newFakeJobRepo(job)
	pub := &fakePublisher{}
	s := newScheduler(jobs, recs, &fakeSessions{sender: &fakeSender{connected: true}}, Config{PollInterval: time.Hour}).WithQueue(pub)

	s.RunOnce(context.Background())

	require.Len(t, pub.tasks, 1)
	assert.Equal(t, DeliveryTask{JobID: 1, Nokey: 1, TenantID: 7}, pub.tasks[0])
	assert.Nil(t, recs.get(1, 1).NextAttemptAt, "queue hand-off clears the row schedule")
}

func TestRunOnceQueueModePostponesOnEnqueueFailure(t *testing.T) {
	job := liveJob(1)
	recs := newFakeRecipientRepo(pendingRecipient(1, 1, 0))
	jobs := newFakeJobRepo(job)
	pub := &fakePublisher{err: assert.AnError}
	s := newScheduler(jobs, recs, &fakeSessions{sender: &fakeSender{connected: true}}, Config{PollInterval: time.Hour}).WithQueue(pub)

	s.RunOnce(context.Background())

	row := recs.get(1, 1)
	assert.Equal(t, models.OutcomePending, row.Outcome)
	assert.Equal(t, 0, row.RetryCount, "enqueue failure must not consume the retry budget")
	require.NotNil(t, row.NextAttemptAt)
	assert.True(t, row.NextAttemptAt.After(utils.UTCNow()))
}

func TestRunOnceIsolatesBrokenJobs(t *testing.T) {
	broken := liveJob(1)
	broken.Kind = models.MessageKindTemplate // no template id
	healthy := liveJob(2)
	recs := newFakeRecipientRepo(
		pendingRecipient(1, 1, 0),
		pendingRecipient(2, 1, 0),
	)
	jobs := newFakeJobRepo(broken, healthy)
	sess := &fakeSender{connected: true}
	s := newScheduler(jobs, recs, &fakeSessions{sender: sess}, Config{PollInterval: time.Hour})

	s.RunOnce(context.Background())

	assert.Equal(t, models.OutcomeSent, recs.get(2, 1).Outcome, "healthy job proceeds despite the broken one")
	assert.Equal(t, models.OutcomePending, recs.get(1, 1).Outcome)
}
