package services

import (
	"context"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/watchcoin/backend/internal/config"
	"github.com/watchcoin/backend/internal/dbtest"
	"github.com/watchcoin/backend/internal/execution"
	"github.com/watchcoin/backend/internal/ledger"
	"github.com/watchcoin/backend/internal/models"
	"github.com/watchcoin/backend/internal/payments"
	"github.com/watchcoin/backend/internal/videos"
	"github.com/watchcoin/backend/internal/watch"
)

const sandboxSecret = "sandbox-webhook-secret"

var testWatchConfig = config.WatchConfig{
	MinWatchSeconds:     10,
	MaxWatchSeconds:     3600,
	MaxRequestedWatches: 10000,
	MaxBoost:            10,
	BoostCostPerWatch:   10,
	StaleAfter:          10 * time.Minute,
	MaxHeartbeatGap:     5 * time.Second,
	CandidatePoolSize:   25,
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// env wires every service against the in-memory stores.
type env struct {
	t     *testing.T
	ctx   context.Context
	clock *fakeClock

	db            *dbtest.DB
	ledgerStore   *dbtest.LedgerStore
	users         *dbtest.UserStore
	videoStore    *dbtest.VideoStore
	assignments   *dbtest.AssignmentStore
	paymentStore  *dbtest.PaymentStore
	notes         *dbtest.NotificationStore
	pub           *dbtest.Recorder
	sandbox       *payments.Sandbox
	metadataCalls int

	ledger        ledger.Service
	escrow        *EscrowService
	queue         *QueueService
	award         *AwardService
	videos        *VideoService
	notifications *NotificationService
	payments      *PaymentService
	admin         *AdminService

	enqueueMu  sync.Mutex
	confirms   []execution.ConfirmPaymentArgs
	broadcasts []execution.BroadcastNotificationArgs
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		t:            t,
		ctx:          context.Background(),
		clock:        &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		db:           dbtest.New(),
		ledgerStore:  dbtest.NewLedgerStore(),
		paymentStore: dbtest.NewPaymentStore(),
		notes:        dbtest.NewNotificationStore(),
		pub:          dbtest.NewRecorder(),
		sandbox:      payments.NewSandbox(sandboxSecret),
	}
	e.users = dbtest.NewUserStore(e.ledgerStore)
	e.videoStore, e.assignments = dbtest.NewWatchStores()
	e.ledger = ledger.NewService(e.ledgerStore)
	e.escrow = NewEscrowService(e.ledger, testWatchConfig.BoostCostPerWatch)
	e.notifications = NewNotificationService(e.notes, e.pub, nil)

	e.queue = NewQueueService(e.db, e.videoStore, e.assignments, NewMatcher(rand.New(rand.NewPCG(1, 2))),
		e.pub, testWatchConfig, nil)
	e.queue.now = e.clock.Now
	e.award = NewAwardService(e.db, e.videoStore, e.assignments, e.ledger, e.pub, e.notifications, nil)
	e.award.now = e.clock.Now

	metadata := videos.ProviderFunc(func(_ context.Context, url string) (videos.Metadata, error) {
		e.metadataCalls++
		return videos.Metadata{Title: "Launch trailer", Channel: "Studio", DurationSeconds: 600}, nil
	})
	e.videos = NewVideoService(e.db, e.videoStore, e.escrow, metadata, e.pub, testWatchConfig, nil)

	validator, err := NewValidator()
	require.NoError(t, err)
	e.payments = NewPaymentService(PaymentDeps{
		DB:        e.db,
		Store:     e.paymentStore,
		Ledger:    e.ledger,
		Catalog:   payments.NewCatalog(config.DefaultPackages),
		Providers: payments.NewRegistry(e.sandbox),
		Validator: validator,
		Enqueue: func(_ context.Context, args execution.ConfirmPaymentArgs) error {
			e.enqueueMu.Lock()
			defer e.enqueueMu.Unlock()
			e.confirms = append(e.confirms, args)
			return nil
		},
		Events:        e.pub,
		Notifications: e.notifications,
		Config:        config.PaymentsConfig{SuccessURL: "http://localhost/coins?status=success"},
	})
	e.payments.now = e.clock.Now

	e.admin = NewAdminService(e.db, e.users, e.ledger, e.videos, e.notifications, e.pub,
		func(_ context.Context, args execution.BroadcastNotificationArgs) error {
			e.enqueueMu.Lock()
			defer e.enqueueMu.Unlock()
			e.broadcasts = append(e.broadcasts, args)
			return nil
		}, nil)
	return e
}

func (e *env) user(balance int64) uuid.UUID {
	return e.users.Add(uuid.NewString()+"@example.com", models.RoleUser, balance).ID
}

// video stores an active, fully funded video without going through Submit.
// The owner's ledger is not touched.
func (e *env) video(owner uuid.UUID, seconds, watches, boost int) models.Video {
	q := e.escrow.Quote(seconds, watches, boost)
	v := models.Video{
		ID:                   uuid.New(),
		OwnerID:              owner,
		YouTubeID:            "dQw4w9WgXcQ",
		Title:                "Test video",
		WatchSecondsRequired: seconds,
		RequestedWatches:     watches,
		Reward:               q.Reward,
		Boost:                boost,
		BoostFee:             q.BoostFee,
		EscrowRemaining:      q.Escrow,
		Status:               models.VideoActive,
	}
	e.videoStore.Put(v)
	return v
}

// watched stores a live assignment whose tracker already shows seconds of
// verified watch time.
func (e *env) watched(userID uuid.UUID, v models.Video, seconds int) models.WatchAssignment {
	a := models.WatchAssignment{
		ID:                   uuid.New(),
		UserID:               userID,
		VideoID:              v.ID,
		WatchSecondsRequired: v.WatchSecondsRequired,
		Reward:               v.Reward,
		Status:               models.AssignmentActive,
		SessionState:         string(watch.StatePaused),
		WatchedMillis:        int64(seconds) * 1000,
		LastHeartbeatAt:      e.clock.Now(),
	}
	e.assignments.Put(a)
	return a
}

// play drives real heartbeats: one play event, then a tick every gap until
// seconds of watch time have accrued.
func (e *env) play(userID, assignmentID uuid.UUID, seconds int) *Progress {
	e.t.Helper()
	p, err := e.queue.Heartbeat(e.ctx, userID, assignmentID, watch.Event{Kind: watch.EventPlay})
	require.NoError(e.t, err)
	for p.WatchedSeconds < seconds {
		e.clock.Advance(testWatchConfig.MaxHeartbeatGap)
		p, err = e.queue.Heartbeat(e.ctx, userID, assignmentID, watch.Event{Kind: watch.EventTick})
		require.NoError(e.t, err)
	}
	return p
}

// requireLedgerConsistent checks balance == sum(entries) for every user given.
func (e *env) requireLedgerConsistent(ids ...uuid.UUID) {
	e.t.Helper()
	for _, id := range ids {
		require.Equal(e.t, e.ledgerStore.Sum(id), e.ledgerStore.Balance(id), "ledger drift for %s", id)
	}
}
