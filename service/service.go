package service

import (
	"context"
	"sync"
	"time"

	"github.com/emzola/circulation/config"
	"github.com/emzola/circulation/data"
	"github.com/emzola/circulation/internal/jsonlog"
	"github.com/emzola/circulation/repository"
	"github.com/jellydator/ttlcache/v3"
)

type Service interface {
	borrowRequests
	books
	users
	tokens
	reports
	reminders
}

// Clock returns the current time. Tests swap it for a fixed clock.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// Notifier delivers templated e-mail.
type Notifier interface {
	Send(recipient, templateFile string, data any) error
}

// ObjectStore stores uploaded files and returns their public URL.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, body []byte) (string, error)
}

// Option configures optional service collaborators.
type Option func(*service)

func WithClock(clock Clock) Option {
	return func(s *service) { s.clock = clock }
}

// WithNotifier enables e-mail on approval and for overdue reminders.
func WithNotifier(n Notifier) Option {
	return func(s *service) { s.notifier = n }
}

// WithObjectStore enables book cover uploads.
func WithObjectStore(store ObjectStore) Option {
	return func(s *service) { s.store = store }
}

// Services defines a service layer.
type service struct {
	config    config.Config
	wg        *sync.WaitGroup
	logger    *jsonlog.Logger
	repo      repository.Repository
	clock     Clock
	notifier  Notifier
	store     ObjectStore
	dashboard *ttlcache.Cache[string, *data.DashboardStats]
}

// New creates a new instance of Service. Background work is tracked on wg so
// the caller can wait for it during shutdown.
func New(cfg config.Config, wg *sync.WaitGroup, logger *jsonlog.Logger, repo repository.Repository, opts ...Option) *service {
	s := &service{
		config: cfg,
		wg:     wg,
		logger: logger,
		repo:   repo,
		clock:  realClock{},
		dashboard: ttlcache.New(
			ttlcache.WithTTL[string, *data.DashboardStats](cfg.Cache.DashboardTTL),
			ttlcache.WithDisableTouchOnHit[string, *data.DashboardStats](),
		),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// loanPeriod returns the configured loan period, falling back to the default.
func (s *service) loanPeriod() time.Duration {
	if s.config.Loans.Period > 0 {
		return s.config.Loans.Period
	}
	return data.DefaultLoanPeriod
}
