//go:build !integration

package usecase

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"motion-akademija-billing/internal/domain"
	"motion-akademija-billing/internal/domain/model"
	"motion-akademija-billing/internal/domain/ports/adapter"
	"motion-akademija-billing/internal/domain/ports/repository"
)

// newTestLogger creates a silent zerolog.Logger so test output stays clean.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// memTxManager runs the closure directly; unit tests have no real database.
type memTxManager struct {
	beginErr error
}

func (m *memTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.beginErr != nil {
		return m.beginErr
	}
	return fn(ctx, nil)
}

// memTransactionRepo is an in-memory TransactionRepository keyed by merchant
// payment id.
type memTransactionRepo struct {
	mu      sync.RWMutex
	store   map[string]*model.Transaction
	saveErr error
}

func newMemTransactionRepo() *memTransactionRepo {
	return &memTransactionRepo{store: make(map[string]*model.Transaction)}
}

func (m *memTransactionRepo) Save(ctx context.Context, tx repository.Tx, t *model.Transaction) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.store[t.MerchantPaymentID] = &cp
	return nil
}

func (m *memTransactionRepo) FindByMerchantPaymentID(ctx context.Context, tx repository.Tx, mpid string) (*model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.store[mpid]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTransactionRepo) FindByPGTranID(ctx context.Context, tx repository.Tx, pgTranID string) (*model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.store {
		if t.PGTranID != nil && *t.PGTranID == pgTranID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memTransactionRepo) FindBySessionToken(ctx context.Context, tx repository.Tx, token string) (*model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.store {
		if t.SessionToken == token {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memTransactionRepo) UpdateFromCallback(ctx context.Context, tx repository.Tx, t *model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.store[t.MerchantPaymentID]
	if !ok {
		return domain.ErrNotFound
	}
	stored.Status = t.Status
	stored.ResponseCode = t.ResponseCode
	stored.ResponseMsg = t.ResponseMsg
	stored.PGTranID = t.PGTranID
	stored.PGOrderID = t.PGOrderID
	stored.PGTranApprCode = t.PGTranApprCode
	stored.RawContext = t.RawContext
	stored.UpdatedAt = time.Now()
	return nil
}

func (m *memTransactionRepo) SetUserID(ctx context.Context, tx repository.Tx, mpid, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.store[mpid]
	if !ok {
		return domain.ErrNotFound
	}
	id := userID
	stored.UserID = &id
	return nil
}

func (m *memTransactionRepo) ListRecentPending(ctx context.Context, tx repository.Tx, limit int) ([]*model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Transaction
	for _, t := range m.store {
		if t.Status == model.TransactionStatusPending {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// memLedger mimics the processed-callback primary key.
type memLedger struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemLedger() *memLedger {
	return &memLedger{seen: make(map[string]bool)}
}

func (m *memLedger) MarkProcessed(ctx context.Context, tx repository.Tx, mpid, pgTranID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := mpid + "|" + pgTranID
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

// memUserRepo is an in-memory UserRepository keyed by user id.
type memUserRepo struct {
	mu      sync.RWMutex
	store   map[string]*model.User
	saveErr error
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{store: make(map[string]*model.User)}
}

func (m *memUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.store {
		if existing.Email == u.Email && existing.ID != u.ID {
			return domain.ErrAlreadyExists
		}
	}
	cp := *u
	m.store[u.ID] = &cp
	return nil
}

func (m *memUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUserRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.store {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memUserRepo) UpdateSubscription(ctx context.Context, tx repository.Tx, userID string, expiresAt time.Time, status model.SubscriptionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.store[userID]
	if !ok {
		return domain.ErrNotFound
	}
	exp := expiresAt
	u.SubscriptionExpiresAt = &exp
	u.SubscriptionStatus = status
	return nil
}

func (m *memUserRepo) UpdateSubscriptionStatus(ctx context.Context, tx repository.Tx, userID string, status model.SubscriptionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.store[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.SubscriptionStatus = status
	return nil
}

func (m *memUserRepo) ExpireOverdue(ctx context.Context, tx repository.Tx, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, u := range m.store {
		if u.SubscriptionStatus == model.SubscriptionStatusActive &&
			u.SubscriptionExpiresAt != nil && u.SubscriptionExpiresAt.Before(now) {
			u.SubscriptionStatus = model.SubscriptionStatusExpired
			n++
		}
	}
	return n, nil
}

func (m *memUserRepo) ListExpiringWithin(ctx context.Context, tx repository.Tx, now time.Time, window time.Duration) ([]*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.User
	cut := now.Add(window)
	for _, u := range m.store {
		if u.SubscriptionStatus == model.SubscriptionStatusActive &&
			u.SubscriptionExpiresAt != nil &&
			u.SubscriptionExpiresAt.After(now) && u.SubscriptionExpiresAt.Before(cut) {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

// memMandateRepo is an in-memory MandateRepository keyed by mandate id.
type memMandateRepo struct {
	mu      sync.RWMutex
	store   map[string]*model.RecurringMandate
	saveErr error
}

func newMemMandateRepo() *memMandateRepo {
	return &memMandateRepo{store: make(map[string]*model.RecurringMandate)}
}

func (m *memMandateRepo) Save(ctx context.Context, tx repository.Tx, r *model.RecurringMandate) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.store[r.ID] = &cp
	return nil
}

func (m *memMandateRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.RecurringMandate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memMandateRepo) findLatest(userID string, filter func(*model.RecurringMandate) bool) (*model.RecurringMandate, error) {
	var latest *model.RecurringMandate
	for _, r := range m.store {
		if r.UserID != userID || !filter(r) {
			continue
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *memMandateRepo) FindActiveByUser(ctx context.Context, tx repository.Tx, userID string) (*model.RecurringMandate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findLatest(userID, func(r *model.RecurringMandate) bool { return r.IsActive })
}

func (m *memMandateRepo) FindLatestInactiveByUser(ctx context.Context, tx repository.Tx, userID string) (*model.RecurringMandate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findLatest(userID, func(r *model.RecurringMandate) bool { return !r.IsActive })
}

func (m *memMandateRepo) FindLatestByUser(ctx context.Context, tx repository.Tx, userID string) (*model.RecurringMandate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findLatest(userID, func(*model.RecurringMandate) bool { return true })
}

func (m *memMandateRepo) ListDue(ctx context.Context, tx repository.Tx, now time.Time) ([]*model.RecurringMandate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.RecurringMandate
	for _, r := range m.store {
		if r.IsActive && !r.NextBillingAt.After(now) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextBillingAt.Before(out[j].NextBillingAt) })
	return out, nil
}

func (m *memMandateRepo) AdvanceBilling(ctx context.Context, tx repository.Tx, id string, nextBillingAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now()
	r.LastBillingAt = &now
	r.NextBillingAt = nextBillingAt
	return nil
}

func (m *memMandateRepo) SetActive(ctx context.Context, tx repository.Tx, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.IsActive = active
	return nil
}

// memPurchaseRepo drops duplicate (user, course) pairs silently, mirroring
// the ON CONFLICT DO NOTHING insert in the Postgres repo.
type memPurchaseRepo struct {
	mu    sync.Mutex
	store []*model.Purchase
}

func newMemPurchaseRepo() *memPurchaseRepo {
	return &memPurchaseRepo{}
}

func (m *memPurchaseRepo) Save(ctx context.Context, tx repository.Tx, p *model.Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.store {
		if existing.UserID == p.UserID && existing.CourseID == p.CourseID {
			return nil
		}
	}
	cp := *p
	m.store = append(m.store, &cp)
	return nil
}

func (m *memPurchaseRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Purchase
	for _, p := range m.store {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memCourseRepo struct {
	store map[string]*model.Course
}

func newMemCourseRepo(courses ...*model.Course) *memCourseRepo {
	m := &memCourseRepo{store: make(map[string]*model.Course)}
	for _, c := range courses {
		m.store[c.ID] = c
	}
	return m
}

func (m *memCourseRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Course, error) {
	c, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// mockGateway returns scripted responses and records every request it sees.
type mockGateway struct {
	mu           sync.Mutex
	sessionResp  adapter.SessionResponse
	sessionErr   error
	saleResp     adapter.MITSaleResponse
	saleErr      error
	citRequests  []adapter.CITSessionRequest
	saleRequests []adapter.MITSaleRequest
}

func (g *mockGateway) Name() string { return "mock" }

func (g *mockGateway) CreateCITSession(ctx context.Context, req adapter.CITSessionRequest) (adapter.SessionResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.citRequests = append(g.citRequests, req)
	return g.sessionResp, g.sessionErr
}

func (g *mockGateway) ExecuteMITSale(ctx context.Context, req adapter.MITSaleRequest) (adapter.MITSaleResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.saleRequests = append(g.saleRequests, req)
	return g.saleResp, g.saleErr
}

func (g *mockGateway) HostedPageURL(sessionToken string) string {
	return "https://hpp.example.com/?sessionToken=" + sessionToken
}

// mockMailer counts sends per kind; emails go out on goroutines so tests that
// assert on them poll via sentCount.
type mockMailer struct {
	mu      sync.Mutex
	welcome int
	renewal int
	failed  int
}

func (m *mockMailer) SendWelcomeEmail(ctx context.Context, email, password, firstName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.welcome++
	return nil
}

func (m *mockMailer) SendRenewalEmail(ctx context.Context, email, firstName string, newExpiry time.Time, amount float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.renewal++
	return nil
}

func (m *mockMailer) SendPaymentFailedEmail(ctx context.Context, email, firstName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed++
	return nil
}

func (m *mockMailer) sentCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch kind {
	case "welcome":
		return m.welcome
	case "renewal":
		return m.renewal
	default:
		return m.failed
	}
}

// waitForMail polls the mailer because sends happen post-commit on goroutines.
func waitForMail(m *mockMailer, kind string, want int) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.sentCount(kind) >= want {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return m.sentCount(kind) >= want
}
