package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/starksgalaxy/errands-gobackend/internal/apperr"
	"github.com/starksgalaxy/errands-gobackend/internal/models"
)

// Memory is an in-memory Store used by service tests. It mirrors the
// Mongo implementation's CAS semantics; Atomic serializes transactions
// and rolls the whole state back when fn fails.
type Memory struct {
	mu   sync.Mutex
	txMu sync.Mutex
	seq  int

	users         map[string]models.User
	errands       map[string]models.Errand
	errandOrder   []string
	payments      map[string]models.Payment
	paymentOrder  []string
	transactions  []models.Transaction
	disputes      map[string]models.Dispute
	runners       map[string]models.RunnerStats
	notifications []models.Notification
}

func NewMemory() *Memory {
	return &Memory{
		users:    make(map[string]models.User),
		errands:  make(map[string]models.Errand),
		payments: make(map[string]models.Payment),
		disputes: make(map[string]models.Dispute),
		runners:  make(map[string]models.RunnerStats),
	}
}

func (m *Memory) Users() Users                 { return (*memUsers)(m) }
func (m *Memory) Errands() Errands             { return (*memErrands)(m) }
func (m *Memory) Payments() Payments           { return (*memPayments)(m) }
func (m *Memory) Transactions() Transactions   { return (*memTransactions)(m) }
func (m *Memory) Disputes() Disputes           { return (*memDisputes)(m) }
func (m *Memory) Runners() Runners             { return (*memRunners)(m) }
func (m *Memory) Notifications() Notifications { return (*memNotifications)(m) }

func (m *Memory) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	snap := m.snapshot()
	if err := fn(ctx); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memSnapshot struct {
	users         map[string]models.User
	errands       map[string]models.Errand
	errandOrder   []string
	payments      map[string]models.Payment
	paymentOrder  []string
	transactions  []models.Transaction
	disputes      map[string]models.Dispute
	runners       map[string]models.RunnerStats
	notifications []models.Notification
}

func (m *Memory) snapshot() memSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := memSnapshot{
		users:         make(map[string]models.User, len(m.users)),
		errands:       make(map[string]models.Errand, len(m.errands)),
		errandOrder:   append([]string(nil), m.errandOrder...),
		payments:      make(map[string]models.Payment, len(m.payments)),
		paymentOrder:  append([]string(nil), m.paymentOrder...),
		transactions:  append([]models.Transaction(nil), m.transactions...),
		disputes:      make(map[string]models.Dispute, len(m.disputes)),
		runners:       make(map[string]models.RunnerStats, len(m.runners)),
		notifications: append([]models.Notification(nil), m.notifications...),
	}
	for k, v := range m.users {
		snap.users[k] = v
	}
	for k, v := range m.errands {
		v.Bids = append([]models.Bid(nil), v.Bids...)
		snap.errands[k] = v
	}
	for k, v := range m.payments {
		snap.payments[k] = v
	}
	for k, v := range m.disputes {
		snap.disputes[k] = v
	}
	for k, v := range m.runners {
		snap.runners[k] = v
	}
	return snap
}

func (m *Memory) restore(snap memSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = snap.users
	m.errands = snap.errands
	m.errandOrder = snap.errandOrder
	m.payments = snap.payments
	m.paymentOrder = snap.paymentOrder
	m.transactions = snap.transactions
	m.disputes = snap.disputes
	m.runners = snap.runners
	m.notifications = snap.notifications
}

func (m *Memory) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

type memUsers Memory

func (m *memUsers) Create(_ context.Context, u *models.User) (string, error) {
	mm := (*Memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if u.ID == "" {
		u.ID = mm.nextID("user")
	}
	u.CreatedAt = time.Now()
	mm.users[u.ID] = *u
	return u.ID, nil
}

func (m *memUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	mm := (*Memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	u, ok := mm.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, apperr.ErrNotFound)
	}
	return &u, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	mm := (*Memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	for _, u := range mm.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", email, apperr.ErrNotFound)
}

func (m *memUsers) Debit(_ context.Context, id string, amount float64) error {
	mm := (*Memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	u, ok := mm.users[id]
	if !ok {
		return fmt.Errorf("user %s: %w", id, apperr.ErrNotFound)
	}
	if u.WalletBalance < amount {
		return fmt.Errorf("insufficient wallet balance: %w", apperr.ErrInvalidArgument)
	}
	u.WalletBalance -= amount
	mm.users[id] = u
	return nil
}

func (m *memUsers) Credit(_ context.Context, id string, amount float64) error {
	mm := (*Memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	u, ok := mm.users[id]
	if !ok {
		return fmt.Errorf("user %s: %w", id, apperr.ErrNotFound)
	}
	u.WalletBalance += amount
	mm.users[id] = u
	return nil
}

func (m *memUsers) IncTotalErrands(_ context.Context, id string) error {
	mm := (*Memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	u, ok := mm.users[id]
	if !ok {
		return fmt.Errorf("user %s: %w", id, apperr.ErrNotFound)
	}
	u.TotalErrands++
	mm.users[id] = u
	return nil
}

type memErrands Memory

func (m *memErrands) Create(_ context.Context, e *models.Errand) (string, error) {
	mm := (*Memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if e.ID == "" {
		e.ID = mm.nextID("errand")
	}
	if e.Bids == nil {
		e.Bids = []models.Bid{}
	}
	e.CreatedAt = time.Now()
	mm.errands[e.ID] = cloneErrand(*e)
	mm.errandOrder = append(mm.errandOrder, e.ID)
	return e.ID, nil
}

func (m *memErrands) GetByID(_ context.Context, id string) (*models.Errand, error) {
	mm := (*Memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	e, ok := mm.errands[id]
	if !ok {
		return nil, fmt.Errorf("errand %s: %w", id, apperr.ErrNotFound)
	}
	e = cloneErrand(e)
	return &e, nil
}

func (m *memErrands) ListByPoster(_ context.Context, posterID string) ([]models.Errand, error) {
	mm := (*Memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	// Newest first, matching the Mongo sort on created_at.
	var out []models.Errand
	for i := len(mm.errandOrder) - 1; i >= 0; i-- {
		e := mm.errands[mm.errandOrder[i]]
		if e.PosterID == posterID {
			out = append(out, cloneErrand(e))
		}
	}
	return out, nil
}

func (m *memErrands) AppendBid(_ context.Context, id string, bid models.Bid) error {
	mm := (*Memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	e, ok := mm.errands[id]
	if !ok {
		return fmt.Errorf("errand %s: %w", id, apperr.ErrNotFound)
	}
	if e.Status != models.StatusPending {
		return fmt.Errorf("errand %s is %s: %w", id, e.Status, apperr.ErrInvalidState)
	}
	e.Bids = append(append([]models.Bid(nil), e.Bids...), bid)
	mm.errands[id] = e
	return nil
}

func (m *memErrands) ReplaceBids(_ context.Context, id string, expectLen int, bids []models.Bid) error {
	mm := (*Memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	e, ok := mm.errands[id]
	if !ok {
		return fmt.Errorf("errand %s: %w", id, apperr.ErrNotFound)
	}
	if e.Status != models.StatusPending || len(e.Bids) != expectLen {
		return fmt.Errorf("errand %s: %w", id, apperr.ErrInvalidState)
	}
	e.Bids = append([]models.Bid(nil), bids...)
	mm.errands[id] = e
	return nil
}

func (m *memErrands) ReservePayment(_ context.Context, id, paymentID string) error {
	mm := (*Memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	e, ok := mm.errands[id]
	if !ok {
		return fmt.Errorf("errand %s: %w", id, apperr.ErrNotFound)
	}
	if e.Status != models.StatusPending || e.PendingPaymentID != "" {
		return fmt.Errorf("errand %s: %w", id, apperr.ErrInvalidState)
	}
	e.PendingPaymentID = paymentID
	mm.errands[id] = e
	return nil
}

func (m *memErrands) ClearPendingPayment(_ context.Context, id string) error {
	mm := (*Memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	e, ok := mm.errands[id]
	if !ok {
		return nil
	}
	e.PendingPaymentID = ""
	mm.errands[id] = e
	return nil
}

func (m *memErrands) Activate(_ context.Context, id string, a Assignment) error {
	mm := (*Memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	e, ok := mm.errands[id]
	if !ok {
		return fmt.Errorf("errand %s: %w", id, apperr.ErrNotFound)
	}
	if e.Status != models.StatusPending {
		return fmt.Errorf("errand %s is %s: %w", id, e.Status, apperr.ErrInvalidState)
	}
	at := a.At
	e.Status = models.StatusActive
	e.AssignedRunnerID = a.RunnerID
	e.AssignedRunnerName = a.RunnerName
	e.AcceptedBidAmount = a.Amount
	e.ServiceFee = a.ServiceFee
	e.RunnerAmount = a.RunnerAmount
	e.PendingPaymentID = a.PaymentID
	e.AcceptedAt = &at
	mm.errands[id] = e
	return nil
}

func (m *memErrands) Start(_ context.Context, id string, at time.Time) error {
	return m.transition(id, models.StatusActive, models.StatusInProgress, func(e *models.Errand) {
		e.StartedAt = &at
	})
}

func (m *memErrands) RequestCompletion(_ context.Context, id, notes string, at time.Time) error {
	return m.transition(id, models.StatusInProgress, models.StatusPendingApproval, func(e *models.Errand) {
		e.CompletionRequestedAt = &at
		if notes != "" {
			e.CompletionNotes = notes
		}
	})
}

func (m *memErrands) Complete(_ context.Context, id string, at time.Time) error {
	return m.transition(id, models.StatusPendingApproval, models.StatusCompleted, func(e *models.Errand) {
		e.CompletedAt = &at
	})
}

func (m *memErrands) MarkDisputed(_ context.Context, id string, at time.Time) error {
	return m.transition(id, models.StatusPendingApproval, models.StatusDisputed, func(e *models.Errand) {
		e.DisputedAt = &at
	})
}

func (m *memErrands) transition(id, from, to string, apply func(*models.Errand)) error {
	mm := (*Memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	e, ok := mm.errands[id]
	if !ok {
		return fmt.Errorf("errand %s: %w", id, apperr.ErrNotFound)
	}
	if e.Status != from {
		return fmt.Errorf("errand %s is %s, want %s: %w", id, e.Status, from, apperr.ErrInvalidState)
	}
	e.Status = to
	apply(&e)
	mm.errands[id] = e
	return nil
}

func cloneErrand(e models.Errand) models.Errand {
	e.Bids = append([]models.Bid(nil), e.Bids...)
	return e
}

type memPayments Memory

func (m *memPayments) Create(_ context.Context, p *models.Payment) (string, error) {
	mm := (*Memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if p.ID == "" {
		p.ID = mm.nextID("payment")
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	mm.payments[p.ID] = *p
	mm.paymentOrder = append(mm.paymentOrder, p.ID)
	return p.ID, nil
}

func (m *memPayments) GetByID(_ context.Context, id string) (*models.Payment, error) {
	mm := (*Memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	p, ok := mm.payments[id]
	if !ok {
		return nil, fmt.Errorf("payment %s: %w", id, apperr.ErrNotFound)
	}
	return &p, nil
}

func (m *memPayments) GetByTransactionID(_ context.Context, transactionID string) (*models.Payment, error) {
	mm := (*Memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	for _, p := range mm.payments {
		if p.TransactionID == transactionID {
			p := p
			return &p, nil
		}
	}
	return nil, fmt.Errorf("transaction %s: %w", transactionID, apperr.ErrNotFound)
}

func (m *memPayments) ResolveIfPending(_ context.Context, transactionID, to string) (bool, error) {
	mm := (*Memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	for id, p := range mm.payments {
		if p.TransactionID == transactionID {
			if p.Status != models.PaymentPending {
				return false, nil
			}
			p.Status = to
			p.UpdatedAt = time.Now()
			mm.payments[id] = p
			return true, nil
		}
	}
	return false, nil
}

func (m *memPayments) ListByPoster(_ context.Context, posterID string, limit int64) ([]models.Payment, error) {
	mm := (*Memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	var out []models.Payment
	for i := len(mm.paymentOrder) - 1; i >= 0 && int64(len(out)) < limit; i-- {
		p := mm.payments[mm.paymentOrder[i]]
		if p.PosterID == posterID {
			out = append(out, p)
		}
	}
	return out, nil
}

type memTransactions Memory

func (m *memTransactions) Append(_ context.Context, t *models.Transaction) error {
	mm := (*Memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if t.ID == "" {
		t.ID = mm.nextID("txn")
	}
	t.CreatedAt = time.Now()
	mm.transactions = append(mm.transactions, *t)
	return nil
}

func (m *memTransactions) ListByUser(_ context.Context, userID string, limit int64) ([]models.Transaction, error) {
	mm := (*Memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	var out []models.Transaction
	for i := len(mm.transactions) - 1; i >= 0 && int64(len(out)) < limit; i-- {
		if mm.transactions[i].UserID == userID {
			out = append(out, mm.transactions[i])
		}
	}
	return out, nil
}

// AllTransactions returns every audit record, oldest first. Test helper.
func (m *Memory) AllTransactions() []models.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Transaction(nil), m.transactions...)
}

type memDisputes Memory

func (m *memDisputes) Create(_ context.Context, d *models.Dispute) (string, error) {
	mm := (*Memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if d.ID == "" {
		d.ID = mm.nextID("dispute")
	}
	d.CreatedAt = time.Now()
	mm.disputes[d.ID] = *d
	return d.ID, nil
}

// AllDisputes returns every dispute record. Test helper.
func (m *Memory) AllDisputes() []models.Dispute {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Dispute, 0, len(m.disputes))
	for _, d := range m.disputes {
		out = append(out, d)
	}
	return out
}

type memRunners Memory

func (m *memRunners) Get(_ context.Context, runnerID string) (*models.RunnerStats, error) {
	mm := (*Memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	st, ok := mm.runners[runnerID]
	if !ok {
		return nil, fmt.Errorf("runner %s: %w", runnerID, apperr.ErrNotFound)
	}
	return &st, nil
}

func (m *memRunners) IncAssigned(_ context.Context, runnerID string) error {
	mm := (*Memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	st := mm.runners[runnerID]
	st.RunnerID = runnerID
	st.TotalJobs++
	st.PendingJobs++
	mm.runners[runnerID] = st
	return nil
}

func (m *memRunners) IncReleased(_ context.Context, runnerID string, amount float64) error {
	mm := (*Memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	st := mm.runners[runnerID]
	st.RunnerID = runnerID
	st.CompletedJobs++
	st.PendingJobs--
	st.Earnings += amount
	mm.runners[runnerID] = st
	return nil
}

type memNotifications Memory

func (m *memNotifications) Create(_ context.Context, n *models.Notification) error {
	mm := (*Memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if n.ID == "" {
		n.ID = mm.nextID("notif")
	}
	n.CreatedAt = time.Now()
	mm.notifications = append(mm.notifications, *n)
	return nil
}

// AllNotifications returns every notification. Test helper.
func (m *Memory) AllNotifications() []models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Notification(nil), m.notifications...)
}
