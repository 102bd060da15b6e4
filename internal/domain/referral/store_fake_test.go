package referral

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/domain/balance"
	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/pkg/lock"
)

var errStorage = errors.New("storage down")

type memUser struct {
	ID        uuid.UUID
	Name      string
	Email     string
	CreatedAt time.Time
}

type memState struct {
	users     map[uuid.UUID]memUser
	balances  map[uuid.UUID]balance.Record
	codes     map[uuid.UUID]Code
	referrals []Record
}

func (s *memState) clone() *memState {
	out := &memState{
		users:     make(map[uuid.UUID]memUser, len(s.users)),
		balances:  make(map[uuid.UUID]balance.Record, len(s.balances)),
		codes:     make(map[uuid.UUID]Code, len(s.codes)),
		referrals: append([]Record(nil), s.referrals...),
	}
	for k, v := range s.users {
		out.users[k] = v
	}
	for k, v := range s.balances {
		if v.AgentID != nil {
			id := *v.AgentID
			v.AgentID = &id
		}
		out.balances[k] = v
	}
	for k, v := range s.codes {
		out.codes[k] = v
	}
	return out
}

// memStore is an in-memory Store. Transactions are serialized and rolled
// back by restoring a snapshot.
type memStore struct {
	mu     sync.Mutex
	state  *memState
	failOn string
	txs    int
}

func newMemStore() *memStore {
	return &memStore{state: &memState{
		users:    map[uuid.UUID]memUser{},
		balances: map[uuid.UUID]balance.Record{},
		codes:    map[uuid.UUID]Code{},
	}}
}

func (m *memStore) InTx(ctx context.Context, fn func(q Queries) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs++

	snapshot := m.state.clone()
	if err := fn(&memQueries{st: m.state, failOn: m.failOn}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (m *memStore) addUser(name string, seq int) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.state.users[id] = memUser{
		ID:        id,
		Name:      name,
		Email:     name + "@test.com",
		CreatedAt: time.Date(2024, 1, 1, 0, 0, seq, 0, time.UTC),
	}
	return id
}

func (m *memStore) addBalance(userID uuid.UUID, role balance.Role, agentID *uuid.UUID, seq int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at := time.Date(2024, 1, 1, 0, 0, seq, 0, time.UTC)
	m.state.balances[userID] = balance.Record{
		UserID: userID, Coins: 1000, Role: role, AgentID: agentID, CreatedAt: at, UpdatedAt: at,
	}
}

func (m *memStore) addCode(userID uuid.UUID, code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.codes[userID] = Code{UserID: userID, ReferralCode: code, CreatedAt: time.Now().UTC()}
}

func (m *memStore) balance(userID uuid.UUID) (balance.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.state.balances[userID]
	return rec, ok
}

func (m *memStore) code(userID uuid.UUID) (Code, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.state.codes[userID]
	return c, ok
}

func (m *memStore) referralsFor(referredID uuid.UUID) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, r := range m.state.referrals {
		if r.ReferredUserID == referredID {
			out = append(out, r)
		}
	}
	return out
}

func (m *memStore) referralCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.referrals)
}

type memQueries struct {
	st     *memState
	failOn string
}

func (q *memQueries) fail(op string) error {
	if q.failOn == op {
		return errStorage
	}
	return nil
}

func (q *memQueries) GetBalance(ctx context.Context, userID uuid.UUID) (*balance.Record, error) {
	if err := q.fail("GetBalance"); err != nil {
		return nil, err
	}
	rec, ok := q.st.balances[userID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (q *memQueries) GetBalanceForUpdate(ctx context.Context, userID uuid.UUID) (*balance.Record, error) {
	return q.GetBalance(ctx, userID)
}

func (q *memQueries) CreateBalance(ctx context.Context, rec *balance.Record) (bool, error) {
	if err := q.fail("CreateBalance"); err != nil {
		return false, err
	}
	if _, ok := q.st.balances[rec.UserID]; ok {
		return false, nil
	}
	q.st.balances[rec.UserID] = *rec
	return true, nil
}

func (q *memQueries) ListAgents(ctx context.Context) ([]balance.Record, error) {
	if err := q.fail("ListAgents"); err != nil {
		return nil, err
	}
	var out []balance.Record
	for _, rec := range q.st.balances {
		if rec.Role == balance.RoleAgent {
			out = append(out, rec)
		}
	}
	sortRecords(out)
	return out, nil
}

func (q *memQueries) ListUnassigned(ctx context.Context) ([]balance.Record, error) {
	var out []balance.Record
	for _, rec := range q.st.balances {
		if rec.Role == balance.RoleUser && rec.AgentID == nil {
			out = append(out, rec)
		}
	}
	sortRecords(out)
	return out, nil
}

func (q *memQueries) SetAgent(ctx context.Context, userID uuid.UUID, agentID *uuid.UUID, now time.Time) error {
	if err := q.fail("SetAgent"); err != nil {
		return err
	}
	rec, ok := q.st.balances[userID]
	if !ok {
		return balance.ErrBalanceNotFound
	}
	rec.AgentID = agentID
	rec.UpdatedAt = now
	q.st.balances[userID] = rec
	return nil
}

func (q *memQueries) AssignAgentIfUnassigned(ctx context.Context, userID, agentID uuid.UUID, now time.Time) (bool, error) {
	if err := q.fail("AssignAgentIfUnassigned"); err != nil {
		return false, err
	}
	rec, ok := q.st.balances[userID]
	if !ok || rec.AgentID != nil {
		return false, nil
	}
	if agent, ok := q.st.balances[agentID]; !ok || agent.Role != balance.RoleAgent {
		return false, nil
	}
	rec.AgentID = &agentID
	rec.UpdatedAt = now
	q.st.balances[userID] = rec
	return true, nil
}

func (q *memQueries) UpdateRole(ctx context.Context, userID uuid.UUID, role balance.Role, now time.Time) error {
	if err := q.fail("UpdateRole"); err != nil {
		return err
	}
	rec, ok := q.st.balances[userID]
	if !ok {
		return balance.ErrBalanceNotFound
	}
	rec.Role = role
	rec.UpdatedAt = now
	q.st.balances[userID] = rec
	return nil
}

func (q *memQueries) CreateMissingBalances(ctx context.Context, coins int64, role balance.Role, now time.Time) ([]uuid.UUID, error) {
	if err := q.fail("CreateMissingBalances"); err != nil {
		return nil, err
	}
	var created []uuid.UUID
	for id := range q.st.users {
		if _, ok := q.st.balances[id]; ok {
			continue
		}
		q.st.balances[id] = balance.Record{UserID: id, Coins: coins, Role: role, CreatedAt: now, UpdatedAt: now}
		created = append(created, id)
	}
	return created, nil
}

func (q *memQueries) GetCodeByUser(ctx context.Context, userID uuid.UUID) (*Code, error) {
	if err := q.fail("GetCodeByUser"); err != nil {
		return nil, err
	}
	c, ok := q.st.codes[userID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (q *memQueries) GetCodeByValue(ctx context.Context, code string) (*Code, error) {
	if err := q.fail("GetCodeByValue"); err != nil {
		return nil, err
	}
	for _, c := range q.st.codes {
		if c.ReferralCode == code {
			return &c, nil
		}
	}
	return nil, nil
}

func (q *memQueries) InsertCode(ctx context.Context, code *Code) (bool, error) {
	if err := q.fail("InsertCode"); err != nil {
		return false, err
	}
	if _, ok := q.st.codes[code.UserID]; ok {
		return false, nil
	}
	for _, c := range q.st.codes {
		if c.ReferralCode == code.ReferralCode {
			return false, nil
		}
	}
	q.st.codes[code.UserID] = *code
	return true, nil
}

func (q *memQueries) GetReferralByReferred(ctx context.Context, referredUserID uuid.UUID) (*Record, error) {
	for _, r := range q.st.referrals {
		if r.ReferredUserID == referredUserID {
			return &r, nil
		}
	}
	return nil, nil
}

func (q *memQueries) InsertReferral(ctx context.Context, rec *Record) error {
	if err := q.fail("InsertReferral"); err != nil {
		return err
	}
	for _, r := range q.st.referrals {
		if r.ReferredUserID == rec.ReferredUserID {
			return ErrAlreadyReferred
		}
	}
	q.st.referrals = append(q.st.referrals, *rec)
	return nil
}

func (q *memQueries) ListAssignedUsers(ctx context.Context, agentID uuid.UUID) ([]AssignedUser, error) {
	var out []AssignedUser
	for _, rec := range q.st.balances {
		if rec.AgentID == nil || *rec.AgentID != agentID {
			continue
		}
		u := q.st.users[rec.UserID]
		item := AssignedUser{ID: u.ID, Name: u.Name, Email: u.Email, CreatedAt: u.CreatedAt, JoinedAt: rec.UpdatedAt}
		for _, r := range q.st.referrals {
			if r.ReferredUserID == rec.UserID && r.ReferrerUserID == agentID {
				item.RewardAmount = r.RewardAmount
				if r.CompletedAt != nil {
					item.JoinedAt = *r.CompletedAt
				}
			}
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.After(out[j].JoinedAt)
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out, nil
}

func sortRecords(recs []balance.Record) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.Before(recs[j].CreatedAt)
		}
		return bytes.Compare(recs[i].UserID[:], recs[j].UserID[:]) < 0
	})
}

// fakeLocker grants the lock unless held is set.
type fakeLocker struct {
	held     bool
	acquired int
	released int
}

func (l *fakeLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), error) {
	if l.held {
		return nil, lock.ErrNotAcquired
	}
	l.acquired++
	return func() { l.released++ }, nil
}
