package referral

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/domain/balance"
	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/domain/user"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(store *memStore) (*Service, *fakeLocker) {
	locker := &fakeLocker{}
	svc := NewService(store, locker, Config{
		WelcomeCoins: DefaultWelcomeCoins,
		RewardAmount: DefaultRewardAmount,
	})
	svc.now = func() time.Time { return fixedNow }
	svc.single = RandomSelector{IntN: func(n int) int { return 0 }}
	return svc, locker
}

func seededCodes(codes ...string) CodeGenerator {
	i := 0
	return func(prefix string, now time.Time) (string, error) {
		c := prefix + codes[i%len(codes)]
		i++
		return c, nil
	}
}

func TestGetOrCreateCodeIsIdempotent(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	a := store.addUser("a", 1)

	first, err := svc.GetOrCreateCode(context.Background(), a)
	require.NoError(t, err)
	assert.True(t, first.IsNew)
	assert.True(t, strings.HasPrefix(first.Code.ReferralCode, PrefixUser))
	assert.Equal(t, strings.ToUpper(first.Code.ReferralCode), first.Code.ReferralCode)

	second, err := svc.GetOrCreateCode(context.Background(), a)
	require.NoError(t, err)
	assert.False(t, second.IsNew)
	assert.Equal(t, first.Code.ReferralCode, second.Code.ReferralCode)
}

func TestGetOrCreateCodeRetriesOnCollision(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	other := store.addUser("other", 1)
	store.addCode(other, "REFTAKEN")
	a := store.addUser("a", 2)

	svc.newCode = seededCodes("TAKEN", "FREE")

	issued, err := svc.GetOrCreateCode(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, "REFFREE", issued.Code.ReferralCode)
}

func TestGetOrCreateCodeGivesUpAfterMaxAttempts(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	other := store.addUser("other", 1)
	store.addCode(other, "REFTAKEN")
	a := store.addUser("a", 2)

	svc.newCode = seededCodes("TAKEN")

	_, err := svc.GetOrCreateCode(context.Background(), a)
	require.ErrorIs(t, err, ErrCodeSpaceExhausted)
	_, ok := store.code(a)
	assert.False(t, ok)
}

func TestGetOrCreateCodeConcurrentCallersShareOneCode(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	a := store.addUser("a", 1)

	const callers = 8
	codes := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			issued, err := svc.GetOrCreateCode(context.Background(), a)
			if err == nil {
				codes[i] = issued.Code.ReferralCode
			}
		}(i)
	}
	wg.Wait()

	for _, c := range codes {
		assert.Equal(t, codes[0], c)
	}
}

func TestApplyCodePromotesReferrer(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	b := store.addUser("b", 1)
	c := store.addUser("c", 2)
	store.addBalance(b, balance.RoleUser, nil, 1)
	store.addBalance(c, balance.RoleUser, nil, 2)
	store.addCode(b, "REFXYZ1")

	result, err := svc.ApplyCode(context.Background(), c, "  refxyz1 ")
	require.NoError(t, err)
	assert.True(t, result.ReferrerPromoted)
	assert.Equal(t, b, result.ReferrerID)
	assert.Equal(t, msgAppliedPromoted, result.Message)

	referrer, _ := store.balance(b)
	assert.Equal(t, balance.RoleAgent, referrer.Role)
	_, hasCode := store.code(b)
	assert.True(t, hasCode)

	referred, _ := store.balance(c)
	require.NotNil(t, referred.AgentID)
	assert.Equal(t, b, *referred.AgentID)

	records := store.referralsFor(c)
	require.Len(t, records, 1)
	assert.Equal(t, DefaultRewardAmount, records[0].RewardAmount)
	assert.Equal(t, StatusCompleted, records[0].Status)
	assert.Equal(t, "REFXYZ1", records[0].ReferralCode)
	require.NotNil(t, records[0].CompletedAt)
	assert.Equal(t, fixedNow, *records[0].CompletedAt)
}

func TestApplyCodeKeepsAgentAndAdminRoles(t *testing.T) {
	for _, role := range []balance.Role{balance.RoleAgent, balance.RoleAdmin} {
		t.Run(string(role), func(t *testing.T) {
			store := newMemStore()
			svc, _ := newTestService(store)
			ref := store.addUser("ref", 1)
			c := store.addUser("c", 2)
			store.addBalance(ref, role, nil, 1)
			store.addBalance(c, balance.RoleUser, nil, 2)
			store.addCode(ref, "AGENTCODE")

			result, err := svc.ApplyCode(context.Background(), c, "AGENTCODE")
			require.NoError(t, err)
			assert.False(t, result.ReferrerPromoted)
			assert.Equal(t, msgApplied, result.Message)

			referrer, _ := store.balance(ref)
			assert.Equal(t, role, referrer.Role)
		})
	}
}

func TestApplyCodeCreatesMissingBalanceForCaller(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	b := store.addUser("b", 1)
	c := store.addUser("c", 2)
	store.addBalance(b, balance.RoleAgent, nil, 1)
	store.addCode(b, "REFB")

	_, err := svc.ApplyCode(context.Background(), c, "REFB")
	require.NoError(t, err)

	rec, ok := store.balance(c)
	require.True(t, ok)
	assert.Equal(t, DefaultWelcomeCoins, rec.Coins)
	assert.Equal(t, balance.RoleUser, rec.Role)
	require.NotNil(t, rec.AgentID)
	assert.Equal(t, b, *rec.AgentID)
}

func TestApplyCodeValidation(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	b := store.addUser("b", 1)
	c := store.addUser("c", 2)
	orphan := store.addUser("orphan", 3)
	store.addBalance(b, balance.RoleUser, nil, 1)
	store.addBalance(c, balance.RoleUser, nil, 2)
	store.addCode(b, "REFB")
	store.addCode(c, "REFC")
	store.addCode(orphan, "REFORPHAN")

	ctx := context.Background()

	_, err := svc.ApplyCode(ctx, c, "   ")
	assert.ErrorIs(t, err, ErrCodeRequired)

	_, err = svc.ApplyCode(ctx, c, "NOPE")
	assert.ErrorIs(t, err, ErrInvalidCode)

	_, err = svc.ApplyCode(ctx, c, "refc")
	assert.ErrorIs(t, err, ErrSelfReferral)

	_, err = svc.ApplyCode(ctx, c, "REFORPHAN")
	assert.ErrorIs(t, err, ErrReferrerNotFound)

	assert.Zero(t, store.referralCount())
	rec, _ := store.balance(c)
	assert.Nil(t, rec.AgentID)
	_, orphanHasBalance := store.balance(orphan)
	assert.False(t, orphanHasBalance)
}

func TestApplyCodeSecondCodeIsRejected(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	b := store.addUser("b", 1)
	d := store.addUser("d", 2)
	c := store.addUser("c", 3)
	store.addBalance(b, balance.RoleUser, nil, 1)
	store.addBalance(d, balance.RoleUser, nil, 2)
	store.addBalance(c, balance.RoleUser, nil, 3)
	store.addCode(b, "REFB")
	store.addCode(d, "REFD")

	_, err := svc.ApplyCode(context.Background(), c, "REFB")
	require.NoError(t, err)

	_, err = svc.ApplyCode(context.Background(), c, "REFD")
	require.ErrorIs(t, err, ErrAlreadyReferred)

	assert.Len(t, store.referralsFor(c), 1)
	other, _ := store.balance(d)
	assert.Equal(t, balance.RoleUser, other.Role, "rejected apply must not promote")
	rec, _ := store.balance(c)
	assert.Equal(t, b, *rec.AgentID)
}

func TestApplyCodeConcurrentAppliesLeaveOneRecord(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	c := store.addUser("c", 0)
	store.addBalance(c, balance.RoleUser, nil, 0)

	codes := make([]string, 6)
	for i := range codes {
		ref := store.addUser("ref", i+1)
		store.addBalance(ref, balance.RoleUser, nil, i+1)
		codes[i] = "REF" + string(rune('A'+i))
		store.addCode(ref, codes[i])
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for _, code := range codes {
		wg.Add(1)
		go func(code string) {
			defer wg.Done()
			if _, err := svc.ApplyCode(context.Background(), c, code); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(code)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Len(t, store.referralsFor(c), 1)
}

func TestApplyCodeRollsBackOnStorageFailure(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	b := store.addUser("b", 1)
	c := store.addUser("c", 2)
	store.addBalance(b, balance.RoleUser, nil, 1)
	store.addBalance(c, balance.RoleUser, nil, 2)
	store.addCode(b, "REFB")
	store.failOn = "InsertReferral"

	_, err := svc.ApplyCode(context.Background(), c, "REFB")
	require.ErrorIs(t, err, errStorage)

	referrer, _ := store.balance(b)
	assert.Equal(t, balance.RoleUser, referrer.Role)
	rec, _ := store.balance(c)
	assert.Nil(t, rec.AgentID)
	assert.Zero(t, store.referralCount())
}

func TestAutoAssign(t *testing.T) {
	t.Run("no balance", func(t *testing.T) {
		store := newMemStore()
		svc, _ := newTestService(store)

		_, err := svc.AutoAssign(context.Background(), store.addUser("u", 1))
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("no agents", func(t *testing.T) {
		store := newMemStore()
		svc, _ := newTestService(store)
		u := store.addUser("u", 1)
		store.addBalance(u, balance.RoleUser, nil, 1)

		result, err := svc.AutoAssign(context.Background(), u)
		require.NoError(t, err)
		assert.False(t, result.Assigned)
		assert.Equal(t, msgNoAgents, result.Message)
	})

	t.Run("assigns picked agent", func(t *testing.T) {
		store := newMemStore()
		svc, _ := newTestService(store)
		x := store.addUser("x", 1)
		y := store.addUser("y", 2)
		u := store.addUser("u", 3)
		store.addBalance(x, balance.RoleAgent, nil, 1)
		store.addBalance(y, balance.RoleAgent, nil, 2)
		store.addBalance(u, balance.RoleUser, nil, 3)
		svc.single = RandomSelector{IntN: func(n int) int { return n - 1 }}

		result, err := svc.AutoAssign(context.Background(), u)
		require.NoError(t, err)
		assert.True(t, result.Assigned)
		require.NotNil(t, result.AgentID)
		assert.Equal(t, y, *result.AgentID)

		again, err := svc.AutoAssign(context.Background(), u)
		require.NoError(t, err)
		assert.False(t, again.Assigned)
		assert.Equal(t, msgAlreadyAssigned, again.Message)
		assert.Equal(t, y, *again.AgentID)
	})

	t.Run("agent is never its own agent", func(t *testing.T) {
		store := newMemStore()
		svc, _ := newTestService(store)
		x := store.addUser("x", 1)
		store.addBalance(x, balance.RoleAgent, nil, 1)

		result, err := svc.AutoAssign(context.Background(), x)
		require.NoError(t, err)
		assert.False(t, result.Assigned)
	})
}

func TestBulkAutoAssignRoundRobin(t *testing.T) {
	store := newMemStore()
	svc, locker := newTestService(store)
	admin := store.addUser("admin", 0)
	store.addBalance(admin, balance.RoleAdmin, nil, 0)
	x := store.addUser("x", 1)
	y := store.addUser("y", 2)
	store.addBalance(x, balance.RoleAgent, nil, 1)
	store.addBalance(y, balance.RoleAgent, nil, 2)

	users := make([]uuid.UUID, 5)
	for i := range users {
		users[i] = store.addUser("u", 10+i)
		store.addBalance(users[i], balance.RoleUser, nil, 10+i)
	}

	result, err := svc.BulkAutoAssign(context.Background(), admin)
	require.NoError(t, err)
	assert.Equal(t, 5, result.UsersAssigned)
	assert.Equal(t, 2, result.AgentCount)
	assert.Equal(t, "Successfully assigned 5 previously unassigned users to 2 agents.", result.Message)

	want := []uuid.UUID{x, y, x, y, x}
	for i, u := range users {
		rec, _ := store.balance(u)
		require.NotNil(t, rec.AgentID)
		assert.Equal(t, want[i], *rec.AgentID, "user %d", i)
	}
	assert.Equal(t, 1, locker.acquired)
	assert.Equal(t, 1, locker.released)

	again, err := svc.BulkAutoAssign(context.Background(), admin)
	require.NoError(t, err)
	assert.Zero(t, again.UsersAssigned)
	assert.Equal(t, msgNobodyUnassigned, again.Message)
}

func TestBulkAutoAssignFairness(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	admin := store.addUser("admin", 0)
	store.addBalance(admin, balance.RoleAdmin, nil, 0)

	const agents, users = 3, 11
	for i := 0; i < agents; i++ {
		id := store.addUser("agent", i+1)
		store.addBalance(id, balance.RoleAgent, nil, i+1)
	}
	ids := make([]uuid.UUID, users)
	for i := range ids {
		ids[i] = store.addUser("u", 100+i)
		store.addBalance(ids[i], balance.RoleUser, nil, 100+i)
	}

	_, err := svc.BulkAutoAssign(context.Background(), admin)
	require.NoError(t, err)

	load := map[uuid.UUID]int{}
	for _, id := range ids {
		rec, _ := store.balance(id)
		load[*rec.AgentID]++
	}
	require.Len(t, load, agents)
	for _, n := range load {
		assert.True(t, n == users/agents || n == users/agents+1, "unfair load %d", n)
	}
}

func TestBulkAutoAssignRepairsAndSkipsAssigned(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	admin := store.addUser("admin", 0)
	store.addBalance(admin, balance.RoleAdmin, nil, 0)
	x := store.addUser("x", 1)
	store.addBalance(x, balance.RoleAgent, nil, 1)
	assigned := store.addUser("assigned", 2)
	store.addBalance(assigned, balance.RoleUser, &x, 2)
	missing := store.addUser("missing", 3)

	result, err := svc.BulkAutoAssign(context.Background(), admin)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Repaired)
	assert.Equal(t, 1, result.UsersAssigned)

	rec, ok := store.balance(missing)
	require.True(t, ok)
	assert.Equal(t, balance.RepairCoins, rec.Coins)
	assert.Equal(t, x, *rec.AgentID)
}

func TestBulkAutoAssignNoAgentsMutatesNothing(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	admin := store.addUser("admin", 0)
	store.addBalance(admin, balance.RoleAdmin, nil, 0)
	u := store.addUser("u", 1)
	store.addBalance(u, balance.RoleUser, nil, 1)
	missing := store.addUser("missing", 2)

	_, err := svc.BulkAutoAssign(context.Background(), admin)
	require.ErrorIs(t, err, ErrNoAgentsAvailable)

	rec, _ := store.balance(u)
	assert.Nil(t, rec.AgentID)
	_, ok := store.balance(missing)
	assert.False(t, ok)
}

func TestBulkAutoAssignRequiresAdmin(t *testing.T) {
	store := newMemStore()
	svc, locker := newTestService(store)
	agent := store.addUser("agent", 1)
	store.addBalance(agent, balance.RoleAgent, nil, 1)

	_, err := svc.BulkAutoAssign(context.Background(), agent)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = svc.BulkAutoAssign(context.Background(), store.addUser("ghost", 2))
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Zero(t, locker.acquired)
}

func TestBulkAutoAssignLockHeld(t *testing.T) {
	store := newMemStore()
	svc, locker := newTestService(store)
	admin := store.addUser("admin", 0)
	store.addBalance(admin, balance.RoleAdmin, nil, 0)
	locker.held = true

	_, err := svc.BulkAutoAssign(context.Background(), admin)
	assert.ErrorIs(t, err, ErrBulkAssignInProgress)
}

func TestRepairMissingBalancesIsIdempotent(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	a := store.addUser("a", 1)
	b := store.addUser("b", 2)
	store.addBalance(a, balance.RoleUser, nil, 1)

	created, err := svc.RepairMissingBalances(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{b}, created)

	created, err = svc.RepairMissingBalances(context.Background())
	require.NoError(t, err)
	assert.Empty(t, created)

	rec, _ := store.balance(b)
	assert.Equal(t, balance.RoleUser, rec.Role)
	assert.Zero(t, rec.Coins)
}

func TestOnUserCreated(t *testing.T) {
	t.Run("no agents", func(t *testing.T) {
		store := newMemStore()
		svc, _ := newTestService(store)
		u := store.addUser("u", 1)

		svc.OnUserCreated(context.Background(), user.CreatedEvent{UserID: u, CreatedAt: fixedNow})

		rec, ok := store.balance(u)
		require.True(t, ok)
		assert.Equal(t, DefaultWelcomeCoins, rec.Coins)
		assert.Equal(t, balance.RoleUser, rec.Role)
		assert.Nil(t, rec.AgentID)
	})

	t.Run("random agent", func(t *testing.T) {
		store := newMemStore()
		svc, _ := newTestService(store)
		x := store.addUser("x", 1)
		store.addBalance(x, balance.RoleAgent, nil, 1)
		u := store.addUser("u", 2)

		svc.OnUserCreated(context.Background(), user.CreatedEvent{UserID: u})

		rec, _ := store.balance(u)
		require.NotNil(t, rec.AgentID)
		assert.Equal(t, x, *rec.AgentID)
	})

	t.Run("fires twice", func(t *testing.T) {
		store := newMemStore()
		svc, _ := newTestService(store)
		u := store.addUser("u", 1)
		store.addBalance(u, balance.RoleAgent, nil, 1)

		svc.OnUserCreated(context.Background(), user.CreatedEvent{UserID: u})

		rec, _ := store.balance(u)
		assert.Equal(t, balance.RoleAgent, rec.Role)
	})

	t.Run("storage failure is swallowed", func(t *testing.T) {
		store := newMemStore()
		svc, _ := newTestService(store)
		u := store.addUser("u", 1)
		store.failOn = "CreateBalance"

		assert.NotPanics(t, func() {
			svc.OnUserCreated(context.Background(), user.CreatedEvent{UserID: u})
		})
		_, ok := store.balance(u)
		assert.False(t, ok)
	})

	t.Run("selector panic is swallowed", func(t *testing.T) {
		store := newMemStore()
		svc, _ := newTestService(store)
		x := store.addUser("x", 1)
		store.addBalance(x, balance.RoleAgent, nil, 1)
		svc.single = RandomSelector{IntN: func(n int) int { panic("boom") }}

		assert.NotPanics(t, func() {
			svc.OnUserCreated(context.Background(), user.CreatedEvent{UserID: store.addUser("u", 2)})
		})
	})
}

func TestAgentReferrals(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	b := store.addUser("b", 1)
	c := store.addUser("c", 2)
	d := store.addUser("d", 3)
	store.addBalance(b, balance.RoleUser, nil, 1)
	store.addBalance(c, balance.RoleUser, nil, 2)
	store.addBalance(d, balance.RoleUser, &b, 3)
	store.addCode(b, "REFB")

	_, err := svc.ApplyCode(context.Background(), c, "REFB")
	require.NoError(t, err)
	// A later ledger update must not move the referral's join time.
	store.addBalance(c, balance.RoleUser, &b, 100)

	out, err := svc.AgentReferrals(context.Background(), b)
	require.NoError(t, err)
	require.NotNil(t, out.ReferralCode)
	assert.Equal(t, "REFB", *out.ReferralCode)
	require.Len(t, out.Users, 2)

	assert.Equal(t, c, out.Users[0].ID, "newest join first")
	assert.Equal(t, fixedNow, out.Users[0].JoinedAt, "referred users joined when the referral completed")
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 3, 0, time.UTC), out.Users[1].JoinedAt, "assigned users joined at their last ledger update")

	rewards := map[uuid.UUID]int64{}
	for _, u := range out.Users {
		rewards[u.ID] = u.RewardAmount
	}
	assert.Equal(t, DefaultRewardAmount, rewards[c])
	assert.Zero(t, rewards[d])

	empty, err := svc.AgentReferrals(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, empty.ReferralCode)
	assert.NotNil(t, empty.Users)
	assert.Empty(t, empty.Users)
}
