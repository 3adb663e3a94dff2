package grants

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"equity-portal/grant-ledger-backend/internal/assets"
)

var testDBCounter atomic.Int64

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, testDBCounter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	return db
}

type testEnv struct {
	db       *gorm.DB
	svc      *Service
	equity   *assets.CappedEquityLedger
	payment  *assets.PaymentLedger
	treasury uuid.UUID
	holder   uuid.UUID
	admin    Actor
	now      time.Time
}

// newTestEnv wires a full in-memory ledger: grant store, capped equity asset
// with zero decimals so one option mints one unit, and a payment ledger the
// service pulls strike payments through.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := openTestDB(t)

	repo := NewGormRepository(db)
	require.NoError(t, repo.Migrate())

	treasury := uuid.New()
	equity, err := assets.NewCappedEquityLedger(db, "EQTY", 0, 1_000_000)
	require.NoError(t, err)
	payment, err := assets.NewPaymentLedger(db, treasury)
	require.NoError(t, err)

	svc, err := NewService(db, repo, equity, payment, treasury, nil)
	require.NoError(t, err)

	env := &testEnv{
		db:       db,
		svc:      svc,
		equity:   equity,
		payment:  payment,
		treasury: treasury,
		holder:   uuid.New(),
		admin:    Actor{ID: uuid.New(), Admin: true},
		now:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	svc.SetClock(func() time.Time { return env.now })
	return env
}

func (e *testEnv) holderActor() Actor {
	return Actor{ID: e.holder}
}

// issueStandard issues the 10000-option grant used across the settlement
// tests: one year cliff, four year duration, 90 day post-termination window,
// strike price 4.
func (e *testEnv) issueStandard(t *testing.T) *OptionGrant {
	t.Helper()
	g, err := e.svc.IssueGrant(context.Background(), &IssueGrantRequest{
		Holder:         e.holder,
		TotalOptions:   10000,
		StrikePrice:    4,
		VestingStart:   e.now,
		CliffSeconds:   365 * 24 * 3600,
		VestingSeconds: 1460 * 24 * 3600,
		WindowSeconds:  90 * 24 * 3600,
	}, e.admin)
	require.NoError(t, err)
	return g
}

// fund deposits payment balance for the holder and approves the ledger
// operator to pull it.
func (e *testEnv) fund(t *testing.T, amount int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.payment.Deposit(ctx, e.holder, big.NewInt(amount)))
	require.NoError(t, e.payment.Approve(ctx, e.holder, big.NewInt(amount)))
}

func (e *testEnv) advance(d time.Duration) {
	e.now = e.now.Add(d)
}
