package grants

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"equity-portal/grant-ledger-backend/internal/assets"
)

func TestExerciseSettlesAtomically(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := env.issueStandard(t)
	env.fund(t, 100000)

	env.advance(730 * day)
	receipt, err := env.svc.Exercise(ctx, g.ID, 2000, env.holderActor())
	require.NoError(t, err)

	assert.Equal(t, uint64(2000), receipt.Amount)
	assert.Equal(t, "8000", receipt.Cost.String())
	assert.Equal(t, "2000", receipt.MintedUnits.String())
	assert.Equal(t, uint64(2000), receipt.ExercisedOptions)
	assert.Equal(t, StatusPartiallyExercised, receipt.Status)

	// Payment moved to the treasury, equity landed with the holder.
	holderBalance, err := env.payment.BalanceOf(ctx, env.holder)
	require.NoError(t, err)
	assert.Equal(t, "92000", holderBalance.String())

	treasuryBalance, err := env.payment.BalanceOf(ctx, env.treasury)
	require.NoError(t, err)
	assert.Equal(t, "8000", treasuryBalance.String())

	equityBalance, err := env.equity.BalanceOf(ctx, env.holder)
	require.NoError(t, err)
	assert.Equal(t, "2000", equityBalance.String())

	stored, err := env.svc.GetGrant(ctx, g.ID, env.holderActor())
	require.NoError(t, err)
	assert.Equal(t, uint64(2000), stored.ExercisedOptions)
}

func TestExerciseAfterTerminationWithinWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := env.issueStandard(t)
	env.fund(t, 100000)

	env.advance(730 * day)
	require.NoError(t, env.svc.Terminate(ctx, g.ID, env.admin))

	// 30 days into the window: vested frozen at 5000, all of it exercisable.
	env.advance(30 * day)
	receipt, err := env.svc.Exercise(ctx, g.ID, 5000, env.holderActor())
	require.NoError(t, err)
	assert.Equal(t, "5000", receipt.MintedUnits.String())
	assert.Equal(t, "20000", receipt.Cost.String())

	// Nothing further vests after termination.
	_, err = env.svc.Exercise(ctx, g.ID, 1, env.holderActor())
	assert.ErrorIs(t, err, ErrNothingExercisable)
}

func TestExerciseRejectsOverVested(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := env.issueStandard(t)
	env.fund(t, 100000)

	env.advance(730 * day)
	require.NoError(t, env.svc.Terminate(ctx, g.ID, env.admin))
	env.advance(30 * day)

	_, err := env.svc.Exercise(ctx, g.ID, 5001, env.holderActor())
	var insufficient *InsufficientExercisableError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, uint64(5001), insufficient.Requested)
	assert.Equal(t, uint64(5000), insufficient.Available)
}

func TestExerciseRejectsAfterWindowCloses(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := env.issueStandard(t)
	env.fund(t, 100000)

	env.advance(730 * day)
	require.NoError(t, env.svc.Terminate(ctx, g.ID, env.admin))

	env.advance(90*day + time.Second)
	_, err := env.svc.Exercise(ctx, g.ID, 1, env.holderActor())
	assert.ErrorIs(t, err, ErrGrantExpired)
}

func TestExerciseBeforeCliff(t *testing.T) {
	env := newTestEnv(t)
	g := env.issueStandard(t)
	env.fund(t, 100000)

	env.advance(364 * day)
	_, err := env.svc.Exercise(context.Background(), g.ID, 1, env.holderActor())
	assert.ErrorIs(t, err, ErrNothingExercisable)
}

func TestExerciseRollsBackOnInsufficientAllowance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := env.issueStandard(t)

	// Funded but the allowance does not cover the cost.
	require.NoError(t, env.payment.Deposit(ctx, env.holder, big.NewInt(100000)))
	require.NoError(t, env.payment.Approve(ctx, env.holder, big.NewInt(10)))

	env.advance(730 * day)
	_, err := env.svc.Exercise(ctx, g.ID, 2000, env.holderActor())
	assert.ErrorIs(t, err, assets.ErrInsufficientAllowance)

	// The grant record update rolled back with the payment.
	stored, err := env.svc.GetGrant(ctx, g.ID, env.holderActor())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), stored.ExercisedOptions)

	equityBalance, err := env.equity.BalanceOf(ctx, env.holder)
	require.NoError(t, err)
	assert.Equal(t, "0", equityBalance.String())
}

func TestExerciseRollsBackOnSupplyCap(t *testing.T) {
	db := openTestDB(t)
	repo := NewGormRepository(db)
	require.NoError(t, repo.Migrate())

	treasury := uuid.New()
	// Cap below what the exercise needs to mint.
	equity, err := assets.NewCappedEquityLedger(db, "EQTY", 0, 100)
	require.NoError(t, err)
	payment, err := assets.NewPaymentLedger(db, treasury)
	require.NoError(t, err)

	svc, err := NewService(db, repo, equity, payment, treasury, nil)
	require.NoError(t, err)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return now.Add(730 * day) })

	ctx := context.Background()
	holder := uuid.New()
	g, err := svc.IssueGrant(ctx, &IssueGrantRequest{
		Holder:         holder,
		TotalOptions:   10000,
		StrikePrice:    4,
		VestingStart:   now,
		CliffSeconds:   365 * 24 * 3600,
		VestingSeconds: 1460 * 24 * 3600,
		WindowSeconds:  90 * 24 * 3600,
	}, Actor{ID: uuid.New(), Admin: true})
	require.NoError(t, err)

	require.NoError(t, payment.Deposit(ctx, holder, big.NewInt(100000)))
	require.NoError(t, payment.Approve(ctx, holder, big.NewInt(100000)))

	_, err = svc.Exercise(ctx, g.ID, 2000, Actor{ID: holder})
	assert.ErrorIs(t, err, assets.ErrSupplyCapExceeded)

	// The payment pull preceded the mint inside the transaction and must be
	// fully unwound.
	balance, err := payment.BalanceOf(ctx, holder)
	require.NoError(t, err)
	assert.Equal(t, "100000", balance.String())

	allowance, err := payment.AllowanceOf(ctx, holder)
	require.NoError(t, err)
	assert.Equal(t, "100000", allowance.String())

	stored, err := svc.GetGrant(ctx, g.ID, Actor{ID: holder})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), stored.ExercisedOptions)
}

func TestExercisePauseBlocksSettlement(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := env.issueStandard(t)
	env.fund(t, 100000)
	env.advance(730 * day)

	require.NoError(t, env.svc.PauseExercise(ctx, env.admin))
	_, err := env.svc.Exercise(ctx, g.ID, 100, env.holderActor())
	assert.ErrorIs(t, err, ErrExercisePaused)

	// Reads and other transitions keep working while paused.
	_, err = env.svc.Position(ctx, g.ID, env.holderActor())
	assert.NoError(t, err)

	require.NoError(t, env.svc.ResumeExercise(ctx, env.admin))
	_, err = env.svc.Exercise(ctx, g.ID, 100, env.holderActor())
	assert.NoError(t, err)
}

// recordingPayment wraps the real payment ledger and captures the grant's
// exercised counter as seen inside the settlement transaction, at the moment
// the external transfer runs.
type recordingPayment struct {
	inner           *assets.PaymentLedger
	grantID         uint64
	exercisedAtPull uint64
}

func (p *recordingPayment) Pull(ctx context.Context, tx *gorm.DB, from, to uuid.UUID, amount *big.Int) error {
	var g OptionGrant
	if err := tx.First(&g, "id = ?", p.grantID).Error; err != nil {
		return err
	}
	p.exercisedAtPull = g.ExercisedOptions
	return p.inner.Pull(ctx, tx, from, to, amount)
}

func TestExerciseRecordsBeforeTransfers(t *testing.T) {
	db := openTestDB(t)
	repo := NewGormRepository(db)
	require.NoError(t, repo.Migrate())

	treasury := uuid.New()
	equity, err := assets.NewCappedEquityLedger(db, "EQTY", 0, 1_000_000)
	require.NoError(t, err)
	payment, err := assets.NewPaymentLedger(db, treasury)
	require.NoError(t, err)
	recorder := &recordingPayment{inner: payment}

	svc, err := NewService(db, repo, equity, recorder, treasury, nil)
	require.NoError(t, err)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return now.Add(730 * day) })

	ctx := context.Background()
	holder := uuid.New()
	g, err := svc.IssueGrant(ctx, &IssueGrantRequest{
		Holder:         holder,
		TotalOptions:   10000,
		StrikePrice:    4,
		VestingStart:   now,
		CliffSeconds:   365 * 24 * 3600,
		VestingSeconds: 1460 * 24 * 3600,
		WindowSeconds:  90 * 24 * 3600,
	}, Actor{ID: uuid.New(), Admin: true})
	require.NoError(t, err)
	recorder.grantID = g.ID

	require.NoError(t, payment.Deposit(ctx, holder, big.NewInt(100000)))
	require.NoError(t, payment.Approve(ctx, holder, big.NewInt(100000)))

	_, err = svc.Exercise(ctx, g.ID, 1500, Actor{ID: holder})
	require.NoError(t, err)

	// The exercised counter was already incremented when the payment ran.
	assert.Equal(t, uint64(1500), recorder.exercisedAtPull)
}

// reentrantMinter calls back into the service from inside the settlement's
// mint step.
type reentrantMinter struct {
	svc     *Service
	grantID uint64
	admin   Actor
}

func (m *reentrantMinter) Mint(ctx context.Context, tx *gorm.DB, recipient uuid.UUID, wholeOptions uint64) (*big.Int, error) {
	if err := m.svc.Terminate(ctx, m.grantID, m.admin); err != nil {
		return nil, err
	}
	return new(big.Int).SetUint64(wholeOptions), nil
}

func TestExerciseRejectsReentrantMutation(t *testing.T) {
	db := openTestDB(t)
	repo := NewGormRepository(db)
	require.NoError(t, repo.Migrate())

	treasury := uuid.New()
	payment, err := assets.NewPaymentLedger(db, treasury)
	require.NoError(t, err)

	minter := &reentrantMinter{}
	svc, err := NewService(db, repo, minter, payment, treasury, nil)
	require.NoError(t, err)
	minter.svc = svc

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return now.Add(730 * day) })

	ctx := context.Background()
	holder := uuid.New()
	admin := Actor{ID: uuid.New(), Admin: true}
	g, err := svc.IssueGrant(ctx, &IssueGrantRequest{
		Holder:         holder,
		TotalOptions:   10000,
		StrikePrice:    4,
		VestingStart:   now,
		CliffSeconds:   365 * 24 * 3600,
		VestingSeconds: 1460 * 24 * 3600,
		WindowSeconds:  90 * 24 * 3600,
	}, admin)
	require.NoError(t, err)
	minter.grantID = g.ID
	minter.admin = admin

	require.NoError(t, payment.Deposit(ctx, holder, big.NewInt(100000)))
	require.NoError(t, payment.Approve(ctx, holder, big.NewInt(100000)))

	_, err = svc.Exercise(ctx, g.ID, 100, Actor{ID: holder})
	assert.ErrorIs(t, err, ErrReentrantCall)

	// The whole settlement rolled back.
	stored, err := svc.GetGrant(ctx, g.ID, Actor{ID: holder})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), stored.ExercisedOptions)
	assert.False(t, stored.Terminated)
}

func TestExerciseZeroAmount(t *testing.T) {
	env := newTestEnv(t)
	g := env.issueStandard(t)

	_, err := env.svc.Exercise(context.Background(), g.ID, 0, env.holderActor())
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestExerciseByNonHolderLooksNonexistent(t *testing.T) {
	env := newTestEnv(t)
	g := env.issueStandard(t)
	env.advance(730 * day)

	_, err := env.svc.Exercise(context.Background(), g.ID, 1, Actor{ID: uuid.New()})
	assert.ErrorIs(t, err, ErrGrantNotFound)
}
