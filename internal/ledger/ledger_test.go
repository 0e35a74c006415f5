package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"pairLedger/internal/bank"
	"pairLedger/internal/ledger"
	"pairLedger/internal/model"
)

var (
	custody = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	alice   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob     = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	tokenX  = common.HexToAddress("0x1000000000000000000000000000000000000001")
	tokenY  = common.HexToAddress("0x2000000000000000000000000000000000000002")
	tokenZ  = common.HexToAddress("0x3000000000000000000000000000000000000003")
)

type eventLog struct {
	mu       sync.Mutex
	events   []ledger.Event
	failures []string
}

func (e *eventLog) Notify(ev ledger.Event) {
	e.mu.Lock()
	e.events = append(e.events, ev)
	e.mu.Unlock()
}

func (e *eventLog) ObserveFailure(op string, err error) {
	e.mu.Lock()
	e.failures = append(e.failures, op+":"+ledger.Kind(err))
	e.mu.Unlock()
}

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func newTestLedger(t testing.TB) (*ledger.Ledger, *bank.Bank, *eventLog) {
	t.Helper()
	b := bank.New(custody, nil)
	for _, account := range []common.Address{alice, bob} {
		for _, token := range []common.Address{tokenX, tokenY, tokenZ} {
			require.NoError(t, b.Mint(token, account, u(1_000_000)))
		}
	}
	log := &eventLog{}
	clock := func() time.Time { return time.Unix(1_700_000_000, 0) }
	l := ledger.New(ledger.Config{Custody: custody, Clock: clock, Notifiers: []ledger.Notifier{log}}, b, nil)
	return l, b, log
}

func requireReserves(t *testing.T, l *ledger.Ledger, want0, want1 uint64) {
	t.Helper()
	r0, r1, err := l.GetReserves(tokenX, tokenY)
	require.NoError(t, err)
	require.Equal(t, want0, r0.Uint64(), "reserve0")
	require.Equal(t, want1, r1.Uint64(), "reserve1")
}

func requireBalance(t *testing.T, b *bank.Bank, token, account common.Address, want uint64) {
	t.Helper()
	bal, err := b.BalanceOf(context.Background(), token, account)
	require.NoError(t, err)
	require.Equal(t, want, bal.Uint64())
}

func TestCanonicalize(t *testing.T) {
	k1, err := ledger.Canonicalize(tokenY, tokenX)
	require.NoError(t, err)
	k2, err := ledger.Canonicalize(tokenX, tokenY)
	require.NoError(t, err)
	require.Equal(t, k1, k2)
	require.Equal(t, tokenX, k1.Token0)

	_, err = ledger.Canonicalize(tokenX, tokenX)
	require.ErrorIs(t, err, ledger.ErrInvalidInput)
}

func TestAddLiquidityBootstrap(t *testing.T) {
	l, b, log := newTestLedger(t)
	ctx := context.Background()

	res, err := l.AddLiquidity(ctx, tokenX, tokenY, u(100), u(400), alice)
	require.NoError(t, err)
	require.Equal(t, uint64(200), res.SharesIssued.Uint64())
	requireReserves(t, l, 100, 400)

	share, err := l.GetShare(tokenY, tokenX, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(200), share.Uint64())

	requireBalance(t, b, tokenX, custody, 100)
	requireBalance(t, b, tokenY, custody, 400)
	requireBalance(t, b, tokenX, alice, 1_000_000-100)

	require.Len(t, log.events, 1)
	ev := log.events[0]
	require.Equal(t, model.EventLiquidityAdded, ev.Name)
	require.Equal(t, uint64(1), ev.Seq)
	require.Equal(t, uint64(400), ev.Reserve1.Uint64())
}

func TestAddLiquidityReversedArguments(t *testing.T) {
	l, _, _ := newTestLedger(t)

	res, err := l.AddLiquidity(context.Background(), tokenY, tokenX, u(400), u(100), alice)
	require.NoError(t, err)
	require.Equal(t, tokenX, res.Pair.Token0)
	require.Equal(t, uint64(100), res.Amount0.Uint64())
	require.Equal(t, uint64(200), res.SharesIssued.Uint64())
	requireReserves(t, l, 100, 400)
}

func TestAddLiquidityProportional(t *testing.T) {
	l, b, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.AddLiquidity(ctx, tokenX, tokenY, u(100), u(400), alice)
	require.NoError(t, err)

	res, err := l.AddLiquidity(ctx, tokenX, tokenY, u(50), u(200), bob)
	require.NoError(t, err)
	require.Equal(t, uint64(100), res.SharesIssued.Uint64())
	requireReserves(t, l, 150, 600)

	total, err := l.TotalShares(tokenX, tokenY)
	require.NoError(t, err)
	require.Equal(t, uint64(300), total.Uint64())

	_, err = l.AddLiquidity(ctx, tokenX, tokenY, u(50), u(150), bob)
	require.ErrorIs(t, err, ledger.ErrRatioMismatch)
	requireReserves(t, l, 150, 600)
	requireBalance(t, b, tokenX, bob, 1_000_000-50)
	requireBalance(t, b, tokenY, bob, 1_000_000-200)
}

func TestAddLiquidityRejectsInvalidInput(t *testing.T) {
	l, _, log := newTestLedger(t)
	ctx := context.Background()

	_, err := l.AddLiquidity(ctx, tokenX, tokenX, u(1), u(1), alice)
	require.ErrorIs(t, err, ledger.ErrInvalidInput)
	_, err = l.AddLiquidity(ctx, tokenX, tokenY, u(0), u(1), alice)
	require.ErrorIs(t, err, ledger.ErrInvalidInput)
	_, err = l.AddLiquidity(ctx, tokenX, tokenY, u(1), nil, alice)
	require.ErrorIs(t, err, ledger.ErrInvalidInput)

	require.Empty(t, l.Pools())
	require.Equal(t, []string{"add_liquidity:invalid_input", "add_liquidity:invalid_input", "add_liquidity:invalid_input"}, log.failures)
}

func TestAddLiquidityZeroShares(t *testing.T) {
	l, _, _ := newTestLedger(t)
	require.NoError(t, l.Restore(model.LedgerSnapshot{
		LastSeq: 3,
		Pools: []model.PoolSnapshot{{
			Token0:      tokenX.Hex(),
			Token1:      tokenY.Hex(),
			Reserve0:    "1000",
			Reserve1:    "1000",
			TotalShares: "1",
			Shares:      []model.ShareEntry{{Provider: alice.Hex(), Shares: "1"}},
		}},
	}))

	_, err := l.AddLiquidity(context.Background(), tokenX, tokenY, u(1), u(1), bob)
	require.ErrorIs(t, err, ledger.ErrInsufficientShares)
	requireReserves(t, l, 1000, 1000)
}

func TestAddLiquidityOverflow(t *testing.T) {
	l, b, _ := newTestLedger(t)
	huge := new(uint256.Int).Lsh(u(1), 200)
	require.NoError(t, b.Mint(tokenX, alice, huge))
	require.NoError(t, b.Mint(tokenY, alice, huge))

	_, err := l.AddLiquidity(context.Background(), tokenX, tokenY, huge, huge, alice)
	require.ErrorIs(t, err, ledger.ErrOverflow)
	require.ErrorIs(t, err, ledger.ErrInvalidInput)
	require.Equal(t, "overflow", ledger.Kind(err))
	require.Empty(t, l.Pools())
}

func TestRemoveLiquidity(t *testing.T) {
	l, b, log := newTestLedger(t)
	ctx := context.Background()

	_, err := l.AddLiquidity(ctx, tokenX, tokenY, u(100), u(400), alice)
	require.NoError(t, err)
	_, err = l.AddLiquidity(ctx, tokenX, tokenY, u(7), u(28), bob)
	require.NoError(t, err)

	res, err := l.RemoveLiquidity(ctx, tokenY, tokenX, u(14), bob)
	require.NoError(t, err)
	require.Equal(t, uint64(7), res.Amount0.Uint64())
	require.Equal(t, uint64(28), res.Amount1.Uint64())
	requireReserves(t, l, 100, 400)
	requireBalance(t, b, tokenX, bob, 1_000_000)

	share, err := l.GetShare(tokenX, tokenY, bob)
	require.NoError(t, err)
	require.True(t, share.IsZero())
	require.Len(t, l.Snapshot().Pools[0].Shares, 1)
	require.Equal(t, model.EventLiquidityRemoved, log.events[2].Name)
}

func TestRemoveLiquidityEmptiesPool(t *testing.T) {
	l, b, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.AddLiquidity(ctx, tokenX, tokenY, u(100), u(400), alice)
	require.NoError(t, err)
	_, err = l.RemoveLiquidity(ctx, tokenX, tokenY, u(200), alice)
	require.NoError(t, err)

	requireReserves(t, l, 0, 0)
	require.Empty(t, l.Pools())
	require.Empty(t, l.Snapshot().Pools)
	requireBalance(t, b, tokenX, custody, 0)

	// The next deposit bootstraps again.
	res, err := l.AddLiquidity(ctx, tokenX, tokenY, u(9), u(16), bob)
	require.NoError(t, err)
	require.Equal(t, uint64(12), res.SharesIssued.Uint64())
}

func TestRemoveLiquidityErrors(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.RemoveLiquidity(ctx, tokenX, tokenY, u(1), alice)
	require.ErrorIs(t, err, ledger.ErrInsufficientShares)

	_, err = l.AddLiquidity(ctx, tokenX, tokenY, u(1), u(1_000_000), alice)
	require.NoError(t, err)

	_, err = l.RemoveLiquidity(ctx, tokenX, tokenY, u(0), alice)
	require.ErrorIs(t, err, ledger.ErrInvalidInput)
	_, err = l.RemoveLiquidity(ctx, tokenX, tokenY, u(1001), alice)
	require.ErrorIs(t, err, ledger.ErrInsufficientShares)
	_, err = l.RemoveLiquidity(ctx, tokenX, tokenY, u(1), alice)
	require.ErrorIs(t, err, ledger.ErrInsufficientLiquidity)

	requireReserves(t, l, 1, 1_000_000)
}

func TestSwapPricing(t *testing.T) {
	l, b, log := newTestLedger(t)
	ctx := context.Background()

	_, err := l.AddLiquidity(ctx, tokenX, tokenY, u(100), u(400), alice)
	require.NoError(t, err)

	require.Equal(t, uint64(36), l.Quote(tokenX, tokenY, u(10)).Uint64())

	res, err := l.Swap(ctx, tokenX, tokenY, u(10), u(36), bob)
	require.NoError(t, err)
	require.Equal(t, uint64(36), res.AmountOut.Uint64())
	requireReserves(t, l, 110, 364)
	requireBalance(t, b, tokenY, bob, 1_000_000+36)
	requireBalance(t, b, tokenX, bob, 1_000_000-10)

	ev := log.events[len(log.events)-1]
	require.Equal(t, model.EventSwapped, ev.Name)
	require.Equal(t, tokenX, ev.AssetIn)
	require.Equal(t, uint64(200), ev.TotalShares.Uint64())

	rec := ev.Record()
	data, ok := rec.Decoded.(model.SwappedData)
	require.True(t, ok)
	require.Equal(t, "36", data.AmountOut)
	require.Equal(t, uint64(1_700_000_000), rec.Timestamp)
}

func TestSwapReverseDirection(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.AddLiquidity(ctx, tokenX, tokenY, u(100), u(400), alice)
	require.NoError(t, err)

	// floor(40*997*100 / (400*1000 + 40*997)) = 9
	res, err := l.Swap(ctx, tokenY, tokenX, u(40), nil, bob)
	require.NoError(t, err)
	require.Equal(t, uint64(9), res.AmountOut.Uint64())
	requireReserves(t, l, 91, 440)
}

func TestSwapErrors(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Swap(ctx, tokenX, tokenY, u(10), nil, bob)
	require.ErrorIs(t, err, ledger.ErrInsufficientLiquidity)

	_, err = l.AddLiquidity(ctx, tokenX, tokenY, u(100), u(400), alice)
	require.NoError(t, err)

	_, err = l.Swap(ctx, tokenX, tokenX, u(10), nil, bob)
	require.ErrorIs(t, err, ledger.ErrInvalidInput)
	_, err = l.Swap(ctx, tokenX, tokenY, u(0), nil, bob)
	require.ErrorIs(t, err, ledger.ErrInvalidInput)
	_, err = l.Swap(ctx, tokenX, tokenY, u(10), u(37), bob)
	require.ErrorIs(t, err, ledger.ErrSlippageExceeded)
	_, err = l.Swap(ctx, tokenY, tokenX, u(1), nil, bob)
	require.ErrorIs(t, err, ledger.ErrInsufficientLiquidity)

	requireReserves(t, l, 100, 400)
}

func TestQuoteNeverFails(t *testing.T) {
	l, _, _ := newTestLedger(t)

	require.True(t, l.Quote(tokenX, tokenY, u(10)).IsZero())
	require.True(t, l.Quote(tokenX, tokenX, u(10)).IsZero())
	require.True(t, l.Quote(tokenX, tokenY, nil).IsZero())

	_, err := l.AddLiquidity(context.Background(), tokenX, tokenY, u(100), u(400), alice)
	require.NoError(t, err)
	require.True(t, l.Quote(tokenX, tokenY, u(0)).IsZero())
	require.True(t, l.Quote(tokenX, tokenZ, u(10)).IsZero())
}

func TestTransferFailureLeavesStateUnchanged(t *testing.T) {
	denied := errors.New("denied")
	failOn := func(op string, asset common.Address) bank.Hook {
		return func(ctx context.Context, call bank.Call) error {
			if call.Op == op && call.Asset == asset {
				return denied
			}
			return nil
		}
	}

	t.Run("add", func(t *testing.T) {
		l, b, _ := newTestLedger(t)
		b.SetHook(failOn("transferFrom", tokenY))

		_, err := l.AddLiquidity(context.Background(), tokenX, tokenY, u(100), u(400), alice)
		require.ErrorIs(t, err, ledger.ErrTransferFailure)
		require.ErrorIs(t, err, denied)
		require.Empty(t, l.Pools())
		requireBalance(t, b, tokenX, alice, 1_000_000)
		requireBalance(t, b, tokenX, custody, 0)
	})

	t.Run("remove", func(t *testing.T) {
		l, b, _ := newTestLedger(t)
		_, err := l.AddLiquidity(context.Background(), tokenX, tokenY, u(100), u(400), alice)
		require.NoError(t, err)
		b.SetHook(failOn("transfer", tokenY))

		_, err = l.RemoveLiquidity(context.Background(), tokenX, tokenY, u(100), alice)
		require.ErrorIs(t, err, ledger.ErrTransferFailure)
		requireReserves(t, l, 100, 400)
		requireBalance(t, b, tokenX, custody, 100)
		requireBalance(t, b, tokenX, alice, 1_000_000-100)

		share, err := l.GetShare(tokenX, tokenY, alice)
		require.NoError(t, err)
		require.Equal(t, uint64(200), share.Uint64())
	})

	t.Run("swap", func(t *testing.T) {
		l, b, log := newTestLedger(t)
		_, err := l.AddLiquidity(context.Background(), tokenX, tokenY, u(100), u(400), alice)
		require.NoError(t, err)
		b.SetHook(failOn("transfer", tokenY))

		_, err = l.Swap(context.Background(), tokenX, tokenY, u(10), nil, bob)
		require.ErrorIs(t, err, ledger.ErrTransferFailure)
		require.Equal(t, "transfer_failure", ledger.Kind(err))
		requireReserves(t, l, 100, 400)
		requireBalance(t, b, tokenX, bob, 1_000_000)
		requireBalance(t, b, tokenX, custody, 100)
		require.Len(t, log.events, 1)
	})
}

func TestCancelAfterFirstTransferKeepsLedgerConsistent(t *testing.T) {
	denied := errors.New("denied")
	// cancelThenDeny cancels the caller's context during the first leg and
	// rejects the second leg.
	cancelThenDeny := func(cancel context.CancelFunc, first, second bank.Call) bank.Hook {
		return func(_ context.Context, call bank.Call) error {
			switch {
			case call.Op == first.Op && call.Asset == first.Asset:
				cancel()
			case call.Op == second.Op && call.Asset == second.Asset:
				return denied
			}
			return nil
		}
	}

	t.Run("swap settles", func(t *testing.T) {
		l, b, log := newTestLedger(t)
		_, err := l.AddLiquidity(context.Background(), tokenX, tokenY, u(100), u(400), alice)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		b.SetHook(func(_ context.Context, call bank.Call) error {
			if call.Op == "transferFrom" {
				cancel()
			}
			return nil
		})

		res, err := l.Swap(ctx, tokenX, tokenY, u(10), nil, bob)
		require.NoError(t, err)
		require.Equal(t, uint64(36), res.AmountOut.Uint64())
		requireReserves(t, l, 110, 364)
		requireBalance(t, b, tokenX, bob, 1_000_000-10)
		requireBalance(t, b, tokenY, bob, 1_000_000+36)
		require.Len(t, log.events, 2)
	})

	t.Run("swap refund", func(t *testing.T) {
		l, b, _ := newTestLedger(t)
		_, err := l.AddLiquidity(context.Background(), tokenX, tokenY, u(100), u(400), alice)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		b.SetHook(cancelThenDeny(cancel,
			bank.Call{Op: "transferFrom", Asset: tokenX},
			bank.Call{Op: "transfer", Asset: tokenY}))

		_, err = l.Swap(ctx, tokenX, tokenY, u(10), nil, bob)
		require.ErrorIs(t, err, ledger.ErrTransferFailure)
		require.ErrorIs(t, err, denied)
		require.NotContains(t, err.Error(), "refund")
		requireReserves(t, l, 100, 400)
		requireBalance(t, b, tokenX, bob, 1_000_000)
		requireBalance(t, b, tokenX, custody, 100)
	})

	t.Run("add refund", func(t *testing.T) {
		l, b, _ := newTestLedger(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		b.SetHook(cancelThenDeny(cancel,
			bank.Call{Op: "transferFrom", Asset: tokenX},
			bank.Call{Op: "transferFrom", Asset: tokenY}))

		_, err := l.AddLiquidity(ctx, tokenX, tokenY, u(100), u(400), alice)
		require.ErrorIs(t, err, ledger.ErrTransferFailure)
		require.Empty(t, l.Pools())
		requireBalance(t, b, tokenX, alice, 1_000_000)
		requireBalance(t, b, tokenX, custody, 0)
	})

	t.Run("remove reclaim", func(t *testing.T) {
		l, b, _ := newTestLedger(t)
		_, err := l.AddLiquidity(context.Background(), tokenX, tokenY, u(100), u(400), alice)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		b.SetHook(cancelThenDeny(cancel,
			bank.Call{Op: "transfer", Asset: tokenX},
			bank.Call{Op: "transfer", Asset: tokenY}))

		_, err = l.RemoveLiquidity(ctx, tokenX, tokenY, u(100), alice)
		require.ErrorIs(t, err, ledger.ErrTransferFailure)
		require.NotContains(t, err.Error(), "reclaim")
		requireReserves(t, l, 100, 400)
		requireBalance(t, b, tokenX, alice, 1_000_000-100)
		requireBalance(t, b, tokenX, custody, 100)
	})
}

func TestUnconfirmedTransferIsReportedSeparately(t *testing.T) {
	l, b, log := newTestLedger(t)
	_, err := l.AddLiquidity(context.Background(), tokenX, tokenY, u(100), u(400), alice)
	require.NoError(t, err)

	b.SetHook(func(_ context.Context, call bank.Call) error {
		if call.Op == "transfer" && call.Asset == tokenY {
			return fmt.Errorf("tx 0xabc: %w", ledger.ErrUnconfirmedTransfer)
		}
		return nil
	})

	_, err = l.Swap(context.Background(), tokenX, tokenY, u(10), nil, bob)
	require.ErrorIs(t, err, ledger.ErrUnconfirmedTransfer)
	require.NotErrorIs(t, err, ledger.ErrTransferFailure)
	require.Equal(t, "unconfirmed_transfer", ledger.Kind(err))
	requireReserves(t, l, 100, 400)
	// the pulled input is not refunded while the payout may still land
	requireBalance(t, b, tokenX, custody, 110)
	require.Len(t, log.events, 1)
	require.Equal(t, []string{"swap:unconfirmed_transfer"}, log.failures)
}

func TestNestedCallOnFreshContextTimesOut(t *testing.T) {
	b := bank.New(custody, nil)
	for _, token := range []common.Address{tokenX, tokenY} {
		require.NoError(t, b.Mint(token, alice, u(1_000_000)))
		require.NoError(t, b.Mint(token, bob, u(1_000_000)))
	}
	l := ledger.New(ledger.Config{Custody: custody, LockTimeout: 20 * time.Millisecond}, b, nil)
	_, err := l.AddLiquidity(context.Background(), tokenX, tokenY, u(100), u(400), alice)
	require.NoError(t, err)

	var (
		fired  bool
		nested error
	)
	b.SetHook(func(context.Context, bank.Call) error {
		if fired {
			return nil
		}
		fired = true
		_, nested = l.Swap(context.Background(), tokenY, tokenX, u(40), nil, bob)
		return nil
	})

	_, err = l.Swap(context.Background(), tokenX, tokenY, u(10), nil, bob)
	require.NoError(t, err)
	require.ErrorIs(t, nested, ledger.ErrLockTimeout)
	require.Equal(t, "lock_timeout", ledger.Kind(nested))
	requireReserves(t, l, 110, 364)
}

func TestReentrantCallRejected(t *testing.T) {
	l, b, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.AddLiquidity(ctx, tokenX, tokenY, u(100), u(400), alice)
	require.NoError(t, err)
	_, err = l.AddLiquidity(ctx, tokenX, tokenZ, u(100), u(100), alice)
	require.NoError(t, err)

	var (
		fired     bool
		samePool  error
		otherPool error
	)
	b.SetHook(func(hctx context.Context, call bank.Call) error {
		if fired {
			return nil
		}
		fired = true
		_, samePool = l.Swap(hctx, tokenY, tokenX, u(40), nil, bob)
		_, otherPool = l.Swap(hctx, tokenZ, tokenX, u(10), nil, bob)
		return nil
	})

	res, err := l.Swap(ctx, tokenX, tokenY, u(10), nil, bob)
	require.NoError(t, err)
	require.Equal(t, uint64(36), res.AmountOut.Uint64())
	require.ErrorIs(t, samePool, ledger.ErrReentrancy)
	require.Equal(t, "reentrancy", ledger.Kind(samePool))
	require.NoError(t, otherPool)

	// Same result as the outer swap running alone.
	requireReserves(t, l, 110, 364)
}

func TestLockHonoursContext(t *testing.T) {
	l, b, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.AddLiquidity(ctx, tokenX, tokenY, u(100), u(400), alice)
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	b.SetHook(func(context.Context, bank.Call) error {
		once.Do(func() {
			close(entered)
			<-release
		})
		return nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := l.Swap(ctx, tokenX, tokenY, u(10), nil, bob)
		done <- err
	}()
	<-entered

	tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = l.Swap(tctx, tokenX, tokenY, u(10), nil, alice)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, "canceled", ledger.Kind(err))

	close(release)
	require.NoError(t, <-done)
	requireReserves(t, l, 110, 364)
}

func TestConcurrentSwapsSerialize(t *testing.T) {
	l, b, log := newTestLedger(t)
	ctx := context.Background()

	_, err := l.AddLiquidity(ctx, tokenX, tokenY, u(100_000), u(100_000), alice)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 200)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in, out := tokenX, tokenY
			if i%2 == 1 {
				in, out = out, in
			}
			for j := 0; j < 25; j++ {
				if _, err := l.Swap(ctx, in, out, u(100), nil, bob); err != nil {
					errs <- err
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	r0, r1, err := l.GetReserves(tokenX, tokenY)
	require.NoError(t, err)
	c0, err := b.BalanceOf(ctx, tokenX, custody)
	require.NoError(t, err)
	c1, err := b.BalanceOf(ctx, tokenY, custody)
	require.NoError(t, err)
	require.True(t, r0.Eq(c0))
	require.True(t, r1.Eq(c1))

	require.Len(t, log.events, 201)
	seen := make(map[uint64]bool)
	for _, ev := range log.events {
		require.False(t, seen[ev.Seq])
		seen[ev.Seq] = true
	}
}

func TestSnapshotRestore(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.AddLiquidity(ctx, tokenX, tokenY, u(100), u(400), alice)
	require.NoError(t, err)
	_, err = l.AddLiquidity(ctx, tokenY, tokenX, u(200), u(50), bob)
	require.NoError(t, err)
	_, err = l.AddLiquidity(ctx, tokenZ, tokenX, u(9), u(4), bob)
	require.NoError(t, err)
	_, err = l.Swap(ctx, tokenX, tokenY, u(10), nil, bob)
	require.NoError(t, err)

	snap := l.Snapshot()
	require.Equal(t, uint64(4), snap.LastSeq)
	require.Len(t, snap.Pools, 2)
	require.Equal(t, tokenX.Hex(), snap.Pools[0].Token0)
	require.Equal(t, tokenY.Hex(), snap.Pools[0].Token1)
	require.Equal(t, tokenZ.Hex(), snap.Pools[1].Token1)

	restored, rb, _ := newTestLedger(t)
	require.NoError(t, rb.Mint(tokenZ, custody, u(9)))
	require.NoError(t, restored.Restore(snap))
	require.Equal(t, snap, restored.Snapshot())
	require.Equal(t, l.Quote(tokenY, tokenX, u(50)), restored.Quote(tokenY, tokenX, u(50)))

	res, err := restored.Swap(ctx, tokenX, tokenZ, u(1), nil, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(5), res.Seq)
}

func TestRestoreRejectsInconsistentPools(t *testing.T) {
	l, _, _ := newTestLedger(t)
	base := model.PoolSnapshot{
		Token0:      tokenX.Hex(),
		Token1:      tokenY.Hex(),
		Reserve0:    "100",
		Reserve1:    "400",
		TotalShares: "200",
		Shares:      []model.ShareEntry{{Provider: alice.Hex(), Shares: "200"}},
	}

	badSum := base
	badSum.TotalShares = "201"
	reversed := base
	reversed.Token0, reversed.Token1 = base.Token1, base.Token0
	emptyReserves := base
	emptyReserves.Reserve0, emptyReserves.Reserve1 = "0", "0"

	for name, pool := range map[string]model.PoolSnapshot{
		"share sum":      badSum,
		"order":          reversed,
		"empty reserves": emptyReserves,
	} {
		err := l.Restore(model.LedgerSnapshot{Pools: []model.PoolSnapshot{pool}})
		require.ErrorIs(t, err, ledger.ErrInvalidInput, name)
	}

	err := l.Restore(model.LedgerSnapshot{Pools: []model.PoolSnapshot{base, base}})
	require.ErrorIs(t, err, ledger.ErrInvalidInput)
	require.Empty(t, l.Pools())
}

func TestFileSnapshotStore(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()
	_, err := l.AddLiquidity(ctx, tokenX, tokenY, u(100), u(400), alice)
	require.NoError(t, err)

	store := &ledger.FileSnapshotStore{Path: t.TempDir() + "/state/snapshot.json"}
	_, ok, err := store.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.SaveSnapshot(ctx, l.Snapshot()))

	restored, _, _ := newTestLedger(t)
	ok, err = ledger.LoadInto(ctx, store, restored)
	require.NoError(t, err)
	require.True(t, ok)
	r0, r1, err := restored.GetReserves(tokenX, tokenY)
	require.NoError(t, err)
	require.Equal(t, uint64(100), r0.Uint64())
	require.Equal(t, uint64(400), r1.Uint64())
}

func TestParseAmount(t *testing.T) {
	v, err := ledger.ParseAmount("115792089237316195423570985008687907853269984665640564039457584007913129639935")
	require.NoError(t, err)
	require.True(t, v.Eq(new(uint256.Int).SetAllOne()))

	_, err = ledger.ParseAmount("115792089237316195423570985008687907853269984665640564039457584007913129639936")
	require.ErrorIs(t, err, ledger.ErrOverflow)
	_, err = ledger.ParseAmount("-1")
	require.ErrorIs(t, err, ledger.ErrInvalidInput)
	_, err = ledger.ParseAmount("1.5")
	require.ErrorIs(t, err, ledger.ErrInvalidInput)

	require.Equal(t, "0", ledger.FormatAmount(nil))
	require.Equal(t, "42", ledger.FormatAmount(u(42)))
}
