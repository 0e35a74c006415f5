package bank

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"pairLedger/internal/model"
)

var ErrInsufficientBalance = errors.New("insufficient balance")

// Call describes one transfer request seen by a Hook.
type Call struct {
	Op     string
	Asset  common.Address
	From   common.Address
	To     common.Address
	Amount *uint256.Int
}

// Hook runs before every transfer, outside the bank lock. A non-nil error
// rejects the transfer.
type Hook func(ctx context.Context, call Call) error

// Bank is an in-memory asset ledger. Transfer moves funds out of the custody
// account; TransferFrom moves funds between any two accounts.
type Bank struct {
	custody common.Address
	logger  *zap.Logger

	mu       sync.Mutex
	balances map[common.Address]map[common.Address]uint256.Int
	hook     Hook
}

func New(custody common.Address, logger *zap.Logger) *Bank {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bank{
		custody:  custody,
		logger:   logger,
		balances: make(map[common.Address]map[common.Address]uint256.Int),
	}
}

// FromGenesis builds a bank seeded with the genesis balances.
func FromGenesis(custody common.Address, genesis model.Genesis, logger *zap.Logger) (*Bank, error) {
	b := New(custody, logger)
	for i, entry := range genesis.Balances {
		if !common.IsHexAddress(entry.Asset) || !common.IsHexAddress(entry.Account) {
			return nil, fmt.Errorf("genesis balance %d: invalid address", i)
		}
		amount, ok := parseAmount(entry.Amount)
		if !ok {
			return nil, fmt.Errorf("genesis balance %d: invalid amount %q", i, entry.Amount)
		}
		if err := b.Mint(common.HexToAddress(entry.Asset), common.HexToAddress(entry.Account), amount); err != nil {
			return nil, fmt.Errorf("genesis balance %d: %w", i, err)
		}
	}
	return b, nil
}

func (b *Bank) SetHook(hook Hook) {
	b.mu.Lock()
	b.hook = hook
	b.mu.Unlock()
}

// Mint credits amount of asset to account.
func (b *Bank) Mint(asset, account common.Address, amount *uint256.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur := b.balanceLocked(asset, account)
	next, overflow := new(uint256.Int).AddOverflow(&cur, amount)
	if overflow {
		return fmt.Errorf("mint %s: balance overflow", asset.Hex())
	}
	b.setLocked(asset, account, *next)
	return nil
}

func (b *Bank) Transfer(ctx context.Context, asset, to common.Address, amount *uint256.Int) error {
	return b.move(ctx, "transfer", asset, b.custody, to, amount)
}

func (b *Bank) TransferFrom(ctx context.Context, asset, from, to common.Address, amount *uint256.Int) error {
	return b.move(ctx, "transferFrom", asset, from, to, amount)
}

func (b *Bank) BalanceOf(ctx context.Context, asset, account common.Address) (*uint256.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bal := b.balanceLocked(asset, account)
	return &bal, nil
}

// Balances returns a copy of every non-zero balance of asset.
func (b *Bank) Balances(asset common.Address) map[common.Address]*uint256.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[common.Address]*uint256.Int, len(b.balances[asset]))
	for account, bal := range b.balances[asset] {
		v := bal
		out[account] = &v
	}
	return out
}

// Export returns every non-zero balance in genesis form, sorted by asset and
// account.
func (b *Bank) Export() model.Genesis {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out model.Genesis
	for asset, accounts := range b.balances {
		for account, bal := range accounts {
			if bal.IsZero() {
				continue
			}
			out.Balances = append(out.Balances, model.GenesisBalance{
				Asset:   asset.Hex(),
				Account: account.Hex(),
				Amount:  bal.ToBig().String(),
			})
		}
	}
	sort.Slice(out.Balances, func(i, j int) bool {
		x, y := out.Balances[i], out.Balances[j]
		if x.Asset != y.Asset {
			return x.Asset < y.Asset
		}
		return x.Account < y.Account
	})
	return out
}

func (b *Bank) move(ctx context.Context, op string, asset, from, to common.Address, amount *uint256.Int) error {
	if amount == nil {
		return fmt.Errorf("%s %s: nil amount", op, asset.Hex())
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	hook := b.hook
	b.mu.Unlock()
	if hook != nil {
		call := Call{Op: op, Asset: asset, From: from, To: to, Amount: amount.Clone()}
		if err := hook(ctx, call); err != nil {
			return fmt.Errorf("%s %s: %w", op, asset.Hex(), err)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	fromBal := b.balanceLocked(asset, from)
	if fromBal.Lt(amount) {
		return fmt.Errorf("%s %s: %w: %s has %s, needs %s", op, asset.Hex(), ErrInsufficientBalance,
			from.Hex(), fromBal.ToBig().String(), amount.ToBig().String())
	}
	if from == to {
		return nil
	}
	toBal := b.balanceLocked(asset, to)
	nextTo, overflow := new(uint256.Int).AddOverflow(&toBal, amount)
	if overflow {
		return fmt.Errorf("%s %s: balance overflow", op, asset.Hex())
	}
	nextFrom := new(uint256.Int).Sub(&fromBal, amount)

	b.setLocked(asset, from, *nextFrom)
	b.setLocked(asset, to, *nextTo)

	b.logger.Debug("bank transfer",
		zap.String("op", op),
		zap.String("asset", asset.Hex()),
		zap.String("from", from.Hex()),
		zap.String("to", to.Hex()),
		zap.String("amount", amount.ToBig().String()),
	)
	return nil
}

func (b *Bank) balanceLocked(asset, account common.Address) uint256.Int {
	return b.balances[asset][account]
}

func (b *Bank) setLocked(asset, account common.Address, value uint256.Int) {
	accounts, ok := b.balances[asset]
	if !ok {
		accounts = make(map[common.Address]uint256.Int)
		b.balances[asset] = accounts
	}
	if value.IsZero() {
		delete(accounts, account)
		return
	}
	accounts[account] = value
}
