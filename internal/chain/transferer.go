package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"pairLedger/internal/ledger"
)

// Backend is the RPC surface needed to move ERC20 balances. *Client
// implements it.
type Backend interface {
	Caller
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// TransfererConfig controls on-chain settlement.
type TransfererConfig struct {
	ChainID *big.Int
	// CustodyKey is the hex private key of the custody account.
	CustodyKey string
	// GasLimit overrides gas estimation when non-zero.
	GasLimit uint64
	// SettleTimeout bounds the wait for a receipt once a transaction has
	// been broadcast. It is not shortened by the caller's context.
	SettleTimeout time.Duration
}

const defaultSettleTimeout = 2 * time.Minute

// ERC20Transferer settles ledger transfers as ERC20 transactions signed by
// the custody account. Pulls use transferFrom and need a prior approval from
// the paying account.
type ERC20Transferer struct {
	backend  Backend
	key      *ecdsa.PrivateKey
	custody  common.Address
	signer   types.Signer
	gasLimit uint64
	settle   time.Duration
	logger   *zap.Logger

	// serializes nonce assignment
	sendMu sync.Mutex
}

func NewERC20Transferer(cfg TransfererConfig, backend Backend, logger *zap.Logger) (*ERC20Transferer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if backend == nil {
		return nil, fmt.Errorf("chain backend is nil")
	}
	if cfg.ChainID == nil {
		return nil, fmt.Errorf("chain id is required")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.CustodyKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse custody key: %w", err)
	}
	settle := cfg.SettleTimeout
	if settle <= 0 {
		settle = defaultSettleTimeout
	}

	return &ERC20Transferer{
		backend:  backend,
		key:      key,
		custody:  crypto.PubkeyToAddress(key.PublicKey),
		signer:   types.LatestSignerForChainID(cfg.ChainID),
		gasLimit: cfg.GasLimit,
		settle:   settle,
		logger:   logger,
	}, nil
}

// Custody returns the address derived from the custody key.
func (t *ERC20Transferer) Custody() common.Address {
	return t.custody
}

func (t *ERC20Transferer) Transfer(ctx context.Context, asset, to common.Address, amount *uint256.Int) error {
	return t.send(ctx, asset, "transfer", to, amount.ToBig())
}

func (t *ERC20Transferer) TransferFrom(ctx context.Context, asset, from, to common.Address, amount *uint256.Int) error {
	return t.send(ctx, asset, "transferFrom", from, to, amount.ToBig())
}

func (t *ERC20Transferer) BalanceOf(ctx context.Context, asset, account common.Address) (*uint256.Int, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	value, err := callView(ctx, t.backend, asset, parsed, "balanceOf", account)
	if err != nil {
		return nil, err
	}
	bal, ok := value.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf unexpected type %T", value)
	}
	out, overflow := uint256.FromBig(bal)
	if overflow {
		return nil, fmt.Errorf("balanceOf overflows 256 bits")
	}
	return out, nil
}

func (t *ERC20Transferer) send(ctx context.Context, asset common.Address, method string, args ...interface{}) error {
	parsed, err := ERC20ABI()
	if err != nil {
		return fmt.Errorf("parse erc20 abi: %w", err)
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("pack %s: %w", method, err)
	}

	t.sendMu.Lock()
	signed, err := t.signAndSend(ctx, asset, data)
	t.sendMu.Unlock()
	if err != nil {
		return fmt.Errorf("send %s: %w", method, err)
	}

	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.settle)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, t.backend, signed)
	if err != nil {
		t.logger.Warn("erc20 transfer unconfirmed",
			zap.String("method", method),
			zap.String("token", asset.Hex()),
			zap.String("tx", signed.Hash().Hex()),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %s %s: %w", ledger.ErrUnconfirmedTransfer, method, signed.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%s %s reverted in block %s", method, signed.Hash().Hex(), receipt.BlockNumber)
	}

	t.logger.Debug("erc20 settled",
		zap.String("method", method),
		zap.String("token", asset.Hex()),
		zap.String("tx", signed.Hash().Hex()),
		zap.Uint64("gas_used", receipt.GasUsed),
	)
	return nil
}

func (t *ERC20Transferer) signAndSend(ctx context.Context, asset common.Address, data []byte) (*types.Transaction, error) {
	nonce, err := t.backend.PendingNonceAt(ctx, t.custody)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	gasPrice, err := t.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}
	gas := t.gasLimit
	if gas == 0 {
		gas, err = t.backend.EstimateGas(ctx, ethereum.CallMsg{From: t.custody, To: &asset, Data: data})
		if err != nil {
			return nil, fmt.Errorf("estimate gas: %w", err)
		}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &asset,
		Value:    new(big.Int),
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, t.signer, t.key)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	if err := t.backend.SendTransaction(ctx, signed); err != nil {
		return nil, err
	}
	return signed, nil
}
