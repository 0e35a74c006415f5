package config

import (
	"time"

	"github.com/spf13/pflag"
)

// Transferer backends.
const (
	TransfererMemory = "memory"
	TransfererERC20  = "erc20"
)

// ServeConfig holds configuration for the serve command.
type ServeConfig struct {
	Listen        string
	Transferer    string
	RPCURL        string
	CustodyKey    string
	GasLimit      uint64
	Genesis       string
	Custody       string
	Snapshot      string
	Events        string
	PGDSN         string
	LockTimeout   time.Duration
	SettleTimeout time.Duration
	LogLevel      string
}

// LoadServe merges config file, environment variables, and flags into ServeConfig.
func LoadServe(cfgFile string, flags *pflag.FlagSet) (ServeConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"listen":         "127.0.0.1:8645",
		"transferer":     TransfererMemory,
		"custody":        defaultCustody,
		"gas-limit":      uint64(120_000),
		"snapshot":       "./data/snapshot.json",
		"events":         "./data/events.jsonl",
		"lock-timeout":   30 * time.Second,
		"settle-timeout": 2 * time.Minute,
		"log-level":      "info",
	})
	if err != nil {
		return ServeConfig{}, err
	}

	cfg := ServeConfig{
		Listen:        v.GetString("listen"),
		Transferer:    v.GetString("transferer"),
		RPCURL:        v.GetString("rpc"),
		CustodyKey:    v.GetString("custody-key"),
		GasLimit:      v.GetUint64("gas-limit"),
		Genesis:       v.GetString("genesis"),
		Custody:       v.GetString("custody"),
		Snapshot:      v.GetString("snapshot"),
		Events:        v.GetString("events"),
		PGDSN:         v.GetString("pg-dsn"),
		LockTimeout:   v.GetDuration("lock-timeout"),
		SettleTimeout: v.GetDuration("settle-timeout"),
		LogLevel:      v.GetString("log-level"),
	}

	return cfg, nil
}
