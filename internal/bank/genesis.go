package bank

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"github.com/holiman/uint256"

	"pairLedger/internal/model"
	"pairLedger/internal/storage/atomicfile"
)

// LoadGenesis reads a genesis JSON file.
func LoadGenesis(path string) (model.Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Genesis{}, fmt.Errorf("read genesis: %w", err)
	}
	var genesis model.Genesis
	if err := json.Unmarshal(data, &genesis); err != nil {
		return model.Genesis{}, fmt.Errorf("parse genesis: %w", err)
	}
	return genesis, nil
}

// SaveGenesis writes balances in genesis format so a later run can resume
// from them.
func SaveGenesis(path string, genesis model.Genesis) error {
	if err := atomicfile.WriteJSON(path, genesis, true); err != nil {
		return fmt.Errorf("save genesis: %w", err)
	}
	return nil
}

func parseAmount(value string) (*uint256.Int, bool) {
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok || parsed.Sign() < 0 {
		return nil, false
	}
	out, overflow := uint256.FromBig(parsed)
	return out, !overflow
}
