package replay

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"pairLedger/internal/ledger"
)

// ParseAddress converts a hex string into common.Address.
func ParseAddress(field, input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("%w: invalid %s address %q", ledger.ErrInvalidInput, field, input)
	}
	return common.HexToAddress(input), nil
}

func parseAmount(field, input string) (*uint256.Int, error) {
	amount, err := ledger.ParseAmount(input)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return amount, nil
}

// parseOptionalAmount treats an empty field as absent.
func parseOptionalAmount(field, input string) (*uint256.Int, error) {
	if strings.TrimSpace(input) == "" {
		return nil, nil
	}
	return parseAmount(field, input)
}
