package main

import (
	"errors"
	"fmt"
	"slices"

	"github.com/cosmos/cosmos-sdk/types/bech32"
	"github.com/ethereum/go-ethereum/common"

	"github.com/luxfi/faucet/pkg/config"
)

var errInvalidAddress = errors.New(
	"invalid address: must be either a valid Ethereum address (0x...) or bech32 address",
)

// stripChainAlias removes a leading "X-", "P-" or "C-" chain alias.
func stripChainAlias(addr string) string {
	if len(addr) > 2 && addr[1] == '-' {
		switch addr[0] {
		case 'X', 'P', 'C', 'x', 'p', 'c':
			return addr[2:]
		}
	}

	return addr
}

func validAddress(addr string, cfg config.Config) error {
	if common.IsHexAddress(addr) {
		return nil
	}

	prefix, _, err := bech32.DecodeAndConvert(stripChainAlias(addr))
	if err != nil {
		reqInvalidAddrCount.Inc()
		return errInvalidAddress
	}

	if slices.Contains(cfg.Prefixes(), prefix) {
		return nil
	}

	reqInvalidAddrCount.Inc()
	return fmt.Errorf(
		"unsupported bech32 prefix: %s (accepted: %s)",
		prefix,
		cfg.AcceptedPrefixes,
	)
}

// toEVMAddress converts a hex or bech32 address to an Ethereum address.
func toEVMAddress(addr string) (common.Address, error) {
	if common.IsHexAddress(addr) {
		return common.HexToAddress(addr), nil
	}

	_, addrBytes, err := bech32.DecodeAndConvert(stripChainAlias(addr))
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to decode bech32 address: %w", err)
	}

	var out common.Address
	switch len(addrBytes) {
	case common.AddressLength:
		copy(out[:], addrBytes)
	case 32:
		// last 20 bytes of a 32-byte account
		copy(out[:], addrBytes[12:])
	default:
		return common.Address{}, fmt.Errorf("invalid address length: %d bytes", len(addrBytes))
	}

	return out, nil
}

// blacklist holds blocked accounts in EVM form, so every spelling of an
// account matches the same entry.
type blacklist map[common.Address]struct{}

func parseBlacklist(entries []string) (blacklist, error) {
	bl := make(blacklist, len(entries))
	for _, entry := range entries {
		addr, err := toEVMAddress(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid BLACKLIST entry %q: %w", entry, err)
		}
		bl[addr] = struct{}{}
	}

	return bl, nil
}

func (bl blacklist) contains(addr common.Address) bool {
	_, ok := bl[addr]
	return ok
}
