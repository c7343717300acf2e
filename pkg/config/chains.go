package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	defaultDecimals       = 18
	defaultNativeGasLimit = 21000
	defaultERC20GasLimit  = 100000
	defaultWindowMinutes  = 24 * 60
	defaultDailyDrips     = 1000
)

// RateLimit bounds how often one address may use a chain.
type RateLimit struct {
	MaxLimit int `json:"MAX_LIMIT"`
	// WindowSize is expressed in minutes.
	WindowSize int `json:"WINDOW_SIZE"`
}

func (r RateLimit) Window() time.Duration {
	return time.Duration(r.WindowSize) * time.Minute
}

// ChainConfig describes one EVM network the faucet drips on. JSON keys follow
// the wallet helper's wire format.
type ChainConfig struct {
	ID         string     `json:"ID"`
	Name       string     `json:"NAME"`
	Token      string     `json:"TOKEN"`
	RPC        string     `json:"RPC"`
	ChainID    uint64     `json:"CHAINID"`
	Explorer   string     `json:"EXPLORER,omitempty"`
	Image      string     `json:"IMAGE,omitempty"`
	DripAmount float64    `json:"DRIP_AMOUNT"`
	Decimals   int        `json:"DECIMALS"`
	DailyLimit float64    `json:"DAILY_LIMIT"`
	GasLimit   uint64     `json:"GAS_LIMIT"`
	RateLimit  *RateLimit `json:"RATELIMIT,omitempty"`
}

// TokenConfig describes an ERC-20 token hosted on one of the chains.
type TokenConfig struct {
	ID              string  `json:"ID"`
	HostID          string  `json:"HOSTID"`
	Token           string  `json:"TOKEN"`
	ContractAddress string  `json:"CONTRACTADDRESS"`
	Decimals        int     `json:"DECIMALS"`
	DripAmount      float64 `json:"DRIP_AMOUNT"`
	GasLimit        uint64  `json:"GAS_LIMIT"`
	Image           string  `json:"IMAGE,omitempty"`
}

// Registry is the parsed chain registry file.
type Registry struct {
	Chains []ChainConfig `json:"evmchains"`
	Tokens []TokenConfig `json:"erc20tokens"`
}

// Chain returns the chain with the given ID.
func (r Registry) Chain(id string) (ChainConfig, bool) {
	for _, c := range r.Chains {
		if c.ID == id {
			return c, true
		}
	}

	return ChainConfig{}, false
}

// Token returns the token with the given ID hosted on chainID.
func (r Registry) Token(chainID, id string) (TokenConfig, bool) {
	for _, t := range r.Tokens {
		if t.ID == id && t.HostID == chainID {
			return t, true
		}
	}

	return TokenConfig{}, false
}

// TokensOf returns every token hosted on chainID.
func (r Registry) TokensOf(chainID string) []TokenConfig {
	var out []TokenConfig
	for _, t := range r.Tokens {
		if t.HostID == chainID {
			out = append(out, t)
		}
	}

	return out
}

// LoadChains reads and validates the registry at path.
func LoadChains(path string, maxDrip float64) (Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Registry{}, fmt.Errorf("read chains config: %w", err)
	}

	return ParseChains(data, maxDrip)
}

// ParseChains decodes a registry, fills defaults and validates it.
func ParseChains(data []byte, maxDrip float64) (Registry, error) {
	var r Registry
	if err := json.Unmarshal(data, &r); err != nil {
		return Registry{}, fmt.Errorf("decode chains config: %w", err)
	}

	if len(r.Chains) == 0 {
		return Registry{}, errors.New("chains config has no evmchains")
	}

	seen := make(map[string]bool, len(r.Chains))
	for i := range r.Chains {
		c := &r.Chains[i]
		c.applyDefaults()

		if err := c.validate(maxDrip); err != nil {
			return Registry{}, err
		}

		if seen[c.ID] {
			return Registry{}, fmt.Errorf("duplicate chain ID %q", c.ID)
		}
		seen[c.ID] = true
	}

	tokens := make(map[string]bool, len(r.Tokens))
	for i := range r.Tokens {
		t := &r.Tokens[i]
		t.applyDefaults()

		if err := t.validate(maxDrip); err != nil {
			return Registry{}, err
		}

		if !seen[t.HostID] {
			return Registry{}, fmt.Errorf("token %q: unknown HOSTID %q", t.ID, t.HostID)
		}

		key := t.HostID + "/" + t.ID
		if tokens[key] {
			return Registry{}, fmt.Errorf("duplicate token %q on chain %q", t.ID, t.HostID)
		}
		tokens[key] = true
	}

	return r, nil
}

func (c *ChainConfig) applyDefaults() {
	if c.Decimals == 0 {
		c.Decimals = defaultDecimals
	}

	if c.GasLimit == 0 {
		c.GasLimit = defaultNativeGasLimit
	}

	if c.DailyLimit == 0 {
		c.DailyLimit = c.DripAmount * defaultDailyDrips
	}

	if c.RateLimit == nil {
		c.RateLimit = &RateLimit{}
	}

	if c.RateLimit.MaxLimit == 0 {
		c.RateLimit.MaxLimit = 1
	}

	if c.RateLimit.WindowSize == 0 {
		c.RateLimit.WindowSize = defaultWindowMinutes
	}
}

func (c *ChainConfig) validate(maxDrip float64) error {
	switch {
	case c.ID == "":
		return errors.New("chain with empty ID")
	case c.RPC == "":
		return fmt.Errorf("chain %q: empty RPC", c.ID)
	case c.ChainID == 0:
		return fmt.Errorf("chain %q: CHAINID must be set", c.ID)
	case c.DripAmount <= 0 || c.DripAmount > maxDrip:
		return fmt.Errorf("chain %q: DRIP_AMOUNT %v out of range (0, %v]", c.ID, c.DripAmount, maxDrip)
	case c.Decimals < 0:
		return fmt.Errorf("chain %q: negative DECIMALS", c.ID)
	case fractionDigits(c.DripAmount) > c.Decimals:
		return fmt.Errorf("chain %q: DRIP_AMOUNT %s has more than %d decimals", c.ID, DripString(c.DripAmount), c.Decimals)
	case c.DailyLimit < c.DripAmount:
		return fmt.Errorf("chain %q: DAILY_LIMIT %v below DRIP_AMOUNT", c.ID, c.DailyLimit)
	case c.RateLimit.MaxLimit < 0 || c.RateLimit.WindowSize < 0:
		return fmt.Errorf("chain %q: negative RATELIMIT", c.ID)
	}

	return nil
}

func (t *TokenConfig) applyDefaults() {
	if t.Decimals == 0 {
		t.Decimals = defaultDecimals
	}

	if t.GasLimit == 0 {
		t.GasLimit = defaultERC20GasLimit
	}
}

func (t *TokenConfig) validate(maxDrip float64) error {
	switch {
	case t.ID == "":
		return errors.New("token with empty ID")
	case !common.IsHexAddress(t.ContractAddress):
		return fmt.Errorf("token %q: invalid CONTRACTADDRESS %q", t.ID, t.ContractAddress)
	case t.DripAmount <= 0 || t.DripAmount > maxDrip:
		return fmt.Errorf("token %q: DRIP_AMOUNT %v out of range (0, %v]", t.ID, t.DripAmount, maxDrip)
	case t.Decimals < 0:
		return fmt.Errorf("token %q: negative DECIMALS", t.ID)
	case fractionDigits(t.DripAmount) > t.Decimals:
		return fmt.Errorf("token %q: DRIP_AMOUNT %s has more than %d decimals", t.ID, DripString(t.DripAmount), t.Decimals)
	}

	return nil
}

// DripString formats the amount without exponent, for exact base unit
// conversion.
func DripString(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}

func fractionDigits(amount float64) int {
	_, frac, _ := strings.Cut(DripString(amount), ".")
	return len(frac)
}
