package main

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/luxfi/faucet/pkg/config"
)

func TestToEVMAddress(t *testing.T) {
	testCases := []struct {
		name      string
		addr      string
		expected  string
		expectErr bool
	}{
		{
			name:      "Valid bech32 lux address",
			addr:      "lux13uw2zuqjpklx48vk24xuwc7qs7f4kpkt5l66pf",
			expected:  "0x8f1ca170120DbE6A9D96554dc763C087935b06cb",
			expectErr: false,
		},
		{
			name:      "Chain alias prefix",
			addr:      "X-lux13uw2zuqjpklx48vk24xuwc7qs7f4kpkt5l66pf",
			expected:  "0x8f1ca170120DbE6A9D96554dc763C087935b06cb",
			expectErr: false,
		},
		{
			name:      "Valid bech32 cosmos address",
			addr:      "cosmos13uw2zuqjpklx48vk24xuwc7qs7f4kpktmy0ft8",
			expected:  "0x8f1ca170120DbE6A9D96554dc763C087935b06cb",
			expectErr: false,
		},
		{
			name:      "Already EVM address",
			addr:      "0x8f1ca170120dbe6a9d96554dc763c087935b06cb",
			expected:  "0x8f1ca170120DbE6A9D96554dc763C087935b06cb",
			expectErr: false,
		},
		{
			name:      "Invalid bech32 address",
			addr:      "invalid123",
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			addr, err := toEVMAddress(tc.addr)
			if tc.expectErr {
				if err == nil {
					t.Errorf("expected error but got none")
				} else {
					t.Logf("got expected error: %v", err)
				}
				return
			}

			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}

			if addr.Hex() != tc.expected {
				t.Errorf("expected address %q, got %q", tc.expected, addr.Hex())
			}
		})
	}
}

func TestValidAddress(t *testing.T) {
	cfg := config.Config{
		AcceptedPrefixes: "lux, test",
	}

	testCases := []struct {
		name      string
		addr      string
		expectErr bool
	}{
		{
			name:      "Valid EVM address",
			addr:      "0x8f1ca170120dbe6a9d96554dc763c087935b06cb",
			expectErr: false,
		},
		{
			name:      "Valid lux bech32 address",
			addr:      "lux13uw2zuqjpklx48vk24xuwc7qs7f4kpkt5l66pf",
			expectErr: false,
		},
		{
			name:      "Valid P-chain alias",
			addr:      "P-lux13uw2zuqjpklx48vk24xuwc7qs7f4kpkt5l66pf",
			expectErr: false,
		},
		{
			name:      "Valid test bech32 address",
			addr:      "test13uw2zuqjpklx48vk24xuwc7qs7f4kpkthajh8n",
			expectErr: false,
		},
		{
			name:      "Unsupported prefix",
			addr:      "cosmos13uw2zuqjpklx48vk24xuwc7qs7f4kpktmy0ft8",
			expectErr: true,
		},
		{
			name:      "Bad checksum",
			addr:      "lux13uw2zuqjpklx48vk24xuwc7qs7f4kpkt5l66pq",
			expectErr: true,
		},
		{
			name:      "Invalid EVM address",
			addr:      "0xinvalid",
			expectErr: true,
		},
		{
			name:      "Invalid format",
			addr:      "invalid123",
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := validAddress(tc.addr, cfg)
			if tc.expectErr && err == nil {
				t.Errorf("expected error but got none for address: %s", tc.addr)
			} else if !tc.expectErr && err != nil {
				t.Errorf("unexpected error for address %s: %v", tc.addr, err)
			}
		})
	}
}

func TestParseBlacklist(t *testing.T) {
	bl, err := parseBlacklist([]string{"0x8f1ca170120dbe6a9d96554dc763c087935b06cb"})
	if err != nil {
		t.Fatalf("parseBlacklist: %v", err)
	}

	for _, addr := range []string{
		"0x8F1CA170120DBE6A9D96554DC763C087935B06CB",
		"lux13uw2zuqjpklx48vk24xuwc7qs7f4kpkt5l66pf",
		"X-test13uw2zuqjpklx48vk24xuwc7qs7f4kpkthajh8n",
	} {
		evm, err := toEVMAddress(addr)
		if err != nil {
			t.Fatalf("toEVMAddress(%q): %v", addr, err)
		}
		if !bl.contains(evm) {
			t.Errorf("expected %s to be blacklisted", addr)
		}
	}

	if bl.contains(common.HexToAddress("0x000000000000000000000000000000000000dEaD")) {
		t.Error("unexpected blacklist match")
	}

	if _, err := parseBlacklist([]string{"0x1234"}); err == nil {
		t.Error("expected error for invalid entry")
	}
}
