package main

import (
	"strconv"
	"strings"

	"github.com/luxfi/faucet/pkg/config"
)

// NativeCurrency is the EIP-3085 currency descriptor.
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// AddEthereumChainParameter is the wallet_addEthereumChain request param.
type AddEthereumChainParameter struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty"`
	IconURLs          []string       `json:"iconUrls,omitempty"`
}

type WatchAssetOptions struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
	Image    string `json:"image,omitempty"`
}

// WatchAssetParameter is the wallet_watchAsset (EIP-747) request param.
type WatchAssetParameter struct {
	Type    string            `json:"type"`
	Options WatchAssetOptions `json:"options"`
}

func hexChainID(id uint64) string {
	return "0x" + strconv.FormatUint(id, 16)
}

func addNetworkParams(chain config.ChainConfig) AddEthereumChainParameter {
	p := AddEthereumChainParameter{
		ChainID:   hexChainID(chain.ChainID),
		ChainName: chain.Name,
		NativeCurrency: NativeCurrency{
			Name:     chain.Name,
			Symbol:   chain.Token,
			Decimals: chain.Decimals,
		},
		RPCURLs: []string{chain.RPC},
	}

	if chain.Explorer != "" {
		p.BlockExplorerURLs = []string{chain.Explorer}
	}

	if chain.Image != "" {
		p.IconURLs = []string{chain.Image}
	}

	return p
}

func watchAssetParams(token config.TokenConfig) WatchAssetParameter {
	return WatchAssetParameter{
		Type: "ERC20",
		Options: WatchAssetOptions{
			Address:  token.ContractAddress,
			Symbol:   token.Token,
			Decimals: token.Decimals,
			Image:    token.Image,
		},
	}
}

// explorerURL links to the token contract when one is given, otherwise to
// the explorer root. Empty when the chain has no explorer.
func explorerURL(chain config.ChainConfig, token *config.TokenConfig) string {
	if chain.Explorer == "" {
		return ""
	}

	base := strings.TrimRight(chain.Explorer, "/")
	if token != nil && token.ContractAddress != "" {
		return base + "/address/" + token.ContractAddress
	}

	return base
}
