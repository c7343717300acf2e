package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/luxfi/faucet/pkg/config"
	"github.com/luxfi/faucet/pkg/ratelimit"
)

// Dripper is implemented by *Faucet.
type Dripper interface {
	Drip(ctx context.Context, addr string, erc20 string) (string, int, error)
	Balance(ctx context.Context, erc20 string) (*big.Int, error)
	Address() common.Address
}

type deps struct {
	cfg       config.Config
	registry  config.Registry
	faucets   map[string]Dripper
	limiter   ratelimit.Store
	blacklist blacklist
	log       zerolog.Logger
	now       func() time.Time
}

type sendTokenRequest struct {
	Address string `json:"address"`
	Chain   string `json:"chain"`
	ERC20   string `json:"erc20"`
}

type messageResponse struct {
	Message    string `json:"message"`
	TxHash     string `json:"txHash,omitempty"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

type chainConfigsResponse struct {
	Configs []config.ChainConfig `json:"configs"`
	Tokens  []config.TokenConfig `json:"tokens"`
}

type balanceResponse struct {
	Balance string `json:"balance"`
	Display string `json:"display"`
}

type addNetworkResponse struct {
	Network  AddEthereumChainParameter `json:"network"`
	Asset    *WatchAssetParameter      `json:"asset,omitempty"`
	Explorer string                    `json:"explorer,omitempty"`
}

func message(c echo.Context, status int, format string, args ...any) error {
	return c.JSON(status, messageResponse{Message: fmt.Sprintf(format, args...)})
}

// resolve looks up the chain (and token, when erc20 is set) named by a
// request. An empty chain selects the first configured chain.
func (d *deps) resolve(chainID, erc20 string) (config.ChainConfig, *config.TokenConfig, error) {
	if chainID == "" {
		chainID = d.registry.Chains[0].ID
	}

	chain, ok := d.registry.Chain(chainID)
	if !ok {
		return config.ChainConfig{}, nil, fmt.Errorf("%w %q", errUnknownChain, chainID)
	}

	if erc20 == "" {
		return chain, nil, nil
	}

	token, ok := d.registry.Token(chain.ID, erc20)
	if !ok {
		return config.ChainConfig{}, nil, fmt.Errorf("%w %q on chain %s", errUnknownToken, erc20, chain.ID)
	}

	return chain, &token, nil
}

// getChainConfigsHandler lists the configured chains and tokens.
func getChainConfigsHandler(d *deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		resp := chainConfigsResponse{
			Configs: d.registry.Chains,
			Tokens:  d.registry.Tokens,
		}
		if resp.Tokens == nil {
			resp.Tokens = []config.TokenConfig{}
		}

		return c.JSON(http.StatusOK, resp)
	}
}

func faucetAddressHandler(d *deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		chain, _, err := d.resolve(c.QueryParam("chain"), "")
		if err != nil {
			return message(c, http.StatusNotFound, "%s", err)
		}

		return c.JSON(http.StatusOK, map[string]string{
			"address": d.faucets[chain.ID].Address().Hex(),
		})
	}
}

func getBalanceHandler(d *deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		chain, token, err := d.resolve(c.QueryParam("chain"), c.QueryParam("erc20"))
		if err != nil {
			return message(c, http.StatusNotFound, "%s", err)
		}

		balance, err := d.faucets[chain.ID].Balance(c.Request().Context(), c.QueryParam("erc20"))
		if err != nil {
			d.log.Error().Msgf("error getting balance on %s: %s", chain.ID, err)
			return message(c, http.StatusBadGateway, "failed to get balance")
		}

		decimals := chain.Decimals
		if token != nil {
			decimals = token.Decimals
		}

		return c.JSON(http.StatusOK, balanceResponse{
			Balance: balance.String(),
			Display: fromBaseUnit(balance, decimals),
		})
	}
}

// addNetworkHandler returns the params for the wallet's add-network and
// watch-asset requests.
func addNetworkHandler(d *deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		chain, token, err := d.resolve(c.QueryParam("chain"), c.QueryParam("erc20"))
		if err != nil {
			return message(c, http.StatusNotFound, "%s", err)
		}

		resp := addNetworkResponse{
			Network:  addNetworkParams(chain),
			Explorer: explorerURL(chain, token),
		}
		if token != nil {
			asset := watchAssetParams(*token)
			resp.Asset = &asset
		}

		return c.JSON(http.StatusOK, resp)
	}
}

// sendTokenHandler handles a drip request.
func sendTokenHandler(d *deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req sendTokenRequest
		if err := c.Bind(&req); err != nil {
			return message(c, http.StatusBadRequest, "invalid request body")
		}
		req.Address = strings.TrimSpace(req.Address)

		chain, _, err := d.resolve(req.Chain, req.ERC20)
		if err != nil {
			return message(c, http.StatusNotFound, "%s", err)
		}
		reqCount.WithLabelValues(chain.ID).Inc()

		if req.Address == "" {
			return message(c, http.StatusBadRequest, "Please connect wallet or enter an address")
		}

		if err := validAddress(req.Address, d.cfg); err != nil {
			return message(c, http.StatusUnprocessableEntity, "%s", err)
		}

		evmAddr, err := toEVMAddress(req.Address)
		if err != nil {
			return message(c, http.StatusUnprocessableEntity, "%s", err)
		}

		if d.blacklist.contains(evmAddr) {
			return message(c, http.StatusUnprocessableEntity, "address %s is blacklisted", req.Address)
		}

		ctx := c.Request().Context()
		scope := chain.ID
		if req.ERC20 != "" {
			scope += "/" + req.ERC20
		}
		key := ratelimit.Key(scope, strings.ToLower(evmAddr.Hex()))
		now := d.now()

		err = d.limiter.Reserve(ctx, key, now, chain.RateLimit.Window(), chain.RateLimit.MaxLimit)
		if err != nil {
			var limitErr *ratelimit.LimitError
			if errors.As(err, &limitErr) {
				reqRateLimitedCount.WithLabelValues(chain.ID).Inc()
				seconds := int(limitErr.RetryAfter.Seconds())
				c.Response().Header().Set("Retry-After", strconv.Itoa(seconds))

				return c.JSON(http.StatusTooManyRequests, messageResponse{
					Message:    fmt.Sprintf("Too many requests, please try again in %s", limitErr.RetryAfter.Round(time.Minute)),
					RetryAfter: seconds,
				})
			}

			d.log.Error().Msgf("error reserving drip for %s: %s", key, err)
			return message(c, http.StatusInternalServerError, "failed to check rate limit")
		}

		txHash, status, err := d.faucets[chain.ID].Drip(ctx, req.Address, req.ERC20)
		if err != nil {
			d.log.Error().Msgf("error sending tokens on %s: %s", chain.ID, err)

			// submitted but unconfirmed drips keep their slot
			if txHash == "" || errors.Is(err, errTxReverted) {
				if relErr := d.limiter.Release(context.WithoutCancel(ctx), key, now); relErr != nil {
					d.log.Error().Msgf("error releasing drip for %s: %s", key, relErr)
				}
			}

			return c.JSON(status, messageResponse{Message: err.Error(), TxHash: txHash})
		}

		return c.JSON(http.StatusOK, messageResponse{
			Message: fmt.Sprintf("Transaction successful on %s!", chain.Name),
			TxHash:  txHash,
		})
	}
}

// homeHandler renders the faucet page.
func homeHandler(d *deps) echo.HandlerFunc {
	page := newPage(d.registry, d.cfg)

	return func(c echo.Context) error {
		p := page
		if addr := c.QueryParam("addr"); addr != "" {
			p.Address = addr
		}
		if chain := c.QueryParam("chain"); chain != "" {
			if _, ok := d.registry.Chain(chain); ok {
				p.DefaultChain = chain
			}
		}

		return c.Render(http.StatusOK, "index", p)
	}
}
