package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"github.com/luxfi/faucet/pkg/config"
)

const maxGasPriceMultiplier = 20

var (
	errUnknownChain   = errors.New("unknown chain")
	errUnknownToken   = errors.New("unknown token")
	errSupplyExceeded = errors.New("no tokens available, please come back tomorrow")
	errTxReverted     = errors.New("transaction reverted")
)

// EVMClient is the subset of *ethclient.Client used by the faucet.
type EVMClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

type faucetOptions struct {
	ReceiptTimeout time.Duration
	PollInterval   time.Duration
	MaxRetries     int
	// Backoff returns how long to wait before the given retry.
	Backoff func(retry int) time.Duration
}

func defaultFaucetOptions(receiptTimeout time.Duration) faucetOptions {
	return faucetOptions{
		ReceiptTimeout: receiptTimeout,
		PollInterval:   2 * time.Second,
		MaxRetries:     5,
		Backoff: func(retry int) time.Duration {
			// 1s, 4s, 9s, 16s
			return time.Duration(retry*retry) * time.Second
		},
	}
}

// Faucet drips tokens on a single chain.
type Faucet struct {
	mu sync.Mutex

	log         zerolog.Logger
	chain       config.ChainConfig
	tokens      map[string]config.TokenConfig
	client      EVMClient
	privateKey  *ecdsa.PrivateKey
	fromAddress common.Address
	signer      types.Signer
	opts        faucetOptions

	DailySupply     float64
	TokensAvailable float64
	LatestTXHash    string

	nonce      uint64
	nonceMutex sync.Mutex
}

func NewFaucet(
	chain config.ChainConfig,
	tokens []config.TokenConfig,
	client EVMClient,
	privateKey *ecdsa.PrivateKey,
	opts faucetOptions,
	logger zerolog.Logger,
) *Faucet {
	f := &Faucet{
		log:             logger.With().Str("chain", chain.ID).Logger(),
		chain:           chain,
		tokens:          make(map[string]config.TokenConfig, len(tokens)),
		client:          client,
		privateKey:      privateKey,
		fromAddress:     crypto.PubkeyToAddress(privateKey.PublicKey),
		signer:          types.LatestSignerForChainID(new(big.Int).SetUint64(chain.ChainID)),
		opts:            opts,
		DailySupply:     chain.DailyLimit,
		TokensAvailable: chain.DailyLimit,
	}

	for _, t := range tokens {
		f.tokens[t.ID] = t
	}

	dailySupply.WithLabelValues(chain.ID).Set(f.TokensAvailable)

	return f
}

func (f *Faucet) Address() common.Address {
	return f.fromAddress
}

func (f *Faucet) Chain() config.ChainConfig {
	return f.chain
}

// Supply returns the tokens left for today and the daily supply.
func (f *Faucet) Supply() (float64, float64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.TokensAvailable, f.DailySupply
}

// Refill resets the available tokens to the daily supply.
func (f *Faucet) Refill() {
	f.mu.Lock()
	f.TokensAvailable = f.DailySupply
	f.mu.Unlock()

	dailySupply.WithLabelValues(f.chain.ID).Set(f.DailySupply)
	f.log.Info().Msgf("daily supply refilled to %f %s", f.DailySupply, f.chain.Token)
}

// VerifyChainID checks the RPC endpoint serves the configured chain.
func (f *Faucet) VerifyChainID(ctx context.Context) error {
	id, err := f.client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to get chain ID: %w", err)
	}

	if id.Uint64() != f.chain.ChainID {
		return fmt.Errorf("RPC reports chain ID %s, configured %d", id, f.chain.ChainID)
	}

	return nil
}

// Balance returns the faucet balance in base units, of the native token or
// of the ERC-20 token with the given ID.
func (f *Faucet) Balance(ctx context.Context, erc20 string) (*big.Int, error) {
	if erc20 == "" {
		return f.client.BalanceAt(ctx, f.fromAddress, nil)
	}

	token, ok := f.tokens[erc20]
	if !ok {
		return nil, fmt.Errorf("%w %q on chain %s", errUnknownToken, erc20, f.chain.ID)
	}

	data, err := erc20ABI.Pack("balanceOf", f.fromAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf: %w", err)
	}

	contract := common.HexToAddress(token.ContractAddress)
	out, err := f.client.CallContract(ctx, ethereum.CallMsg{From: f.fromAddress, To: &contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call balanceOf: %w", err)
	}

	values, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack balanceOf: %w", err)
	}

	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, errors.New("unexpected balanceOf result")
	}

	return balance, nil
}

// Drip sends the configured amount of the native token, or of the ERC-20
// token erc20 when set, to addr. A non-empty hash together with an error
// means the transaction was submitted but not confirmed, unless the error
// wraps errTxReverted.
func (f *Faucet) Drip(ctx context.Context, addr string, erc20 string) (string, int, error) {
	var token *config.TokenConfig
	if erc20 != "" {
		t, ok := f.tokens[erc20]
		if !ok {
			return "", http.StatusNotFound, fmt.Errorf("%w %q on chain %s", errUnknownToken, erc20, f.chain.ID)
		}
		token = &t
	}

	to, err := toEVMAddress(addr)
	if err != nil {
		return "", http.StatusUnprocessableEntity, err
	}

	// ERC-20 drips do not count against the native daily supply.
	if token == nil {
		if err := f.reserveSupply(); err != nil {
			return "", http.StatusTooManyRequests, err
		}
	}

	txHash, submitted, err := f.send(ctx, to, token)
	if err != nil {
		reqErrorCount.WithLabelValues(f.chain.ID).Inc()
		if (!submitted || errors.Is(err, errTxReverted)) && token == nil {
			f.refundSupply()
		}
		return txHash, http.StatusInternalServerError, fmt.Errorf("failed to send tokens: %w", err)
	}

	f.mu.Lock()
	f.LatestTXHash = txHash
	f.mu.Unlock()

	symbol := f.chain.Token
	if token != nil {
		symbol = token.Token
	}
	dripCount.WithLabelValues(f.chain.ID, symbol).Inc()
	f.log.Info().Msgf("sent %s to %s, tx: %s", symbol, to.Hex(), txHash)

	return txHash, http.StatusOK, nil
}

func (f *Faucet) reserveSupply() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.TokensAvailable < f.chain.DripAmount {
		return errSupplyExceeded
	}

	f.TokensAvailable -= f.chain.DripAmount
	f.log.Debug().Msgf("tokens available: %f", f.TokensAvailable)
	dailySupply.WithLabelValues(f.chain.ID).Set(f.TokensAvailable)

	return nil
}

func (f *Faucet) refundSupply() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.TokensAvailable += f.chain.DripAmount
	if f.TokensAvailable > f.DailySupply {
		f.TokensAvailable = f.DailySupply
	}
	dailySupply.WithLabelValues(f.chain.ID).Set(f.TokensAvailable)
}

// buildCall returns the target, value, calldata and gas limit of a drip.
func (f *Faucet) buildCall(
	to common.Address,
	token *config.TokenConfig,
) (common.Address, *big.Int, []byte, uint64, error) {
	if token == nil {
		amount, err := toBaseUnit(config.DripString(f.chain.DripAmount), f.chain.Decimals)
		if err != nil {
			return common.Address{}, nil, nil, 0, err
		}
		return to, amount, nil, f.chain.GasLimit, nil
	}

	amount, err := toBaseUnit(config.DripString(token.DripAmount), token.Decimals)
	if err != nil {
		return common.Address{}, nil, nil, 0, err
	}

	data, err := erc20ABI.Pack("transfer", to, amount)
	if err != nil {
		return common.Address{}, nil, nil, 0, fmt.Errorf("failed to pack transfer: %w", err)
	}

	return common.HexToAddress(token.ContractAddress), new(big.Int), data, token.GasLimit, nil
}

// send submits the drip with retries and waits for it to be mined. submitted
// reports whether a transaction reached the node.
func (f *Faucet) send(ctx context.Context, to common.Address, token *config.TokenConfig) (string, bool, error) {
	target, value, data, gasLimit, err := f.buildCall(to, token)
	if err != nil {
		return "", false, err
	}

	var lastErr error
	for retry := 0; retry < f.opts.MaxRetries; retry++ {
		if retry > 0 {
			waitTime := f.opts.Backoff(retry)
			f.log.Info().Msgf("waiting %v before retry %d", waitTime, retry+1)
			select {
			case <-ctx.Done():
				return "", false, fmt.Errorf("%w (last error: %w)", ctx.Err(), lastErr)
			case <-time.After(waitTime):
			}
		}

		nonce, err := f.getAndIncrementNonce(ctx)
		if err != nil {
			lastErr = fmt.Errorf("failed to get nonce: %w", err)
			f.log.Error().Msgf("retry %d: %v", retry+1, lastErr)
			continue
		}

		gasPrice, err := f.client.SuggestGasPrice(ctx)
		if err != nil {
			f.releaseNonce(nonce)
			lastErr = fmt.Errorf("failed to suggest gas price: %w", err)
			f.log.Error().Msgf("retry %d: %v", retry+1, lastErr)
			continue
		}

		if retry > 0 {
			original := gasPrice
			gasPrice = bumpGasPrice(gasPrice, retry)
			f.log.Warn().Msgf("retry %d: increasing gas price from %s to %s", retry+1, original, gasPrice)
		}

		tx := types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			To:       &target,
			Value:    value,
			Gas:      gasLimit,
			GasPrice: gasPrice,
			Data:     data,
		})

		signedTx, err := types.SignTx(tx, f.signer, f.privateKey)
		if err != nil {
			f.releaseNonce(nonce)
			return "", false, fmt.Errorf("failed to sign transaction to %s: %w", to.Hex(), err)
		}

		if err := f.client.SendTransaction(ctx, signedTx); err != nil {
			f.releaseNonce(nonce)
			lastErr = err
			f.log.Warn().Msgf("send attempt %d failed: %v", retry+1, err)
			continue
		}

		txHash := signedTx.Hash()
		f.log.Debug().Msgf("transaction submitted to %s: %s", to.Hex(), txHash.Hex())

		if err := f.waitForTransactionReceipt(ctx, txHash); err != nil {
			return txHash.Hex(), true, err
		}

		return txHash.Hex(), true, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no attempts made")
	}

	errType := classifySendError(lastErr)
	f.log.Error().
		Msgf("transaction failed permanently (type: %s) after %d retries: %v", errType, f.opts.MaxRetries, lastErr)

	return "", false, fmt.Errorf(
		"failed after %d retries (error_type: %s), last error: %w",
		f.opts.MaxRetries,
		errType,
		lastErr,
	)
}

// bumpGasPrice multiplies gasPrice by 2^retry, capped at maxGasPriceMultiplier.
func bumpGasPrice(gasPrice *big.Int, retry int) *big.Int {
	multiplier := int64(maxGasPriceMultiplier)
	if retry < 5 {
		multiplier = min(int64(1)<<retry, maxGasPriceMultiplier)
	}

	return new(big.Int).Mul(gasPrice, big.NewInt(multiplier))
}

func classifySendError(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "nonce"):
		return "nonce_conflict"
	case strings.Contains(msg, "replacement") || strings.Contains(msg, "underpriced"):
		return "replacement_underpriced"
	case strings.Contains(msg, "insufficient"):
		return "insufficient_funds"
	case strings.Contains(msg, "gas"):
		return "gas_related"
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "context"):
		return "network_timeout"
	}

	return "unknown"
}

// getAndIncrementNonce reserves the next nonce. The tracked nonce never falls
// behind the node's pending or confirmed nonce.
func (f *Faucet) getAndIncrementNonce(ctx context.Context) (uint64, error) {
	f.nonceMutex.Lock()
	defer f.nonceMutex.Unlock()

	pendingNonce, err := f.client.PendingNonceAt(ctx, f.fromAddress)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending nonce: %w", err)
	}

	confirmedNonce, err := f.client.NonceAt(ctx, f.fromAddress, nil)
	if err != nil {
		f.log.Warn().Msgf("failed to get confirmed nonce: %v", err)
	} else if pendingNonce < confirmedNonce {
		f.log.Warn().Msgf("pending nonce %d is less than confirmed nonce %d, using confirmed",
			pendingNonce, confirmedNonce)
		pendingNonce = confirmedNonce
	}

	maxNonce := max(pendingNonce, f.nonce)
	if maxNonce > f.nonce+10 {
		f.log.Warn().Msgf("large nonce gap detected: tracked=%d, network=%d", f.nonce, maxNonce)
	}

	current := maxNonce
	f.nonce = maxNonce + 1

	f.log.Debug().Msgf("allocated nonce %d (confirmed: %d, pending: %d)", current, confirmedNonce, pendingNonce)
	return current, nil
}

// releaseNonce gives back nonce if it is still the latest reservation.
func (f *Faucet) releaseNonce(nonce uint64) {
	f.nonceMutex.Lock()
	defer f.nonceMutex.Unlock()

	if f.nonce == nonce+1 {
		f.nonce = nonce
	}
}

// waitForTransactionReceipt waits for a transaction to be mined.
func (f *Faucet) waitForTransactionReceipt(ctx context.Context, txHash common.Hash) error {
	f.log.Debug().Msgf("waiting for transaction receipt: %s", txHash.Hex())

	waitCtx, cancel := context.WithTimeout(ctx, f.opts.ReceiptTimeout)
	defer cancel()

	ticker := time.NewTicker(f.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-waitCtx.Done():
			return fmt.Errorf("transaction %s not mined within %v", txHash.Hex(), f.opts.ReceiptTimeout)
		case <-ticker.C:
			receipt, err := f.client.TransactionReceipt(waitCtx, txHash)
			if err != nil {
				// not yet mined
				continue
			}

			if receipt.Status == types.ReceiptStatusFailed {
				return fmt.Errorf("%w: %s failed (status: 0)", errTxReverted, txHash.Hex())
			}

			var block uint64
			if receipt.BlockNumber != nil {
				block = receipt.BlockNumber.Uint64()
			}
			f.log.Info().Msgf("transaction %s confirmed in block %d", txHash.Hex(), block)
			return nil
		}
	}
}
