package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"justthetip/internal/assets"
	"justthetip/internal/models"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/time/rate"
)

const lamportDecimals = 9

// SolanaClient talks JSON-RPC to a Solana node. All request methods respect
// the configured rate limit before hitting the wire.
type SolanaClient struct {
	endpoint string
	network  string
	http     *http.Client
	limiter  *rate.Limiter
	signer   *Signer
	reqId    atomic.Uint64
}

var _ Client = (*SolanaClient)(nil)

// NewSolanaClient builds a client against cfg.Endpoint. The signer may be
// nil for read-only use; Send then returns ErrNoSigner.
func NewSolanaClient(cfg models.ChainConfig, signer *Signer) (*SolanaClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("chain endpoint is required")
	}

	httpClient, err := createRpcHttpClient(cfg.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("unable to create rpc http client: %w", err)
	}

	return &SolanaClient{
		endpoint: cfg.Endpoint,
		network:  cfg.Network,
		http:     httpClient,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		signer:   signer,
	}, nil
}

func createRpcHttpClient(timeout time.Duration) (*http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return nil, err
	}

	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}

type rpcRequest struct {
	JsonRpc string `json:"jsonrpc"`
	Id      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *SolanaClient) call(ctx context.Context, method string, params any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(rpcRequest{
		JsonRpc: "2.0",
		Id:      c.reqId.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("unable to marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("unable to create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("rpc %s failed: %w", method, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			zap.L().Warn("Failed to close rpc response body", zap.Error(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rpc %s returned http %d", method, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("unable to decode %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("rpc %s error %d: %s", method, rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("unable to unmarshal %s result: %w", method, err)
		}
	}
	return nil
}

type commitmentOpts struct {
	Commitment string `json:"commitment"`
}

// GetBalance returns the confirmed balance of address in whole units. Native
// balances come from getBalance; SPL balances sum the owner's token accounts
// for the asset's mint.
func (c *SolanaClient) GetBalance(ctx context.Context, address string, asset assets.Descriptor) (decimal.Decimal, error) {
	if asset.Mint == "" {
		var result struct {
			Value uint64 `json:"value"`
		}
		params := []any{address, commitmentOpts{Commitment: "confirmed"}}
		if err := c.call(ctx, "getBalance", params, &result); err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromBigInt(new(big.Int).SetUint64(result.Value), -lamportDecimals), nil
	}

	accounts, err := c.tokenAccounts(ctx, address, asset.Mint)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, acct := range accounts {
		amount, err := decimal.NewFromString(acct.amount)
		if err != nil {
			return decimal.Zero, fmt.Errorf("unable to parse token amount %q: %w", acct.amount, err)
		}
		total = total.Add(decimal.NewFromBigInt(amount.BigInt(), -asset.Decimals))
	}
	return total, nil
}

type tokenAccount struct {
	address string
	amount  string // raw base units
}

func (c *SolanaClient) tokenAccounts(ctx context.Context, owner, mint string) ([]tokenAccount, error) {
	var result struct {
		Value []struct {
			Pubkey  string `json:"pubkey"`
			Account struct {
				Data struct {
					Parsed struct {
						Info struct {
							TokenAmount struct {
								Amount string `json:"amount"`
							} `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
				} `json:"data"`
			} `json:"account"`
		} `json:"value"`
	}
	params := []any{
		owner,
		map[string]string{"mint": mint},
		map[string]string{"encoding": "jsonParsed", "commitment": "confirmed"},
	}
	if err := c.call(ctx, "getTokenAccountsByOwner", params, &result); err != nil {
		return nil, err
	}

	accounts := make([]tokenAccount, 0, len(result.Value))
	for _, v := range result.Value {
		accounts = append(accounts, tokenAccount{
			address: v.Pubkey,
			amount:  v.Account.Data.Parsed.Info.TokenAmount.Amount,
		})
	}
	return accounts, nil
}

// Send submits a transfer from the hot wallet and returns its signature.
func (c *SolanaClient) Send(ctx context.Context, destination string, amount decimal.Decimal, asset assets.Descriptor) (string, error) {
	if c.signer == nil {
		return "", ErrNoSigner
	}

	destKey, err := decodePublicKey(destination)
	if err != nil {
		return "", fmt.Errorf("invalid destination address: %w", err)
	}

	blockhash, err := c.latestBlockhash(ctx)
	if err != nil {
		return "", err
	}

	var message []byte
	if asset.Mint == "" {
		lamports, err := baseUnits(amount, lamportDecimals)
		if err != nil {
			return "", err
		}
		message = buildTransferMessage(c.signer.publicKey, destKey, lamports, blockhash)
	} else {
		units, err := baseUnits(amount, asset.Decimals)
		if err != nil {
			return "", err
		}
		message, err = c.buildTokenTransfer(ctx, destination, units, asset, blockhash)
		if err != nil {
			return "", err
		}
	}

	encoded, err := c.signer.signTransaction(message)
	if err != nil {
		return "", err
	}

	var signature string
	params := []any{encoded, map[string]string{"encoding": "base64"}}
	if err := c.call(ctx, "sendTransaction", params, &signature); err != nil {
		return "", err
	}

	zap.L().Info("Submitted chain transfer",
		zap.String("asset", asset.Symbol),
		zap.String("amount", amount.String()),
		zap.String("signature", signature))

	return signature, nil
}

func (c *SolanaClient) buildTokenTransfer(ctx context.Context, destOwner string, units uint64, asset assets.Descriptor, blockhash [32]byte) ([]byte, error) {
	sourceAccounts, err := c.tokenAccounts(ctx, c.signer.PublicKey(), asset.Mint)
	if err != nil {
		return nil, err
	}
	if len(sourceAccounts) == 0 {
		return nil, fmt.Errorf("hot wallet holds no %s token account", asset.Symbol)
	}

	destAccounts, err := c.tokenAccounts(ctx, destOwner, asset.Mint)
	if err != nil {
		return nil, err
	}
	if len(destAccounts) == 0 {
		return nil, fmt.Errorf("%w: %s owner %s", ErrNoTokenAccount, asset.Mint, destOwner)
	}

	source, err := decodePublicKey(sourceAccounts[0].address)
	if err != nil {
		return nil, fmt.Errorf("invalid source token account: %w", err)
	}
	dest, err := decodePublicKey(destAccounts[0].address)
	if err != nil {
		return nil, fmt.Errorf("invalid destination token account: %w", err)
	}

	return buildTokenTransferMessage(c.signer.publicKey, source, dest, units, blockhash), nil
}

func (c *SolanaClient) latestBlockhash(ctx context.Context) ([32]byte, error) {
	var result struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	params := []any{commitmentOpts{Commitment: "confirmed"}}
	if err := c.call(ctx, "getLatestBlockhash", params, &result); err != nil {
		return [32]byte{}, err
	}
	return decodePublicKey(result.Value.Blockhash)
}

// Confirm looks up the signature's status. A missing status means the
// transaction has not landed yet.
func (c *SolanaClient) Confirm(ctx context.Context, signature string) (ConfirmStatus, error) {
	var result struct {
		Value []*struct {
			ConfirmationStatus string          `json:"confirmationStatus"`
			Err                json.RawMessage `json:"err"`
		} `json:"value"`
	}
	params := []any{
		[]string{signature},
		map[string]bool{"searchTransactionHistory": true},
	}
	if err := c.call(ctx, "getSignatureStatuses", params, &result); err != nil {
		return StatusPending, err
	}

	if len(result.Value) == 0 || result.Value[0] == nil {
		return StatusPending, nil
	}

	status := result.Value[0]
	if len(status.Err) > 0 && string(status.Err) != "null" {
		return StatusFailed, nil
	}
	switch status.ConfirmationStatus {
	case "confirmed", "finalized":
		return StatusConfirmed, nil
	default:
		return StatusPending, nil
	}
}

// IsValidAddress checks that address decodes as a 32-byte base58 public key.
func (c *SolanaClient) IsValidAddress(address string) bool {
	_, err := decodePublicKey(address)
	return err == nil
}

// RequestTestFunds hits the devnet faucet. Refused on any other network.
func (c *SolanaClient) RequestTestFunds(ctx context.Context, address string, amount decimal.Decimal) (string, error) {
	if c.network != "devnet" {
		return "", fmt.Errorf("%w: network is %s", ErrAirdropUnavailable, c.network)
	}

	lamports, err := baseUnits(amount, lamportDecimals)
	if err != nil {
		return "", err
	}

	var signature string
	if err := c.call(ctx, "requestAirdrop", []any{address, lamports}, &signature); err != nil {
		return "", err
	}
	return signature, nil
}

func decodePublicKey(encoded string) ([32]byte, error) {
	var key [32]byte
	raw, err := base58.Decode(encoded)
	if err != nil {
		return key, fmt.Errorf("not base58: %w", err)
	}
	if len(raw) != len(key) {
		return key, fmt.Errorf("expected 32 bytes, got %d", len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

// baseUnits converts a whole-unit amount into the chain's integer base
// units, rejecting amounts with more precision than the asset supports.
func baseUnits(amount decimal.Decimal, decimals int32) (uint64, error) {
	shifted := amount.Shift(decimals)
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("amount %s exceeds %d decimal places", amount.String(), decimals)
	}
	bi := shifted.BigInt()
	if bi.Sign() < 0 || !bi.IsUint64() {
		return 0, fmt.Errorf("amount %s is out of range", amount.String())
	}
	return bi.Uint64(), nil
}
