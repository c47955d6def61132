package chain

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"justthetip/internal/assets"
	"justthetip/internal/models"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *SolanaClient {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewSolanaClient(models.ChainConfig{
		Endpoint:       server.URL,
		Network:        "devnet",
		RequestTimeout: 5 * time.Second,
		RateLimit:      1000,
		RateBurst:      1000,
	}, nil)
	require.NoError(t, err)
	return client
}

func rpcResult(t *testing.T, w http.ResponseWriter, result string) {
	t.Helper()
	_, err := w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":` + result + `}`))
	require.NoError(t, err)
}

func TestGetBalance_Native(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "getBalance", req.Method)
		rpcResult(t, w, `{"context":{"slot":100},"value":2500000000}`)
	})

	balance, err := client.GetBalance(context.Background(), "some-address",
		assets.Descriptor{Symbol: "SOLANA", Decimals: 9})
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("2.5")), "got %s", balance.String())
}

func TestGetBalance_TokenSumsAccounts(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "getTokenAccountsByOwner", req.Method)
		rpcResult(t, w, `{"context":{"slot":100},"value":[
			{"pubkey":"acct1","account":{"data":{"parsed":{"info":{"tokenAmount":{"amount":"1500000"}}}}}},
			{"pubkey":"acct2","account":{"data":{"parsed":{"info":{"tokenAmount":{"amount":"500000"}}}}}}
		]}`)
	})

	balance, err := client.GetBalance(context.Background(), "owner-address",
		assets.Descriptor{Symbol: "SOLUSDC", Decimals: 6, Mint: "mint-address"})
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(2)), "got %s", balance.String())
}

func TestConfirm_Statuses(t *testing.T) {
	cases := []struct {
		name   string
		value  string
		expect ConfirmStatus
	}{
		{"not landed", `[null]`, StatusPending},
		{"processed only", `[{"confirmationStatus":"processed","err":null}]`, StatusPending},
		{"confirmed", `[{"confirmationStatus":"confirmed","err":null}]`, StatusConfirmed},
		{"finalized", `[{"confirmationStatus":"finalized","err":null}]`, StatusConfirmed},
		{"errored on chain", `[{"confirmationStatus":"confirmed","err":{"InstructionError":[0,"Custom"]}}]`, StatusFailed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				rpcResult(t, w, `{"context":{"slot":100},"value":`+tc.value+`}`)
			})

			status, err := client.Confirm(context.Background(), "some-signature")
			require.NoError(t, err)
			assert.Equal(t, tc.expect, status)
		})
	}
}

func TestCall_RpcError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"invalid params"}}`))
	})

	_, err := client.GetBalance(context.Background(), "x", assets.Descriptor{Symbol: "SOLANA"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid params")
}

func TestIsValidAddress(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	valid := base58.Encode(make([]byte, 32))
	assert.True(t, client.IsValidAddress(valid))

	assert.False(t, client.IsValidAddress(""))
	assert.False(t, client.IsValidAddress("not-base58-0OIl"))
	assert.False(t, client.IsValidAddress(base58.Encode(make([]byte, 31))))
}

func TestRequestTestFunds_DevnetOnly(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("mainnet client must not call the faucet")
	}))
	defer server.Close()

	client, err := NewSolanaClient(models.ChainConfig{
		Endpoint:       server.URL,
		Network:        "mainnet-beta",
		RequestTimeout: 5 * time.Second,
		RateLimit:      10,
		RateBurst:      10,
	}, nil)
	require.NoError(t, err)

	_, err = client.RequestTestFunds(context.Background(), "addr", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrAirdropUnavailable)
}

func TestSend_RequiresSigner(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := client.Send(context.Background(), base58.Encode(make([]byte, 32)),
		decimal.NewFromInt(1), assets.Descriptor{Symbol: "SOLANA", Decimals: 9})
	assert.ErrorIs(t, err, ErrNoSigner)
}

func TestSigner_FromBase58(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	signer, err := NewSignerFromBase58(base58.Encode(priv))
	require.NoError(t, err)
	assert.Equal(t, base58.Encode(pub), signer.PublicKey())

	_, err = NewSignerFromBase58("tooshort")
	require.Error(t, err)
}

func TestAppendShortVec(t *testing.T) {
	cases := []struct {
		n      int
		expect []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{300, []byte{0xac, 0x02}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.expect, appendShortVec(nil, tc.n), "n=%d", tc.n)
	}
}

func TestBaseUnits(t *testing.T) {
	units, err := baseUnits(decimal.RequireFromString("1.5"), 9)
	require.NoError(t, err)
	assert.Equal(t, uint64(1500000000), units)

	// More precision than the asset supports.
	_, err = baseUnits(decimal.RequireFromString("0.0000000001"), 9)
	require.Error(t, err)

	_, err = baseUnits(decimal.RequireFromString("-1"), 9)
	require.Error(t, err)
}

func TestBuildTransferMessage_Layout(t *testing.T) {
	var payer, dest, blockhash [32]byte
	payer[0] = 1
	dest[0] = 2
	blockhash[0] = 3

	msg := buildTransferMessage(payer, dest, 42, blockhash)

	// Header: 1 signer, 0 readonly signed, 1 readonly unsigned.
	assert.Equal(t, []byte{1, 0, 1}, msg[:3])
	// Three account keys.
	assert.Equal(t, byte(3), msg[3])
	assert.Equal(t, payer[:], msg[4:36])
	assert.Equal(t, dest[:], msg[36:68])
	assert.Equal(t, systemProgram[:], msg[68:100])
	assert.Equal(t, blockhash[:], msg[100:132])
	// One instruction against account index 2 (system program), 12 data
	// bytes: u32 discriminator 2 then u64 lamports.
	assert.Equal(t, byte(1), msg[132])
	assert.Equal(t, byte(2), msg[133])
	assert.Equal(t, []byte{2, 0, 1}, msg[134:137])
	assert.Equal(t, byte(12), msg[137])
	assert.Equal(t, []byte{2, 0, 0, 0, 42, 0, 0, 0, 0, 0, 0, 0}, msg[138:150])
}
