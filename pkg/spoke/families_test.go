package spoke_test

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hub-settle/pkg/hub"
	"hub-settle/pkg/registry"
	"hub-settle/pkg/rpcclient"
	"hub-settle/pkg/spoke"
	"hub-settle/pkg/testutil"
	"hub-settle/pkg/types"
)

type fakeSuiSigner struct{}

func (fakeSuiSigner) Address() string {
	return "0x" + strings.Repeat("ab", 32)
}

func (fakeSuiSigner) SignTransaction(ctx context.Context, txBytes []byte) (string, error) {
	return "c2lnbmF0dXJl", nil
}

type fakeIconSigner struct{}

func (fakeIconSigner) Address() string { return "hx" + strings.Repeat("1", 40) }

func (fakeIconSigner) Sign(ctx context.Context, tx map[string]interface{}) (string, error) {
	return "c2ln", nil
}

type fakeStellarSigner struct{}

func (fakeStellarSigner) Address() string { return "GSOURCE" }

func (fakeStellarSigner) BuildInvocation(ctx context.Context, inv spoke.StellarInvocation) (string, error) {
	return "envelope:" + inv.Function, nil
}

func (fakeStellarSigner) Sign(ctx context.Context, envelopeXDR string, simulation json.RawMessage) (string, error) {
	return "signed:" + envelopeXDR, nil
}

type cosmosExec struct {
	Contract string
	Msg      map[string]map[string]interface{}
	Funds    []spoke.CosmosCoin
}

type fakeCosmosSigner struct {
	executed []cosmosExec
}

func (f *fakeCosmosSigner) Address() string { return cosmosUser }

func (f *fakeCosmosSigner) Execute(ctx context.Context, contract string, msg json.RawMessage, funds []spoke.CosmosCoin) (string, error) {
	exec := cosmosExec{Contract: contract, Funds: funds}
	if err := json.Unmarshal(msg, &exec.Msg); err != nil {
		return "", err
	}
	f.executed = append(f.executed, exec)
	return "C0FFEE", nil
}

func (f *fakeCosmosSigner) Simulate(ctx context.Context, contract string, msg json.RawMessage, funds []spoke.CosmosCoin) (uint64, error) {
	return 150_000, nil
}

const (
	cosmosCW20         = "neutron1qypqxpq9qcrsszg2pvxq6rs0zqg3yyc5z5tpwxqergd3c8g7rusqpsa9eu"
	cosmosUser         = "neutron19q5j52ev95hz7vp3xgengdfkxuurjw3mwdkzhj"
	cosmosAssetManager = "neutron1tfd4ch27tasxzcnrv3jkvemgd94xkmrdl6ewdz"

	bitcoinUser         = "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"
	bitcoinAssetManager = "1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2"
)

func TestSuiDeposit(t *testing.T) {
	node, url := newRPCServer(t)
	chain := registry.ChainConfig{
		ID: "sui", Family: types.FamilySui, RelayChainID: 21, RPCURL: url,
		AssetManager: "0xa1::asset_manager::0xa2",
		Connection:   "0xc1::connection::0xc2",
	}
	adapter := spoke.NewSuiAdapter(chain, fakeSuiSigner{}, nil, testutil.HubRelayID, noRetry)

	node.returns("suix_getCoins", map[string]interface{}{
		"data": []map[string]string{
			{"coinType": spoke.SuiNativeCoin, "coinObjectId": "0xsmall", "balance": "10"},
			{"coinType": spoke.SuiNativeCoin, "coinObjectId": "0xbig", "balance": "5000"},
		},
		"hasNextPage": false,
	})
	node.returns("unsafe_moveCall", map[string]string{"txBytes": base64.StdEncoding.EncodeToString([]byte("tx"))})
	node.returns("sui_executeTransactionBlock", map[string]interface{}{
		"digest":  "DIGEST",
		"effects": map[string]interface{}{"status": map[string]string{"status": "success"}},
	})

	handle, err := adapter.Deposit(context.Background(), spoke.DepositRequest{
		To:     hubWallet,
		Token:  spoke.SuiNativeCoin,
		Amount: big.NewInt(1000),
	})
	require.NoError(t, err)
	assert.Equal(t, "DIGEST", handle.Hash)

	calls := node.called("unsafe_moveCall")
	require.Len(t, calls, 1)
	var params []json.RawMessage
	decodeParams(t, calls[0], &params)
	assert.JSONEq(t, `"0xa1"`, string(params[1]))
	assert.JSONEq(t, `"asset_manager"`, string(params[2]))
	assert.JSONEq(t, `"transfer"`, string(params[3]))
	assert.JSONEq(t, `["0x2::sui::SUI"]`, string(params[4]))

	var args []json.RawMessage
	decodeParams(t, params[5], &args)
	assert.JSONEq(t, `"0xa2"`, string(args[0]))
	assert.JSONEq(t, `"0xbig"`, string(args[2]), "the first coin large enough is used")
	assert.JSONEq(t, `"1000"`, string(args[3]))
}

func TestSuiDeposit_FailedEffects(t *testing.T) {
	node, url := newRPCServer(t)
	chain := registry.ChainConfig{ID: "sui", Family: types.FamilySui, RPCURL: url, AssetManager: "0xa1::am::0xa2", Connection: "0xc1::c::0xc2"}
	adapter := spoke.NewSuiAdapter(chain, fakeSuiSigner{}, nil, testutil.HubRelayID, noRetry)

	node.returns("suix_getCoins", map[string]interface{}{"data": []map[string]string{{"coinObjectId": "0x1", "balance": "5"}}})
	node.returns("unsafe_moveCall", map[string]string{"txBytes": base64.StdEncoding.EncodeToString([]byte("tx"))})
	node.returns("sui_executeTransactionBlock", map[string]interface{}{
		"digest":  "D",
		"effects": map[string]interface{}{"status": map[string]string{"status": "failure", "error": "InsufficientGas"}},
	})

	_, err := adapter.Deposit(context.Background(), spoke.DepositRequest{To: hubWallet, Token: spoke.SuiNativeCoin, Amount: big.NewInt(5)})
	assert.ErrorContains(t, err, "InsufficientGas")
}

func TestSuiEstimateFee(t *testing.T) {
	node, url := newRPCServer(t)
	adapter := spoke.NewSuiAdapter(registry.ChainConfig{ID: "sui", Family: types.FamilySui, RPCURL: url}, fakeSuiSigner{}, nil, testutil.HubRelayID, noRetry)

	node.returns("sui_dryRunTransactionBlock", map[string]interface{}{
		"effects": map[string]interface{}{"gasUsed": map[string]string{
			"computationCost": "1000", "storageCost": "500", "storageRebate": "200",
		}},
	})

	fee, err := adapter.EstimateFee(context.Background(), &types.TxHandle{Raw: "dHg="})
	require.NoError(t, err)
	assert.Equal(t, "MIST", fee.Unit)
	assert.Equal(t, int64(1300), fee.Amount.Int64())
}

func iconChain(url string) registry.ChainConfig {
	return registry.ChainConfig{
		ID: "icon", Family: types.FamilyIcon, RelayChainID: 2, RPCURL: url,
		AssetManager: "cx" + strings.Repeat("a", 40),
		Connection:   "cx" + strings.Repeat("c", 40),
		NativeToken:  "cx0000000000000000000000000000000000000000",
	}
}

func TestIconDeposit_Token(t *testing.T) {
	node, url := newRPCServer(t)
	chain := iconChain(url)
	adapter := spoke.NewIconAdapter(chain, fakeIconSigner{}, nil, testutil.HubRelayID, noRetry)
	token := "cx" + strings.Repeat("b", 40)

	node.returns("debug_estimateStep", "0x186a0")
	node.returns("icx_sendTransaction", "0xhash")

	handle, err := adapter.Deposit(context.Background(), spoke.DepositRequest{
		To:     hubWallet,
		Token:  token,
		Amount: big.NewInt(255),
	})
	require.NoError(t, err)
	assert.Equal(t, "0xhash", handle.Hash)

	sent := node.called("icx_sendTransaction")
	require.Len(t, sent, 1)
	var tx struct {
		To        string `json:"to"`
		StepLimit string `json:"stepLimit"`
		Signature string `json:"signature"`
		NID       string `json:"nid"`
		Data      struct {
			Method string            `json:"method"`
			Params map[string]string `json:"params"`
		} `json:"data"`
	}
	decodeParams(t, sent[0], &tx)
	assert.Equal(t, token, tx.To)
	assert.Equal(t, "0x1d4c0", tx.StepLimit)
	assert.Equal(t, "c2ln", tx.Signature)
	assert.Equal(t, "0x1", tx.NID)
	assert.Equal(t, "transfer", tx.Data.Method)
	assert.Equal(t, chain.AssetManager, tx.Data.Params["_to"])
	assert.Equal(t, "0xff", tx.Data.Params["_value"])
}

func TestIconDeposit_SenderMustBeSigner(t *testing.T) {
	node, url := newRPCServer(t)
	chain := iconChain(url)
	adapter := spoke.NewIconAdapter(chain, fakeIconSigner{}, nil, testutil.HubRelayID, noRetry)

	node.returns("debug_estimateStep", "0x100")
	node.returns("icx_sendTransaction", "0xhash")

	_, err := adapter.Deposit(context.Background(), spoke.DepositRequest{
		From: "hx" + strings.Repeat("2", 40), To: hubWallet, Token: chain.NativeToken, Amount: big.NewInt(1),
	})
	assert.ErrorIs(t, err, types.ErrNoProvider)
	assert.Empty(t, node.called("icx_sendTransaction"))

	_, err = adapter.Deposit(context.Background(), spoke.DepositRequest{
		From: fakeIconSigner{}.Address(), To: hubWallet, Token: chain.NativeToken, Amount: big.NewInt(1),
	})
	require.NoError(t, err)
}

func TestIconDeposit_NativeSendsValue(t *testing.T) {
	node, url := newRPCServer(t)
	chain := iconChain(url)
	adapter := spoke.NewIconAdapter(chain, fakeIconSigner{}, nil, testutil.HubRelayID, noRetry)

	node.returns("debug_estimateStep", "0x100")
	node.returns("icx_sendTransaction", "0xhash")

	_, err := adapter.Deposit(context.Background(), spoke.DepositRequest{To: hubWallet, Token: chain.NativeToken, Amount: big.NewInt(16)})
	require.NoError(t, err)

	var tx struct {
		To    string `json:"to"`
		Value string `json:"value"`
		Data  struct {
			Method string `json:"method"`
		} `json:"data"`
	}
	decodeParams(t, node.called("icx_sendTransaction")[0], &tx)
	assert.Equal(t, chain.AssetManager, tx.To)
	assert.Equal(t, "0x10", tx.Value)
	assert.Equal(t, "transferNativeToken", tx.Data.Method)
}

func TestIconVerifyTx(t *testing.T) {
	node, url := newRPCServer(t)
	adapter := spoke.NewIconAdapter(iconChain(url), fakeIconSigner{}, nil, testutil.HubRelayID, noRetry)
	ctx := context.Background()

	node.on("icx_getTransactionResult", func(json.RawMessage) (interface{}, error) {
		return nil, &rpcclient.Error{Code: -31002, Message: "Pending"}
	})
	ok, err := adapter.VerifyTx(ctx, "0x01")
	require.NoError(t, err)
	assert.False(t, ok)

	node.returns("icx_getTransactionResult", map[string]string{"status": "0x1"})
	ok, err = adapter.VerifyTx(ctx, "0x01")
	require.NoError(t, err)
	assert.True(t, ok)

	node.returns("icx_getTransactionResult", map[string]interface{}{
		"status": "0x0", "failure": map[string]string{"code": "0x7d64", "message": "Reverted(0)"},
	})
	_, err = adapter.VerifyTx(ctx, "0x01")
	assert.ErrorContains(t, err, "Reverted(0)")
}

func TestIconGetDeposit(t *testing.T) {
	node, url := newRPCServer(t)
	chain := iconChain(url)
	adapter := spoke.NewIconAdapter(chain, nil, nil, testutil.HubRelayID, noRetry)

	node.returns("icx_call", "0x64")
	node.returns("icx_getBalance", "0xde0b6b3a7640000")

	balance, err := adapter.GetDeposit(context.Background(), "cx"+strings.Repeat("b", 40))
	require.NoError(t, err)
	assert.Equal(t, "100", balance.String())

	balance, err = adapter.GetDeposit(context.Background(), chain.NativeToken)
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", balance.String())
}

func scVal(kind uint32, hi, lo uint64) string {
	raw := make([]byte, 20)
	binary.BigEndian.PutUint32(raw[:4], kind)
	binary.BigEndian.PutUint64(raw[4:12], hi)
	binary.BigEndian.PutUint64(raw[12:], lo)
	return base64.StdEncoding.EncodeToString(raw)
}

func TestDecodeScValInt(t *testing.T) {
	v, err := spoke.DecodeScValInt(scVal(10, 0, 12345))
	require.NoError(t, err)
	assert.Equal(t, "12345", v.String())

	v, err = spoke.DecodeScValInt(scVal(10, ^uint64(0), ^uint64(0)))
	require.NoError(t, err)
	assert.Equal(t, "-1", v.String())

	v, err = spoke.DecodeScValInt(scVal(9, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, "18446744073709551616", v.String())

	_, err = spoke.DecodeScValInt(scVal(5, 0, 1))
	assert.Error(t, err)
}

func TestStellarGetDeposit(t *testing.T) {
	node, url := newRPCServer(t)
	chain := registry.ChainConfig{ID: "stellar", Family: types.FamilyStellar, RPCURL: url, AssetManager: "CAM"}
	adapter := spoke.NewStellarAdapter(chain, fakeStellarSigner{}, nil, testutil.HubRelayID, noRetry)

	node.returns("simulateTransaction", map[string]interface{}{
		"minResourceFee": "4200",
		"results":        []map[string]string{{"xdr": scVal(10, 0, 77_000_000)}},
	})

	balance, err := adapter.GetDeposit(context.Background(), "CTOKEN")
	require.NoError(t, err)
	assert.Equal(t, "77000000", balance.String())

	var params map[string]string
	decodeParams(t, node.called("simulateTransaction")[0], &params)
	assert.Equal(t, "envelope:balance", params["transaction"])

	fee, err := adapter.EstimateFee(context.Background(), &types.TxHandle{Raw: "envelope:transfer"})
	require.NoError(t, err)
	assert.Equal(t, int64(4300), fee.Amount.Int64())
}

func TestStellarDeposit(t *testing.T) {
	node, url := newRPCServer(t)
	chain := registry.ChainConfig{ID: "stellar", Family: types.FamilyStellar, RPCURL: url, AssetManager: "CAM"}
	adapter := spoke.NewStellarAdapter(chain, fakeStellarSigner{}, nil, testutil.HubRelayID, noRetry)

	node.returns("simulateTransaction", map[string]interface{}{"minResourceFee": "1"})
	node.returns("sendTransaction", map[string]string{"status": "PENDING", "hash": "abc123"})

	handle, err := adapter.Deposit(context.Background(), spoke.DepositRequest{To: hubWallet, Token: "CTOKEN", Amount: big.NewInt(1)})
	require.NoError(t, err)
	assert.Equal(t, "abc123", handle.Hash)

	var params map[string]string
	decodeParams(t, node.called("sendTransaction")[0], &params)
	assert.Equal(t, "signed:envelope:transfer", params["transaction"])

	node.returns("sendTransaction", map[string]string{"status": "ERROR", "errorResultXdr": "AAAA"})
	_, err = adapter.Deposit(context.Background(), spoke.DepositRequest{To: hubWallet, Token: "CTOKEN", Amount: big.NewInt(1)})
	assert.ErrorContains(t, err, "ERROR")
}

func TestStellarTrustline(t *testing.T) {
	horizon := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"balances": []map[string]string{
				{"asset_type": "native", "balance": "50.0000000"},
				{"asset_type": "credit_alphanum4", "asset_code": "USDC", "asset_issuer": "GISSUER", "balance": "999.0000000", "limit": "1000.0000000"},
			},
		})
	}))
	defer horizon.Close()

	chain := registry.ChainConfig{
		ID: "stellar", Family: types.FamilyStellar, AuxURL: horizon.URL, NativeToken: "CNATIVE",
		Assets: []registry.Asset{{Symbol: "USDC", Address: "CUSDC"}},
	}
	adapter := spoke.NewStellarAdapter(chain, fakeStellarSigner{}, nil, testutil.HubRelayID, noRetry)
	ctx := context.Background()

	ok, err := adapter.IsAllowanceValid(ctx, spoke.AllowanceRequest{Owner: "GUSER", Token: "CUSDC", Amount: big.NewInt(10_000_000)})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = adapter.IsAllowanceValid(ctx, spoke.AllowanceRequest{Owner: "GUSER", Token: "CUSDC", Amount: big.NewInt(10_000_001)})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = adapter.IsAllowanceValid(ctx, spoke.AllowanceRequest{Owner: "GUSER", Token: "EURC:GISSUER", Amount: big.NewInt(1)})
	require.NoError(t, err)
	assert.False(t, ok, "no trustline")

	ok, err = adapter.IsAllowanceValid(ctx, spoke.AllowanceRequest{Owner: "GUSER", Token: "CNATIVE", Amount: big.NewInt(1)})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = adapter.Approve(ctx, spoke.AllowanceRequest{})
	assert.ErrorIs(t, err, types.ErrUnsupported)
}

func cosmosChain(lcd string) registry.ChainConfig {
	return registry.ChainConfig{
		ID: "neutron", Family: types.FamilyCosmos, RelayChainID: 19, AuxURL: lcd,
		AssetManager: cosmosAssetManager, Connection: cosmosAssetManager, Bech32Prefix: "neutron",
	}
}

func TestCosmosDeposit(t *testing.T) {
	signer := &fakeCosmosSigner{}
	adapter := spoke.NewCosmosAdapter(cosmosChain(""), signer, nil, testutil.HubRelayID, noRetry)
	ctx := context.Background()

	handle, err := adapter.Deposit(ctx, spoke.DepositRequest{To: hubWallet, Token: "untrn", Amount: big.NewInt(500)})
	require.NoError(t, err)
	assert.Equal(t, "C0FFEE", handle.Hash)

	_, err = adapter.Deposit(ctx, spoke.DepositRequest{To: hubWallet, Token: cosmosCW20, Amount: big.NewInt(700)})
	require.NoError(t, err)

	require.Len(t, signer.executed, 2)
	bank := signer.executed[0]
	assert.Equal(t, cosmosAssetManager, bank.Contract)
	assert.Equal(t, []spoke.CosmosCoin{{Denom: "untrn", Amount: "500"}}, bank.Funds)
	assert.Equal(t, "500", bank.Msg["transfer"]["amount"])
	assert.Equal(t, hubWallet.Hex(), bank.Msg["transfer"]["to"])

	cw20 := signer.executed[1]
	assert.Equal(t, cosmosCW20, cw20.Contract)
	assert.Empty(t, cw20.Funds)
	assert.Equal(t, cosmosAssetManager, cw20.Msg["send"]["contract"])
	assert.Equal(t, "700", cw20.Msg["send"]["amount"])
}

func TestCosmosDryRunAndFee(t *testing.T) {
	signer := &fakeCosmosSigner{}
	adapter := spoke.NewCosmosAdapter(cosmosChain(""), signer, nil, testutil.HubRelayID, noRetry)

	handle, err := adapter.Deposit(context.Background(), spoke.DepositRequest{To: hubWallet, Token: "untrn", Amount: big.NewInt(1), DryRun: true})
	require.NoError(t, err)
	assert.False(t, handle.Sent())
	assert.Empty(t, signer.executed)

	fee, err := adapter.EstimateFee(context.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, "gas", fee.Unit)
	assert.Equal(t, int64(150_000), fee.Amount.Int64())
}

func TestCosmosLCD(t *testing.T) {
	lcd := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/cosmos/bank/v1beta1/balances/"+cosmosAssetManager+"/by_denom"):
			assert.Equal(t, "untrn", r.URL.Query().Get("denom"))
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"balance": map[string]string{"denom": "untrn", "amount": "31337"}})
		case strings.HasPrefix(r.URL.Path, "/cosmwasm/wasm/v1/contract/"+cosmosCW20+"/smart/"):
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]string{"balance": "42"}})
		case r.URL.Path == "/cosmos/tx/v1beta1/txs/OK":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"tx_response": map[string]interface{}{"height": "10", "code": 0}})
		case r.URL.Path == "/cosmos/tx/v1beta1/txs/FAILED":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"tx_response": map[string]interface{}{"height": "10", "code": 5, "raw_log": "insufficient funds"}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer lcd.Close()

	adapter := spoke.NewCosmosAdapter(cosmosChain(lcd.URL), nil, nil, testutil.HubRelayID, noRetry)
	ctx := context.Background()

	balance, err := adapter.GetDeposit(ctx, "untrn")
	require.NoError(t, err)
	assert.Equal(t, "31337", balance.String())

	balance, err = adapter.GetDeposit(ctx, cosmosCW20)
	require.NoError(t, err)
	assert.Equal(t, "42", balance.String())

	ok, err := adapter.VerifyTx(ctx, "OK")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = adapter.VerifyTx(ctx, "PENDING")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = adapter.VerifyTx(ctx, "FAILED")
	assert.ErrorContains(t, err, "insufficient funds")
}

func bitcoinChain(url string) registry.ChainConfig {
	return registry.ChainConfig{
		ID: "bitcoin", Family: types.FamilyBitcoin, RelayChainID: 627463, RPCURL: url,
		AssetManager: bitcoinAssetManager, NativeToken: "BTC",
	}
}

func TestBitcoinDeposit_CommitsToTransferMessage(t *testing.T) {
	node, url := newRPCServer(t)
	adapter := spoke.NewBitcoinAdapter(bitcoinChain(url), nil, testutil.HubRelayID, noRetry)

	node.returns("getaddressinfo", map[string]interface{}{"ismine": true})
	node.returns("createrawtransaction", "raw")
	node.returns("fundrawtransaction", map[string]interface{}{"hex": "funded", "fee": 0.0000141})
	node.returns("signrawtransactionwithwallet", map[string]interface{}{"hex": "signed", "complete": true})
	node.returns("sendrawtransaction", "txid")

	handle, err := adapter.Deposit(context.Background(), spoke.DepositRequest{
		From:   bitcoinUser,
		To:     hubWallet,
		Token:  "BTC",
		Amount: big.NewInt(100_000),
		Data:   []byte{0x01},
	})
	require.NoError(t, err)
	assert.Equal(t, "txid", handle.Hash)
	require.True(t, strings.HasPrefix(handle.RelayData, "0x"))

	message, err := hex.DecodeString(strings.TrimPrefix(handle.RelayData, "0x"))
	require.NoError(t, err)
	decoded, err := hub.DecodeTransfer(message)
	require.NoError(t, err)
	assert.Equal(t, "100000", decoded.Amount.String())
	assert.Equal(t, hubWallet.Bytes(), decoded.To)
	assert.Equal(t, []byte(bitcoinUser), decoded.From)

	var params []json.RawMessage
	decodeParams(t, node.called("createrawtransaction")[0], &params)
	var outputs []map[string]interface{}
	decodeParams(t, params[1], &outputs)
	require.Len(t, outputs, 2)
	assert.Equal(t, 0.001, outputs[0][bitcoinAssetManager])
	assert.Equal(t, hex.EncodeToString(crypto.Keccak256(message)), outputs[1]["data"])

	fee, err := adapter.EstimateFee(context.Background(), &types.TxHandle{Raw: handle.Raw})
	require.NoError(t, err)
	assert.Equal(t, int64(1410), fee.Amount.Int64())
}

func TestBitcoinDeposit_IncompleteSignature(t *testing.T) {
	node, url := newRPCServer(t)
	adapter := spoke.NewBitcoinAdapter(bitcoinChain(url), nil, testutil.HubRelayID, noRetry)

	node.returns("getaddressinfo", map[string]interface{}{"ismine": true})
	node.returns("createrawtransaction", "raw")
	node.returns("fundrawtransaction", map[string]interface{}{"hex": "funded", "fee": 0.0001})
	node.returns("signrawtransactionwithwallet", map[string]interface{}{"hex": "partial", "complete": false})

	_, err := adapter.Deposit(context.Background(), spoke.DepositRequest{From: bitcoinUser, To: hubWallet, Token: "BTC", Amount: big.NewInt(1)})
	assert.ErrorContains(t, err, "could not sign")
	assert.Empty(t, node.called("sendrawtransaction"))
}

func TestBitcoinDeposit_RejectsForeignSender(t *testing.T) {
	node, url := newRPCServer(t)
	adapter := spoke.NewBitcoinAdapter(bitcoinChain(url), nil, testutil.HubRelayID, noRetry)

	node.returns("getaddressinfo", map[string]interface{}{"ismine": false})

	_, err := adapter.Deposit(context.Background(), spoke.DepositRequest{From: bitcoinUser, To: hubWallet, Token: "BTC", Amount: big.NewInt(1)})
	assert.ErrorIs(t, err, types.ErrNoProvider)
	assert.Empty(t, node.called("createrawtransaction"))
}

func TestBitcoinReads(t *testing.T) {
	node, url := newRPCServer(t)
	adapter := spoke.NewBitcoinAdapter(bitcoinChain(url), nil, testutil.HubRelayID, noRetry)
	ctx := context.Background()

	node.returns("scantxoutset", map[string]interface{}{"success": true, "total_amount": 1.5})
	node.returns("getrawtransaction", map[string]interface{}{"confirmations": 0})

	balance, err := adapter.GetDeposit(ctx, "BTC")
	require.NoError(t, err)
	assert.Equal(t, "150000000", balance.String())

	ok, err := adapter.VerifyTx(ctx, "txid")
	require.NoError(t, err)
	assert.False(t, ok)

	node.returns("getrawtransaction", map[string]interface{}{"confirmations": 3})
	ok, err = adapter.VerifyTx(ctx, "txid")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNew_DispatchesOnFamily(t *testing.T) {
	deps := spoke.Deps{HubRelayChainID: testutil.HubRelayID, EVMBackend: testutil.NewFakeBackend()}

	tests := []struct {
		chain registry.ChainConfig
		want  interface{}
	}{
		{chain: chainConfig(t, testutil.BaseChain), want: &spoke.EVMAdapter{}},
		{chain: chainConfig(t, testutil.HubChain), want: &spoke.HubAdapter{}},
		{chain: chainConfig(t, testutil.SolanaChain), want: &spoke.SolanaAdapter{}},
		{chain: registry.ChainConfig{ID: "sui", Family: types.FamilySui}, want: &spoke.SuiAdapter{}},
		{chain: registry.ChainConfig{ID: "stellar", Family: types.FamilyStellar}, want: &spoke.StellarAdapter{}},
		{chain: registry.ChainConfig{ID: "icon", Family: types.FamilyIcon}, want: &spoke.IconAdapter{}},
		{chain: registry.ChainConfig{ID: "neutron", Family: types.FamilyCosmos}, want: &spoke.CosmosAdapter{}},
		{chain: registry.ChainConfig{ID: "bitcoin", Family: types.FamilyBitcoin}, want: &spoke.BitcoinAdapter{}},
	}

	for _, tt := range tests {
		t.Run(string(tt.chain.ID), func(t *testing.T) {
			adapter, err := spoke.New(tt.chain, deps)
			require.NoError(t, err)
			assert.IsType(t, tt.want, adapter)
			assert.Equal(t, tt.chain.ID, adapter.ChainID())
		})
	}

	_, err := spoke.New(registry.ChainConfig{ID: "tron", Family: "tron"}, deps)
	assert.ErrorIs(t, err, types.ErrUnsupportedFamily)
}
