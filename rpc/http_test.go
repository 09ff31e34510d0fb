package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"vsachain/core"
	"vsachain/crypto"
	"vsachain/integrations/archive"
	"vsachain/integrations/exports"
	"vsachain/native/auction"
	"vsachain/storage"
)

const (
	testJWTSecret = "rpc-test-secret"
	phaseWidth    = 100
)

type rpcHarness struct {
	t       *testing.T
	node    *core.Node
	server  *Server
	http    *httptest.Server
	store   *archive.Store
	sink    *archive.Sink
	clock   atomic.Int64
	admin   string
	nonces  map[[20]byte]uint64
	nextID  int
	collect [20]byte
}

func newRPCHarness(t *testing.T, cfg Config) *rpcHarness {
	t.Helper()
	h := &rpcHarness{t: t, nonces: make(map[[20]byte]uint64)}
	h.clock.Store(1_000)
	node, err := core.NewNode(storage.NewMemDB(), core.Options{
		NativeToken: "VSA",
		Faucet:      true,
		Clock:       func() int64 { return h.clock.Load() },
	})
	require.NoError(t, err)
	h.node = node

	store, err := archive.Open(archive.DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	h.store = store
	h.sink = archive.NewSink(store, nil, 64)
	node.AddSink(h.sink)

	exporter, err := exports.NewExporter(t.TempDir())
	require.NoError(t, err)

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = testJWTSecret
	}
	srv, err := NewServer(node, cfg, WithArchive(store), WithExporter(exporter))
	require.NoError(t, err)
	h.server = srv
	h.http = httptest.NewServer(srv.Handler())
	t.Cleanup(h.http.Close)

	token, err := IssueAdminToken(cfg.JWTSecret, cfg.JWTIssuer, "tests", time.Hour)
	require.NoError(t, err)
	h.admin = token
	h.collect[19] = 0xC0
	return h
}

func (h *rpcHarness) post(body []byte, bearer string) (int, RPCResponse) {
	h.t.Helper()
	req, err := http.NewRequest(http.MethodPost, h.http.URL+"/", bytes.NewReader(body))
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := h.http.Client().Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	var out RPCResponse
	require.NoError(h.t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (h *rpcHarness) call(method string, params interface{}, bearer string) RPCResponse {
	h.t.Helper()
	h.nextID++
	req := map[string]interface{}{"jsonrpc": "2.0", "id": h.nextID, "method": method}
	if params != nil {
		req["params"] = []interface{}{params}
	}
	body, err := json.Marshal(req)
	require.NoError(h.t, err)
	_, resp := h.post(body, bearer)
	return resp
}

func (h *rpcHarness) signed(key *crypto.PrivateKey, method string, payload interface{}) RPCResponse {
	h.t.Helper()
	addr := key.PubKey().Address().Raw()
	params, err := SignParams(key, method, h.nonces[addr], payload)
	require.NoError(h.t, err)
	h.nonces[addr]++
	return h.call(method, params, "")
}

func decodeResult(t *testing.T, resp RPCResponse, out interface{}) {
	t.Helper()
	require.Nil(t, resp.Error, "unexpected rpc error: %+v", resp.Error)
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func requireCode(t *testing.T, resp RPCResponse, code int) {
	t.Helper()
	require.NotNil(t, resp.Error, "expected rpc error %d", code)
	require.Equal(t, code, resp.Error.Code, resp.Error.Message)
}

func newKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	return key
}

func bigInt(v int64) *big.Int { return big.NewInt(v) }

func addrOf(key *crypto.PrivateKey) string { return key.PubKey().Address().String() }

func fixedSalt(b byte) [32]byte {
	var salt [32]byte
	for i := range salt {
		salt[i] = b
	}
	return salt
}

func (h *rpcHarness) setup(seller *crypto.PrivateKey, bidders ...*crypto.PrivateKey) {
	h.t.Helper()
	resp := h.call("collection_register", map[string]string{
		"address": crypto.FormatAddress(h.collect),
		"owner":   addrOf(seller),
		"name":    "Drop",
		"symbol":  "drp",
	}, h.admin)
	require.Nil(h.t, resp.Error)
	for _, bidder := range bidders {
		resp := h.call("vsa_credit", map[string]string{"address": addrOf(bidder), "amount": "100"}, h.admin)
		require.Nil(h.t, resp.Error)
	}
}

func (h *rpcHarness) createAuction(seller *crypto.PrivateKey, minimum string) RPCResponse {
	return h.signed(seller, "auction_create", createAuctionPayload{
		Collection:           crypto.FormatAddress(h.collect),
		FundsRecipient:       addrOf(seller),
		MinimumViableRevenue: minimum,
		BidDuration:          phaseWidth,
		RevealDuration:       phaseWidth,
		SettleDuration:       phaseWidth,
	})
}

func (h *rpcHarness) placeBid(key *crypto.PrivateKey, amount, sent int64, salt [32]byte) RPCResponse {
	commitment, err := auction.Commit(bigInt(amount), salt)
	require.NoError(h.t, err)
	return h.signed(key, "auction_placeBid", placeBidPayload{
		Collection: crypto.FormatAddress(h.collect),
		Commitment: hexutil.Encode(commitment[:]),
		Value:      fmt.Sprint(sent),
	})
}

func (h *rpcHarness) reveal(key *crypto.PrivateKey, amount int64, salt [32]byte) RPCResponse {
	return h.signed(key, "auction_reveal", revealPayload{
		Collection: crypto.FormatAddress(h.collect),
		Amount:     fmt.Sprint(amount),
		Salt:       hexutil.Encode(salt[:]),
	})
}

func (h *rpcHarness) balance(key *crypto.PrivateKey) string {
	h.t.Helper()
	var out BalanceResult
	decodeResult(h.t, h.call("vsa_getBalance", map[string]string{"address": addrOf(key)}, ""), &out)
	return out.Balance
}

func TestAuctionLifecycleOverRPC(t *testing.T) {
	h := newRPCHarness(t, Config{})
	seller, alice, bob := newKey(t), newKey(t), newKey(t)
	h.setup(seller, alice, bob)

	var created AuctionResult
	decodeResult(t, h.createAuction(seller, "10"), &created)
	require.Equal(t, "bid", created.Phase)
	require.Equal(t, "VSA", created.Currency)

	require.Nil(t, h.placeBid(alice, 10, 12, fixedSalt(1)).Error)
	require.Nil(t, h.placeBid(bob, 6, 6, fixedSalt(2)).Error)
	require.Equal(t, "88", h.balance(alice))

	h.clock.Add(phaseWidth)
	var revealed BidResult
	decodeResult(t, h.reveal(alice, 10, fixedSalt(1)), &revealed)
	require.Equal(t, "2", revealed.AvailableRefund)
	require.Nil(t, h.reveal(bob, 6, fixedSalt(2)).Error)

	h.clock.Add(phaseWidth)
	var preview SettlementResult
	decodeResult(t, h.call("auction_previewSettlement", priceQuery{Collection: crypto.FormatAddress(h.collect), Price: "6"}, ""), &preview)
	require.EqualValues(t, 2, preview.EditionSize)
	require.True(t, preview.MeetsMinimum)

	var points []PricePointResult
	decodeResult(t, h.call("auction_pricePoints", collectionPayload{Collection: crypto.FormatAddress(h.collect)}, ""), &points)
	require.Len(t, points, 2)

	var settled SettlementResult
	decodeResult(t, h.signed(seller, "auction_settle", settlePayload{Collection: crypto.FormatAddress(h.collect), Price: "6"}), &settled)
	require.Equal(t, "12", settled.Revenue)
	require.Len(t, settled.Winners, 2)
	require.Equal(t, "12", h.balance(seller))

	var owner map[string]interface{}
	decodeResult(t, h.call("collection_unitOwner", unitOwnerParams{Collection: crypto.FormatAddress(h.collect), UnitID: 1}, ""), &owner)
	require.NotEmpty(t, owner["owner"])

	var exported exports.Report
	decodeResult(t, h.call("auction_export", exportQuery{Collection: crypto.FormatAddress(h.collect), Format: "csv"}, h.admin), &exported)
	require.Equal(t, 2, exported.Rows)

	var claimed map[string]string
	decodeResult(t, h.signed(alice, "auction_claimRefund", collectionPayload{Collection: crypto.FormatAddress(h.collect)}), &claimed)
	require.Equal(t, "6", claimed["amount"])
	require.Equal(t, "94", h.balance(alice))

	requireCode(t, h.call("auction_get", collectionPayload{Collection: crypto.FormatAddress(h.collect)}, ""), codeNotFound)

	h.sink.Close()
	var history []ArchivedEvent
	decodeResult(t, h.call("auction_listEvents", listEventsQuery{Collection: crypto.FormatAddress(h.collect)}, ""), &history)
	types := make([]string, 0, len(history))
	for _, evt := range history {
		types = append(types, evt.Type)
	}
	require.Contains(t, types, auction.EventTypeAuctionCreated)
	require.Contains(t, types, auction.EventTypeAuctionSettled)
	require.Equal(t, auction.EventTypeAuctionCleared, types[len(types)-1])
}

func TestSignedEnvelopeRejections(t *testing.T) {
	h := newRPCHarness(t, Config{})
	seller, mallory := newKey(t), newKey(t)
	h.setup(seller)

	payload := createAuctionPayload{
		Collection:           crypto.FormatAddress(h.collect),
		FundsRecipient:       addrOf(seller),
		MinimumViableRevenue: "1",
		BidDuration:          phaseWidth,
		RevealDuration:       phaseWidth,
		SettleDuration:       phaseWidth,
	}

	// Signed by mallory but claiming to be the seller.
	forged, err := SignParams(mallory, "auction_create", 0, payload)
	require.NoError(t, err)
	forged.Caller = addrOf(seller)
	requireCode(t, h.call("auction_create", forged, ""), codeUnauthorized)

	// Signature over a different method does not verify for this one.
	wrongMethod, err := SignParams(seller, "auction_cancel", 0, payload)
	require.NoError(t, err)
	requireCode(t, h.call("auction_create", wrongMethod, ""), codeUnauthorized)

	good, err := SignParams(seller, "auction_create", 0, payload)
	require.NoError(t, err)
	require.Nil(t, h.call("auction_create", good, "").Error)
	// Replaying the same envelope fails on the nonce.
	requireCode(t, h.call("auction_create", good, ""), codeUnauthorized)

	var nonce map[string]uint64
	decodeResult(t, h.call("vsa_getNonce", addressParams{Address: addrOf(seller)}, ""), &nonce)
	require.EqualValues(t, 1, nonce["nonce"])

	// Unknown payload fields are rejected before reaching the node.
	bad, err := SignParams(seller, "auction_cancel", 1, map[string]string{"collection": crypto.FormatAddress(h.collect), "extra": "x"})
	require.NoError(t, err)
	requireCode(t, h.call("auction_cancel", bad, ""), codeInvalidParams)

	requireCode(t, h.call("auction_cancel", map[string]string{"payload": "{}"}, ""), codeInvalidParams)
}

func TestDomainErrorCodes(t *testing.T) {
	h := newRPCHarness(t, Config{})
	seller, alice, stranger := newKey(t), newKey(t), newKey(t)
	h.setup(seller, alice)

	requireCode(t, h.call("auction_get", collectionPayload{Collection: crypto.FormatAddress(h.collect)}, ""), codeNotFound)
	requireCode(t, h.createAuction(stranger, "1"), codeForbidden)
	require.Nil(t, h.createAuction(seller, "100").Error)

	requireCode(t, h.placeBid(alice, 5, 0, fixedSalt(1)), codeCommitmentFailure)
	requireCode(t, h.placeBid(alice, 500, 500, fixedSalt(1)), codeEconomicThreshold)
	require.Nil(t, h.placeBid(alice, 5, 5, fixedSalt(1)).Error)
	requireCode(t, h.placeBid(alice, 5, 5, fixedSalt(1)), codeConflict)
	// Once bids exist the auction can no longer be replaced.
	requireCode(t, h.createAuction(seller, "100"), codeConflict)
	requireCode(t, h.reveal(alice, 5, fixedSalt(1)), codePhaseViolation)

	h.clock.Add(phaseWidth)
	requireCode(t, h.reveal(alice, 6, fixedSalt(1)), codeCommitmentFailure)
	require.Nil(t, h.reveal(alice, 5, fixedSalt(1)).Error)

	h.clock.Add(phaseWidth)
	requireCode(t, h.signed(seller, "auction_settle", settlePayload{Collection: crypto.FormatAddress(h.collect), Price: "5"}), codeEconomicThreshold)
	requireCode(t, h.signed(seller, "auction_settle", settlePayload{Collection: crypto.FormatAddress(h.collect), Price: "0"}), codeEconomicThreshold)
}

func TestAdminMethodsRequireScopedToken(t *testing.T) {
	h := newRPCHarness(t, Config{JWTIssuer: "vsad"})
	params := map[string]string{"address": addrOf(newKey(t)), "amount": "5"}

	requireCode(t, h.call("vsa_credit", params, ""), codeUnauthorized)
	requireCode(t, h.call("vsa_credit", params, "not-a-jwt"), codeUnauthorized)

	otherIssuer, err := IssueAdminToken(testJWTSecret, "elsewhere", "tests", time.Hour)
	require.NoError(t, err)
	requireCode(t, h.call("vsa_credit", params, otherIssuer), codeUnauthorized)

	wrongSecret, err := IssueAdminToken("another-secret", "vsad", "tests", time.Hour)
	require.NoError(t, err)
	requireCode(t, h.call("vsa_credit", params, wrongSecret), codeUnauthorized)

	var out BalanceResult
	decodeResult(t, h.call("vsa_credit", params, h.admin), &out)
	require.Equal(t, "5", out.Balance)
	require.Equal(t, "VSA", out.Token)
}

func TestProtocolErrors(t *testing.T) {
	h := newRPCHarness(t, Config{})

	status, resp := h.post([]byte("{not json"), "")
	require.Equal(t, http.StatusBadRequest, status)
	requireCode(t, resp, codeParseError)

	status, resp = h.post([]byte("   "), "")
	require.Equal(t, http.StatusBadRequest, status)
	requireCode(t, resp, codeInvalidRequest)

	_, resp = h.post([]byte(`{"jsonrpc":"1.0","id":1,"method":"auction_get"}`), "")
	requireCode(t, resp, codeInvalidRequest)

	status, resp = h.post([]byte(`{"jsonrpc":"2.0","id":1,"method":"auction_nope"}`), "")
	require.Equal(t, http.StatusNotFound, status)
	requireCode(t, resp, codeMethodNotFound)

	requireCode(t, h.call("auction_get", map[string]string{"collection": "garbage"}, ""), codeInvalidParams)
	requireCode(t, h.call("auction_get", nil, ""), codeInvalidParams)

	oversized := `{"jsonrpc":"2.0","id":1,"method":"auction_get","params":["` + strings.Repeat("a", maxRequestBytes) + `"]}`
	status, resp = h.post([]byte(oversized), "")
	require.Equal(t, http.StatusRequestEntityTooLarge, status)
	requireCode(t, resp, codeInvalidRequest)
}

func TestRateLimitPerClient(t *testing.T) {
	h := newRPCHarness(t, Config{RateLimitPerSecond: 0.001, RateLimitBurst: 2})
	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"auction_list"}`)

	status, _ := h.post(body, "")
	require.Equal(t, http.StatusOK, status)
	status, _ = h.post(body, "")
	require.Equal(t, http.StatusOK, status)
	status, resp := h.post(body, "")
	require.Equal(t, http.StatusTooManyRequests, status)
	requireCode(t, resp, codeRateLimited)

	health, err := h.http.Client().Get(h.http.URL + "/healthz")
	require.NoError(t, err)
	health.Body.Close()
	require.Equal(t, http.StatusOK, health.StatusCode)
}

func TestClientSourceHonoursTrustedProxies(t *testing.T) {
	node, err := core.NewNode(storage.NewMemDB(), core.Options{NativeToken: "VSA"})
	require.NoError(t, err)
	srv, err := NewServer(node, Config{TrustedProxies: []string{"10.0.0.0/8", "192.168.1.7"}})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.1.2.3")
	require.Equal(t, "203.0.113.9", srv.clientSource(req))

	req.RemoteAddr = "198.51.100.1:5555"
	require.Equal(t, "198.51.100.1", srv.clientSource(req))

	req.RemoteAddr = "192.168.1.7:80"
	require.Equal(t, "203.0.113.9", srv.clientSource(req))

	_, err = NewServer(node, Config{TrustedProxies: []string{"not-an-ip"}})
	require.Error(t, err)
}

func TestClassifyWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("settle: %w", auction.ErrDoesNotMeetMinimumRevenue)
	status, code := classify(wrapped)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeEconomicThreshold, code)

	_, code = classify(fmt.Errorf("%w: payout: boom", auction.ErrCollaboratorFailure))
	require.Equal(t, codeInternal, code)

	_, code = classify(context.Canceled)
	require.Equal(t, codeInternal, code)
}

func TestParseAmountIsDecimalOrHex(t *testing.T) {
	cases := map[string]int64{"10": 10, "010": 10, " 0042 ": 42, "0x10": 16, "0": 0}
	for in, want := range cases {
		got, err := parseAmount("value", in)
		require.NoError(t, err, in)
		require.Equal(t, want, got.Int64(), in)
	}
	for _, in := range []string{"", "-1", "0b11", "0o17", "1e3", "0x"} {
		_, err := parseAmount("value", in)
		require.Error(t, err, in)
	}
}

func TestLeadingZeroValueEscrowsDecimalAmount(t *testing.T) {
	h := newRPCHarness(t, Config{})
	seller, alice := newKey(t), newKey(t)
	h.setup(seller, alice)
	require.Nil(t, h.createAuction(seller, "0").Error)

	commitment, err := auction.Commit(bigInt(10), fixedSalt(3))
	require.NoError(t, err)
	require.Nil(t, h.signed(alice, "auction_placeBid", placeBidPayload{
		Collection: crypto.FormatAddress(h.collect),
		Commitment: hexutil.Encode(commitment[:]),
		Value:      "010",
	}).Error)
	require.Equal(t, "90", h.balance(alice))

	h.clock.Add(phaseWidth)
	var revealed BidResult
	decodeResult(t, h.reveal(alice, 10, fixedSalt(3)), &revealed)
	require.Equal(t, "0", revealed.AvailableRefund)
}
