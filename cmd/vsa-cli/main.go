package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"vsachain/cmd/internal/passphrase"
	"vsachain/crypto"
	"vsachain/rpc"
)

var rpcEndpoint = defaultRPCEndpoint() // overridden via VSA_RPC_URL or --rpc
var rpcAuthToken = os.Getenv("VSA_RPC_TOKEN")

var (
	rpcCall       = callRPC
	passphraseFor = func() *passphrase.Source { return passphrase.NewSource(passphrase.EnvKeystorePass) }
)

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("error from node (%d): %s", e.Code, e.Message)
}

func main() {
	args, err := applyGlobalFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(run(args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	rest := args[1:]
	switch args[0] {
	case "keygen":
		return runKeygen(rest, stdout, stderr)
	case "address":
		return runAddress(rest, stdout, stderr)
	case "salt":
		return runSalt(stdout, stderr)
	case "commit":
		return runCommit(rest, stdout, stderr)
	case "create":
		return runCreate(rest, stdout, stderr)
	case "cancel":
		return runCollectionSigned("cancel", "auction_cancel", rest, stdout, stderr)
	case "bid":
		return runBid(rest, stdout, stderr)
	case "reveal":
		return runReveal(rest, stdout, stderr)
	case "settle":
		return runSettle(rest, stdout, stderr)
	case "claim":
		return runCollectionSigned("claim", "auction_claimRefund", rest, stdout, stderr)
	case "auction":
		return runCollectionQuery("auction", "auction_get", rest, stdout, stderr)
	case "bids":
		return runCollectionQuery("bids", "auction_listBids", rest, stdout, stderr)
	case "pricepoints":
		return runCollectionQuery("pricepoints", "auction_pricePoints", rest, stdout, stderr)
	case "preview":
		return runPreview(rest, stdout, stderr)
	case "balance":
		return runBalance(rest, stdout, stderr)
	case "admin-token":
		return runAdminToken(rest, stdout, stderr)
	case "register-collection":
		return runRegisterCollection(rest, stdout, stderr)
	case "credit":
		return runCredit(rest, stdout, stderr)
	case "export":
		return runExport(rest, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("VSA_RPC_URL")); v != "" {
		return v
	}
	return "http://127.0.0.1:8545"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--rpc" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --rpc")
			}
			rpcEndpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--rpc=") {
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func doRPCRequest(payload []byte, requireAuth bool) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if requireAuth {
		if strings.TrimSpace(rpcAuthToken) == "" {
			return nil, fmt.Errorf("admin RPC call requires VSA_RPC_TOKEN to be set")
		}
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(rpcAuthToken))
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", rpcEndpoint, err)
	}
	return resp, nil
}

func callRPC(method string, params interface{}, requireAuth bool) (json.RawMessage, *rpcError, error) {
	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		payload["params"] = []interface{}{params}
	} else {
		payload["params"] = []interface{}{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	resp, err := doRPCRequest(body, requireAuth)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, nil, fmt.Errorf("failed to decode RPC response: %w", err)
	}
	return rpcResp.Result, rpcResp.Error, nil
}

// callAndPrint performs method and writes the indented result to stdout.
func callAndPrint(method string, params interface{}, requireAuth bool, stdout, stderr io.Writer) int {
	result, rpcErr, err := rpcCall(method, params, requireAuth)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if rpcErr != nil {
		fmt.Fprintln(stderr, rpcErr.Error())
		return 1
	}
	printJSONResult(stdout, result)
	return 0
}

func printJSONResult(stdout io.Writer, result json.RawMessage) {
	if len(result) == 0 {
		fmt.Fprintln(stdout, "No result.")
		return
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, result, "", "  "); err != nil {
		fmt.Fprintln(stdout, string(result))
		return
	}
	fmt.Fprintln(stdout, buf.String())
}

func loadKey(path string) (*crypto.PrivateKey, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("--key is required")
	}
	if !crypto.KeystoreExists(path) {
		return nil, fmt.Errorf("keystore %s not found. run vsa-cli keygen first", path)
	}
	pass, err := passphraseFor().Get()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		return nil, fmt.Errorf("failed to unlock %s: %w", path, err)
	}
	return key, nil
}

// signedCall fetches the caller's next nonce and submits payload in a signed
// envelope.
func signedCall(key *crypto.PrivateKey, method string, payload interface{}, stdout, stderr io.Writer) int {
	address := key.PubKey().Address().String()
	result, rpcErr, err := rpcCall("vsa_getNonce", map[string]string{"address": address}, false)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if rpcErr != nil {
		fmt.Fprintln(stderr, rpcErr.Error())
		return 1
	}
	var nonce struct {
		Nonce uint64 `json:"nonce"`
	}
	if err := json.Unmarshal(result, &nonce); err != nil {
		fmt.Fprintf(stderr, "Error: failed to decode nonce: %v\n", err)
		return 1
	}
	params, err := rpc.SignParams(key, method, nonce.Nonce, payload)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to sign request: %v\n", err)
		return 1
	}
	return callAndPrint(method, params, false, stdout, stderr)
}

func usage() string {
	return strings.TrimSpace(`
Usage: vsa-cli [--rpc URL] <command> [flags]

Keys:
  keygen --out FILE                 create a new encrypted keystore
  address --key FILE                print the address of a keystore
  salt                              print a random 32-byte salt
  commit --amount N --salt HEX      compute a sealed-bid commitment

Auctions (signed with --key):
  create --collection ADDR --minimum N --bid SECS --reveal SECS --settle SECS
  cancel --collection ADDR
  bid --collection ADDR --amount N --value N [--salt HEX]
  reveal --collection ADDR --amount N --salt HEX
  settle --collection ADDR --price N
  claim --collection ADDR

Queries:
  auction --collection ADDR
  bids --collection ADDR
  pricepoints --collection ADDR
  preview --collection ADDR --price N
  balance --address ADDR [--token SYMBOL]

Admin (requires VSA_RPC_TOKEN):
  admin-token --secret S [--issuer I] [--ttl 1h]
  register-collection --address ADDR --owner ADDR --name NAME --symbol SYM
  credit --address ADDR --amount N [--token SYMBOL]
  export --collection ADDR [--format csv|parquet]`)
}
