package rpc

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"vsachain/core"
	"vsachain/crypto"
)

// SignedParams is the envelope carried as the single parameter of every
// mutating auction method.
type SignedParams struct {
	Payload   json.RawMessage `json:"payload"`
	Caller    string          `json:"caller"`
	Nonce     uint64          `json:"nonce"`
	Signature string          `json:"signature"`
}

// SigningDigest returns keccak256(method || 0x00 || uint64be(nonce) || payload).
func SigningDigest(method string, nonce uint64, payload []byte) []byte {
	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], nonce)
	return ethcrypto.Keccak256([]byte(method), []byte{0}, nonceBytes[:], payload)
}

// SignParams encodes payload and signs it for method with key.
func SignParams(key *crypto.PrivateKey, method string, nonce uint64, payload interface{}) (*SignedParams, error) {
	if key == nil {
		return nil, errors.New("rpc: signing key required")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	sig, err := key.Sign(SigningDigest(method, nonce, raw))
	if err != nil {
		return nil, err
	}
	return &SignedParams{
		Payload:   raw,
		Caller:    key.PubKey().Address().String(),
		Nonce:     nonce,
		Signature: hexutil.Encode(sig),
	}, nil
}

// verifySigned authenticates the envelope of req and decodes its payload into
// out. The nonce itself is checked by the node under its write lock.
func verifySigned(req *RPCRequest, out interface{}) (core.Caller, *RPCError) {
	var caller core.Caller
	if len(req.Params) != 1 {
		return caller, &RPCError{Code: codeInvalidParams, Message: "expected a single signed parameter object"}
	}
	var envelope SignedParams
	if err := json.Unmarshal(req.Params[0], &envelope); err != nil {
		return caller, &RPCError{Code: codeInvalidParams, Message: "invalid signed envelope", Data: err.Error()}
	}
	if len(bytes.TrimSpace(envelope.Payload)) == 0 {
		return caller, &RPCError{Code: codeInvalidParams, Message: "payload required"}
	}
	claimed, err := crypto.ParseAddress(envelope.Caller)
	if err != nil {
		return caller, &RPCError{Code: codeInvalidParams, Message: "invalid caller", Data: err.Error()}
	}
	sig, err := hexutil.Decode(envelope.Signature)
	if err != nil {
		return caller, &RPCError{Code: codeUnauthorized, Message: "invalid signature encoding", Data: err.Error()}
	}
	recovered, err := crypto.RecoverAddress(SigningDigest(req.Method, envelope.Nonce, envelope.Payload), sig)
	if err != nil {
		return caller, &RPCError{Code: codeUnauthorized, Message: "invalid signature", Data: err.Error()}
	}
	if recovered != claimed {
		return caller, &RPCError{Code: codeUnauthorized, Message: "signature does not match caller"}
	}
	decoder := json.NewDecoder(bytes.NewReader(envelope.Payload))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return caller, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid %s payload", req.Method), Data: err.Error()}
	}
	return core.Caller{Address: claimed, Nonce: envelope.Nonce}, nil
}
