package main

import (
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"vsachain/crypto"
	"vsachain/native/auction"
)

func runKeygen(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("keygen", stderr)
	var out string
	var force bool
	fs.StringVar(&out, "out", "wallet.json", "path of the keystore file to write")
	fs.BoolVar(&force, "force", false, "overwrite an existing keystore")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if crypto.KeystoreExists(out) && !force {
		fmt.Fprintf(stderr, "Error: %s already exists; pass --force to overwrite\n", out)
		return 1
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to generate key: %v\n", err)
		return 1
	}
	pass, err := passphraseFor().GetNew()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := crypto.SaveToKeystore(out, key, pass); err != nil {
		fmt.Fprintf(stderr, "Error: failed to write keystore: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Keystore written to %s\n", out)
	fmt.Fprintf(stdout, "Address: %s\n", key.PubKey().Address().String())
	return 0
}

func runAddress(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("address", stderr)
	var keyPath string
	fs.StringVar(&keyPath, "key", "wallet.json", "keystore file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	// The v3 format stores the address in clear; no passphrase needed.
	addr, err := crypto.KeystoreAddress(keyPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, crypto.FormatAddress(addr))
	return 0
}

func runSalt(stdout, stderr io.Writer) int {
	salt, err := auction.NewSalt()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, hexutil.Encode(salt[:]))
	return 0
}

func runCommit(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("commit", stderr)
	var amountStr, saltStr string
	fs.StringVar(&amountStr, "amount", "", "bid amount in base units")
	fs.StringVar(&saltStr, "salt", "", "0x-prefixed 32-byte salt")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	amount, err := parseAmountFlag("--amount", amountStr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	salt, err := parseSalt(saltStr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	commitment, err := auction.Commit(amount, salt)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, hexutil.Encode(commitment[:]))
	return 0
}

func parseAmountFlag(name, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("%s is required", name)
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return amount, nil
}

func parseSalt(value string) ([32]byte, error) {
	var salt [32]byte
	raw, err := hexutil.Decode(strings.TrimSpace(value))
	if err != nil {
		return salt, fmt.Errorf("--salt: %w", err)
	}
	if len(raw) != len(salt) {
		return salt, fmt.Errorf("--salt must be 32 bytes")
	}
	copy(salt[:], raw)
	return salt, nil
}

func requireAddress(name, value string) (string, error) {
	raw, err := crypto.ParseAddress(value)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return crypto.FormatAddress(raw), nil
}
