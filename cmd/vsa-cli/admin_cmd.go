package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"vsachain/rpc"
)

func runAdminToken(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("admin-token", stderr)
	var secret, issuer, subject string
	var ttl time.Duration
	fs.StringVar(&secret, "secret", "", "JWT signing secret configured on the node")
	fs.StringVar(&issuer, "issuer", "", "issuer claim, when the node enforces one")
	fs.StringVar(&subject, "subject", "vsa-cli", "subject claim")
	fs.DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(secret) == "" {
		fmt.Fprintln(stderr, "Error: --secret is required")
		return 1
	}
	token, err := rpc.IssueAdminToken(secret, issuer, subject, ttl)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, token)
	return 0
}

func runRegisterCollection(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("register-collection", stderr)
	var address, owner, name, symbol string
	fs.StringVar(&address, "address", "", "collection address")
	fs.StringVar(&owner, "owner", "", "owner address")
	fs.StringVar(&name, "name", "", "collection name")
	fs.StringVar(&symbol, "symbol", "", "collection symbol")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	addr, err := requireAddress("--address", address)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	ownerAddr, err := requireAddress("--owner", owner)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return callAndPrint("collection_register", map[string]string{
		"address": addr,
		"owner":   ownerAddr,
		"name":    name,
		"symbol":  symbol,
	}, true, stdout, stderr)
}

func runCredit(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("credit", stderr)
	var address, token, amountStr string
	fs.StringVar(&address, "address", "", "account to credit")
	fs.StringVar(&token, "token", "", "token symbol (defaults to the native token)")
	fs.StringVar(&amountStr, "amount", "", "amount in base units")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	addr, err := requireAddress("--address", address)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	amount, err := parseAmountFlag("--amount", amountStr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	params := map[string]string{"address": addr, "amount": amount.String()}
	if token != "" {
		params["token"] = token
	}
	return callAndPrint("vsa_credit", params, true, stdout, stderr)
}

func runExport(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("export", stderr)
	var collection, format string
	fs.StringVar(&collection, "collection", "", "collection address")
	fs.StringVar(&format, "format", "csv", "csv or parquet")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	coll, err := requireAddress("--collection", collection)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return callAndPrint("auction_export", map[string]string{"collection": coll, "format": format}, true, stdout, stderr)
}
