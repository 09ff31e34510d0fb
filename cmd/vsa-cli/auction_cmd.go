package main

import (
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"vsachain/native/auction"
)

// Payload shapes mirror the node's signed auction methods.
type createPayload struct {
	Collection           string `json:"collection"`
	FundsRecipient       string `json:"fundsRecipient"`
	Currency             string `json:"currency,omitempty"`
	MinimumViableRevenue string `json:"minimumViableRevenue"`
	StartTime            int64  `json:"startTime,omitempty"`
	BidDuration          int64  `json:"bidDuration"`
	RevealDuration       int64  `json:"revealDuration"`
	SettleDuration       int64  `json:"settleDuration"`
}

type collectionPayload struct {
	Collection string `json:"collection"`
}

type bidPayload struct {
	Collection string `json:"collection"`
	Commitment string `json:"commitment"`
	Value      string `json:"value"`
}

type revealPayload struct {
	Collection string `json:"collection"`
	Amount     string `json:"amount"`
	Salt       string `json:"salt"`
}

type pricePayload struct {
	Collection string `json:"collection"`
	Price      string `json:"price"`
}

func runCreate(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("create", stderr)
	var (
		keyPath    string
		collection string
		recipient  string
		currency   string
		minimum    string
		start      int64
		bid        int64
		reveal     int64
		settle     int64
	)
	fs.StringVar(&keyPath, "key", "wallet.json", "seller keystore")
	fs.StringVar(&collection, "collection", "", "collection address")
	fs.StringVar(&recipient, "recipient", "", "funds recipient (defaults to the seller)")
	fs.StringVar(&currency, "currency", "", "settlement token (defaults to the native token)")
	fs.StringVar(&minimum, "minimum", "0", "minimum viable revenue")
	fs.Int64Var(&start, "start", 0, "unix start time; 0 starts immediately")
	fs.Int64Var(&bid, "bid", 0, "bid phase length in seconds")
	fs.Int64Var(&reveal, "reveal", 0, "reveal phase length in seconds")
	fs.Int64Var(&settle, "settle", 0, "settle phase length in seconds")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	coll, err := requireAddress("--collection", collection)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	minimumAmount, err := parseAmountFlag("--minimum", minimum)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if bid <= 0 || reveal <= 0 || settle <= 0 {
		fmt.Fprintln(stderr, "Error: --bid, --reveal and --settle must be positive")
		return 1
	}
	key, err := loadKey(keyPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if recipient == "" {
		recipient = key.PubKey().Address().String()
	}
	recipient, err = requireAddress("--recipient", recipient)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return signedCall(key, "auction_create", createPayload{
		Collection:           coll,
		FundsRecipient:       recipient,
		Currency:             currency,
		MinimumViableRevenue: minimumAmount.String(),
		StartTime:            start,
		BidDuration:          bid,
		RevealDuration:       reveal,
		SettleDuration:       settle,
	}, stdout, stderr)
}

// runCollectionSigned handles signed methods whose payload is only the collection.
func runCollectionSigned(name, method string, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet(name, stderr)
	var keyPath, collection string
	fs.StringVar(&keyPath, "key", "wallet.json", "signing keystore")
	fs.StringVar(&collection, "collection", "", "collection address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	coll, err := requireAddress("--collection", collection)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	key, err := loadKey(keyPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return signedCall(key, method, collectionPayload{Collection: coll}, stdout, stderr)
}

func runBid(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("bid", stderr)
	var keyPath, collection, amountStr, valueStr, saltStr string
	fs.StringVar(&keyPath, "key", "wallet.json", "bidder keystore")
	fs.StringVar(&collection, "collection", "", "collection address")
	fs.StringVar(&amountStr, "amount", "", "sealed bid amount")
	fs.StringVar(&valueStr, "value", "", "value escrowed with the bid (defaults to --amount)")
	fs.StringVar(&saltStr, "salt", "", "0x-prefixed 32-byte salt (random when omitted)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	coll, err := requireAddress("--collection", collection)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	amount, err := parseAmountFlag("--amount", amountStr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	value := amount
	if valueStr != "" {
		if value, err = parseAmountFlag("--value", valueStr); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}
	var salt [32]byte
	if saltStr == "" {
		if salt, err = auction.NewSalt(); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	} else if salt, err = parseSalt(saltStr); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	commitment, err := auction.Commit(amount, salt)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	key, err := loadKey(keyPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	// The salt is needed again at reveal time.
	fmt.Fprintf(stderr, "Salt: %s\n", hexutil.Encode(salt[:]))
	return signedCall(key, "auction_placeBid", bidPayload{
		Collection: coll,
		Commitment: hexutil.Encode(commitment[:]),
		Value:      value.String(),
	}, stdout, stderr)
}

func runReveal(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("reveal", stderr)
	var keyPath, collection, amountStr, saltStr string
	fs.StringVar(&keyPath, "key", "wallet.json", "bidder keystore")
	fs.StringVar(&collection, "collection", "", "collection address")
	fs.StringVar(&amountStr, "amount", "", "amount committed at bid time")
	fs.StringVar(&saltStr, "salt", "", "salt used at bid time")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	coll, err := requireAddress("--collection", collection)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
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
	key, err := loadKey(keyPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return signedCall(key, "auction_reveal", revealPayload{
		Collection: coll,
		Amount:     amount.String(),
		Salt:       hexutil.Encode(salt[:]),
	}, stdout, stderr)
}

func runSettle(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("settle", stderr)
	var keyPath, collection, priceStr string
	fs.StringVar(&keyPath, "key", "wallet.json", "seller keystore")
	fs.StringVar(&collection, "collection", "", "collection address")
	fs.StringVar(&priceStr, "price", "", "clearing price")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	coll, err := requireAddress("--collection", collection)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	price, err := parseAmountFlag("--price", priceStr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	key, err := loadKey(keyPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return signedCall(key, "auction_settle", pricePayload{Collection: coll, Price: price.String()}, stdout, stderr)
}

func runCollectionQuery(name, method string, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet(name, stderr)
	var collection string
	fs.StringVar(&collection, "collection", "", "collection address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	coll, err := requireAddress("--collection", collection)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return callAndPrint(method, collectionPayload{Collection: coll}, false, stdout, stderr)
}

func runPreview(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("preview", stderr)
	var collection, priceStr string
	fs.StringVar(&collection, "collection", "", "collection address")
	fs.StringVar(&priceStr, "price", "", "candidate clearing price")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	coll, err := requireAddress("--collection", collection)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	price, err := parseAmountFlag("--price", priceStr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return callAndPrint("auction_previewSettlement", pricePayload{Collection: coll, Price: price.String()}, false, stdout, stderr)
}

func runBalance(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("balance", stderr)
	var address, token string
	fs.StringVar(&address, "address", "", "account address")
	fs.StringVar(&token, "token", "", "token symbol (defaults to the native token)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	addr, err := requireAddress("--address", address)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	params := map[string]string{"address": addr}
	if token != "" {
		params["token"] = token
	}
	return callAndPrint("vsa_getBalance", params, false, stdout, stderr)
}
