package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nftxcards/exchange/params"
	"github.com/nftxcards/exchange/pkg/crypto"
	"github.com/nftxcards/exchange/pkg/exchange"
)

func main() {
	cfg := params.LoadFromEnv("")
	domain := crypto.ExchangeDomain(cfg.Engine.ChainID, cfg.Engine.Contract)

	// Step 1: Generate or load key
	var signer *crypto.Signer
	var err error
	if hexKey := os.Getenv("PRIVATE_KEY"); hexKey != "" {
		signer, err = crypto.FromPrivateKeyHex(hexKey)
	} else {
		fmt.Println("Generating new keypair...")
		signer, err = crypto.GenerateKey()
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Address: %s\n", signer.Address().Hex())
	fmt.Printf("Private Key: %s (KEEP SECRET!)\n\n", signer.PrivateKeyHex())

	// Step 2: Create order — sell item #1 of a collection for 1000 units
	// of a fungible payment token
	order := &exchange.Order{
		Account: signer.Address(),
		Side:    exchange.Sell,
		Commodity: exchange.Asset{
			Kind:   exchange.Unique,
			Token:  common.HexToAddress("0x000000000000000000000000000000000000a91f"),
			ID:     big.NewInt(1),
			Amount: big.NewInt(0),
		},
		Payment: exchange.Asset{
			Kind:   exchange.Fungible,
			Token:  common.HexToAddress("0x00000000000000000000000000000000000fab1e"),
			ID:     big.NewInt(0),
			Amount: big.NewInt(1000),
		},
		Taker:  common.Address{}, // anyone may accept
		Start:  0,
		Expiry: 1<<63 - 1,
		Nonce:  1,
	}

	fmt.Println("Order Details:")
	fmt.Printf("  Side: %s\n", order.Side)
	fmt.Printf("  Commodity: %s #%s @ %s\n", order.Commodity.Kind, order.Commodity.ID, order.Commodity.Token.Hex())
	fmt.Printf("  Payment: %s x%s @ %s\n", order.Payment.Kind, order.Payment.Amount, order.Payment.Token.Hex())
	fmt.Printf("  Account: %s\n\n", order.Account.Hex())

	// Step 3: Hash and sign with EIP-712
	hasher := exchange.NewOrderHasher(domain)
	hash, err := hasher.Hash(order)
	if err != nil {
		fmt.Printf("Error hashing: %v\n", err)
		os.Exit(1)
	}

	order.Signature, err = signer.Sign(hash.Bytes())
	if err != nil {
		fmt.Printf("Error signing: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Order Hash: %s\n", hash.Hex())
	fmt.Printf("Signature: 0x%x\n\n", order.Signature.Bytes())

	// Step 4: Verify signature round-trips
	fmt.Println("Verifying signature...")
	recovered, err := crypto.Recover(hash.Bytes(), order.Signature)
	if err != nil {
		fmt.Printf("Error verifying: %v\n", err)
		os.Exit(1)
	}
	if recovered != order.Account {
		fmt.Println("✗ Signature INVALID")
		os.Exit(1)
	}
	fmt.Println("✓ Signature VALID")
	fmt.Printf("  Signer: %s\n\n", recovered.Hex())

	// Step 5: Serialize the signed order to JSON
	orderJSON, err := json.MarshalIndent(order, "", "  ")
	if err != nil {
		fmt.Printf("Error marshaling JSON: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Signed Order (JSON):")
	fmt.Println(string(orderJSON))
	fmt.Println()

	// Step 6: Show how a taker submits the match
	fmt.Println("To settle this order against the relayer:")
	fmt.Println("  POST http://localhost:8080/api/v1/orders/match")
	fmt.Println("  Content-Type: application/json")
	fmt.Println("  Body:")
	fmt.Println(`  {"caller": "<taker address>", "order": <order above>}`)
}
