package main

import (
	"context"
	"log"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/nftxcards/exchange/params"
	"github.com/nftxcards/exchange/pkg/api"
	"github.com/nftxcards/exchange/pkg/exchange"
	"github.com/nftxcards/exchange/pkg/registry"
	"github.com/nftxcards/exchange/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	// Setup logging (write to both console and file)
	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		logFile = "data/relayer.log"
	}

	logger, err := util.NewLoggerWithFile(logFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", logFile)

	// ---- Order ledger (Pebble) ----
	ledger, err := exchange.OpenOrderLedger(cfg.Store.DBPath)
	if err != nil {
		sugar.Fatalw("ledger_open_failed", "path", cfg.Store.DBPath, "err", err)
	}
	defer ledger.Close()

	// ---- Asset registries ----
	clock := util.RealClock{}
	native := registry.NewNativeCurrency()
	registries := registry.NewSet(native)

	// Optional dev assets: one registry of each kind with funded accounts,
	// for local frontend development against a fresh ledger.
	if os.Getenv("EXCHANGE_DEV_ASSETS") == "true" {
		setupDevAssets(registries, native, cfg.Engine, clock, sugar)
	}

	// ---- Settlement engine ----
	engine := exchange.NewEngine(exchange.EngineConfig{
		ChainID:  cfg.Engine.ChainID,
		Contract: cfg.Engine.Contract,
		Admin:    cfg.Engine.Admin,
		Treasury: cfg.Engine.Treasury,
		FeeBps:   cfg.Engine.FeeBps,
	}, ledger, registries, clock, sugar)

	sugar.Infow("relayer_starting",
		"chain_id", cfg.Engine.ChainID.String(),
		"contract", cfg.Engine.Contract.Hex(),
		"treasury", cfg.Engine.Treasury.Hex(),
		"fee_bps", cfg.Engine.FeeBps,
		"db_path", cfg.Store.DBPath)

	// ---- API Server ----
	apiServer := api.NewServer(engine, cfg.API.AllowedOrigins)
	go func() {
		sugar.Infow("api_server_starting", "addr", cfg.API.Addr)
		if err := apiServer.Start(cfg.API.Addr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	sugar.Info("relayer_shutting_down")
}

// setupDevAssets registers a fungible payment token, a unique collection and
// a semi-fungible collection under fixed addresses, and funds a pair of dev
// accounts. Never enable against a ledger with real history.
func setupDevAssets(registries *registry.Set, native *registry.NativeCurrency, eng params.Engine, clock util.Clock, sugar *zap.SugaredLogger) {
	var (
		payToken   = common.HexToAddress("0x00000000000000000000000000000000000fab1e")
		collection = common.HexToAddress("0x000000000000000000000000000000000000a91f")
		edition    = common.HexToAddress("0x00000000000000000000000000000000000ed171")
		artist     = common.HexToAddress("0x0000000000000000000000000000000000a97157")
		alice      = common.HexToAddress("0x000000000000000000000000000000000000a11c")
		bob        = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	)

	pay := registry.NewFungible(payToken, eng.ChainID, eng.Contract, clock)
	pay.Mint(alice, big.NewInt(1_000_000))
	pay.Mint(bob, big.NewInt(1_000_000))
	registries.RegisterFungible(payToken, pay)

	nft := registry.NewUnique(collection, eng.ChainID, eng.Contract, clock, artist, big.NewInt(500))
	for id := int64(1); id <= 10; id++ {
		nft.Mint(alice, big.NewInt(id))
	}
	registries.RegisterUnique(collection, nft)

	multi := registry.NewSemiFungible(edition, eng.ChainID, eng.Contract, clock, artist, big.NewInt(250))
	multi.Mint(alice, big.NewInt(1), big.NewInt(100))
	registries.RegisterSemiFungible(edition, multi)

	native.Mint(alice, big.NewInt(10_000_000))
	native.Mint(bob, big.NewInt(10_000_000))

	sugar.Infow("dev_assets_ready",
		"payment_token", payToken.Hex(),
		"collection", collection.Hex(),
		"edition", edition.Hex(),
		"accounts", []string{alice.Hex(), bob.Hex()})
}
