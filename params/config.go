package params

import (
	"math/big"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

type Engine struct {
	// ChainID and Contract form the EIP-712 domain separator. Orders signed
	// against a different chain or deployment never verify here.
	ChainID  *big.Int
	Contract common.Address

	// Treasury receives the protocol fee cut on every settlement.
	Treasury common.Address
	FeeBps   uint64

	// Admin may change treasury and fee rate at runtime.
	Admin common.Address
}

type Store struct {
	// DBPath is the Pebble directory for the order ledger and
	// settlement archive.
	DBPath string
}

type API struct {
	Addr           string
	AllowedOrigins []string
}

type Config struct {
	Engine Engine
	Store  Store
	API    API
}

func Default() Config {
	return Config{
		Engine: Engine{
			ChainID:  big.NewInt(1337),
			Contract: common.HexToAddress("0x00000000000000000000000000000000e0c0a0de"),
			Treasury: common.Address{},
			FeeBps:   0,
			Admin:    common.Address{},
		},
		Store: Store{
			DBPath: "data/ledger",
		},
		API: API{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	if v := os.Getenv("EXCHANGE_CHAIN_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Engine.ChainID = big.NewInt(id)
		}
	}
	if v := os.Getenv("EXCHANGE_CONTRACT"); v != "" {
		cfg.Engine.Contract = common.HexToAddress(v)
	}
	if v := os.Getenv("EXCHANGE_TREASURY"); v != "" {
		cfg.Engine.Treasury = common.HexToAddress(v)
	}
	if v := os.Getenv("EXCHANGE_FEE_BPS"); v != "" {
		if bps, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Engine.FeeBps = bps
		}
	}
	if v := os.Getenv("EXCHANGE_ADMIN"); v != "" {
		cfg.Engine.Admin = common.HexToAddress(v)
	}
	if v := os.Getenv("LEDGER_DB_PATH"); v != "" {
		cfg.Store.DBPath = v
	}
	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.API.Addr = v
	}

	return cfg
}
