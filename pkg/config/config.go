package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/intentwire/verifier/pkg/logger"
)

// Config holds the configuration for the verification service
type Config struct {
	PollingInterval time.Duration
	RequestTimeout  time.Duration
	Port            string
	EcdsaPrivateKey string
	Ed25519Seed     string
	Hub             EVMChainConfig
	EVMChains       []EVMChainConfig
	Solana          *SolanaChainConfig
	CircuitBreaker  CircuitBreakerConfig
	LoggerConfig    LoggerConfig
}

// EVMChainConfig holds the configuration for one EVM chain (the hub or a
// connected chain).
type EVMChainConfig struct {
	ChainID       int
	Name          string
	RPCURL        string
	IntentAddress string
	StartBlock    uint64
}

// SolanaChainConfig holds the configuration for the Solana connected chain.
// StartSignature plays the role of an EVM start block: a restarted process
// replays history from it instead of starting at the chain tip.
type SolanaChainConfig struct {
	ChainID        int
	Name           string
	RPCURL         string
	EscrowProgram  string
	StartSignature string
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled        bool
	Threshold      int
	WindowDuration time.Duration
	ResetTimeout   time.Duration
}

// LoggerConfig holds the configuration for logging
type LoggerConfig struct {
	Level    logger.Level
	Coloring bool
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	pollingInterval, err := GetEnvPollingInterval()
	if err != nil {
		return nil, err
	}

	requestTimeout, err := GetEnvRequestTimeout()
	if err != nil {
		return nil, err
	}

	port, err := GetEnvPort()
	if err != nil {
		return nil, err
	}

	hub, err := GetEnvHubChain()
	if err != nil {
		return nil, err
	}

	evmChains, err := GetEnvConnectedEVMChains()
	if err != nil {
		return nil, err
	}

	solana, err := GetEnvSolanaChain()
	if err != nil {
		return nil, err
	}

	cbEnabled, err := GetEnvCircuitBreakerEnabled()
	if err != nil {
		return nil, err
	}

	cbThreshold, err := GetEnvCircuitBreakerThreshold()
	if err != nil {
		return nil, err
	}

	cbWindow, err := GetEnvCircuitBreakerWindow()
	if err != nil {
		return nil, err
	}

	cbReset, err := GetEnvCircuitBreakerReset()
	if err != nil {
		return nil, err
	}

	logLevel, err := GetEnvLogLevel()
	if err != nil {
		return nil, err
	}

	logColoring, err := GetEnvLogColoring()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		PollingInterval: pollingInterval,
		RequestTimeout:  requestTimeout,
		Port:            port,
		EcdsaPrivateKey: os.Getenv("ECDSA_PRIVATE_KEY"),
		Ed25519Seed:     os.Getenv("ED25519_SEED"),
		Hub:             hub,
		EVMChains:       evmChains,
		Solana:          solana,
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:        cbEnabled,
			Threshold:      cbThreshold,
			WindowDuration: cbWindow,
			ResetTimeout:   cbReset,
		},
		LoggerConfig: LoggerConfig{
			Level:    logLevel,
			Coloring: logColoring,
		},
	}

	// Validate required environment variables
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.EcdsaPrivateKey == "" {
		return fmt.Errorf("ECDSA_PRIVATE_KEY environment variable is required")
	}
	if cfg.Hub.RPCURL == "" {
		return fmt.Errorf("HUB_RPC_URL environment variable is required")
	}
	if cfg.Hub.IntentAddress == "" {
		return fmt.Errorf("HUB_INTENT_ADDRESS environment variable is required")
	}
	for _, chain := range cfg.EVMChains {
		if chain.RPCURL == "" || chain.IntentAddress == "" {
			return fmt.Errorf("CHAIN_%d_RPC_URL and CHAIN_%d_INTENT_ADDRESS are required", chain.ChainID, chain.ChainID)
		}
		if chain.ChainID == cfg.Hub.ChainID {
			return fmt.Errorf("chain %d is configured both as hub and connected chain", chain.ChainID)
		}
	}
	if cfg.Solana != nil {
		if cfg.Solana.EscrowProgram == "" {
			return fmt.Errorf("SOLANA_ESCROW_PROGRAM is required when SOLANA_RPC_URL is set")
		}
		if cfg.Ed25519Seed == "" {
			return fmt.Errorf("ED25519_SEED is required when a Solana chain is configured")
		}
	}
	return nil
}
