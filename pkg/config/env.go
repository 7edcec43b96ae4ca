package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/intentwire/verifier/pkg/logger"
)

const (
	// DefaultPollingInterval defines the default polling interval in seconds
	DefaultPollingInterval = 5

	// DefaultRequestTimeout defines the default chain RPC timeout in seconds
	DefaultRequestTimeout = 15

	// DefaultPort defines the default port for the API and metrics server
	DefaultPort = "8080"

	// DefaultHubChainID defines the default hub chain id
	DefaultHubChainID = 7000

	// DefaultHubName defines the default hub chain log name
	DefaultHubName = "HUB"

	// DefaultSolanaChainID is the internal id used for the Solana connected
	// chain; Solana has no EVM-style chain id so the service assigns one
	DefaultSolanaChainID = 900

	// DefaultSolanaName defines the default Solana chain log name
	DefaultSolanaName = "SOL"

	// DefaultCircuitBreakerEnabled defines whether the circuit breaker is enabled
	DefaultCircuitBreakerEnabled = true

	// DefaultCircuitBreakerThreshold defines the number of failures before the circuit breaker trips
	DefaultCircuitBreakerThreshold = 5

	// DefaultCircuitBreakerWindow defines the time window for the circuit breaker in seconds
	DefaultCircuitBreakerWindow = 30

	// DefaultCircuitBreakerReset defines the reset timeout for the circuit breaker in seconds
	DefaultCircuitBreakerReset = 60
)

// GetEnvPollingInterval returns the polling interval in seconds from environment variables
func GetEnvPollingInterval() (time.Duration, error) {
	pollingInterval := os.Getenv("POLLING_INTERVAL")
	if pollingInterval == "" {
		return time.Duration(DefaultPollingInterval) * time.Second, nil
	}

	interval, err := strconv.Atoi(pollingInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid POLLING_INTERVAL value: %s, must be an integer", pollingInterval)
	}
	if interval <= 0 {
		return 0, fmt.Errorf("POLLING_INTERVAL must be greater than 0")
	}
	return time.Duration(interval) * time.Second, nil
}

// GetEnvRequestTimeout returns the chain RPC timeout in seconds from environment variables
func GetEnvRequestTimeout() (time.Duration, error) {
	requestTimeout := os.Getenv("RPC_TIMEOUT")
	if requestTimeout == "" {
		return time.Duration(DefaultRequestTimeout) * time.Second, nil
	}

	timeout, err := strconv.Atoi(requestTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid RPC_TIMEOUT value: %s, must be an integer", requestTimeout)
	}
	if timeout <= 0 {
		return 0, fmt.Errorf("RPC_TIMEOUT must be greater than 0")
	}
	return time.Duration(timeout) * time.Second, nil
}

// GetEnvPort returns the API server port from environment variables
func GetEnvPort() (string, error) {
	port := os.Getenv("PORT")
	if port == "" {
		return DefaultPort, nil
	}

	// Validate port format
	if _, err := strconv.Atoi(port); err != nil {
		return "", fmt.Errorf("invalid PORT value: %s, must be a valid integer", port)
	}
	return port, nil
}

// GetEnvHubChain returns the hub chain configuration from environment variables
func GetEnvHubChain() (EVMChainConfig, error) {
	chainID := DefaultHubChainID
	if val := os.Getenv("HUB_CHAIN_ID"); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return EVMChainConfig{}, fmt.Errorf("invalid HUB_CHAIN_ID value: %s, must be an integer", val)
		}
		chainID = parsed
	}

	name := os.Getenv("HUB_NAME")
	if name == "" {
		name = DefaultHubName
	}

	intentAddr := os.Getenv("HUB_INTENT_ADDRESS")
	if intentAddr != "" && !common.IsHexAddress(intentAddr) {
		return EVMChainConfig{}, fmt.Errorf("invalid HUB_INTENT_ADDRESS value: %s, must be a valid address", intentAddr)
	}

	startBlock, err := getEnvStartBlock("HUB_START_BLOCK")
	if err != nil {
		return EVMChainConfig{}, err
	}

	return EVMChainConfig{
		ChainID:       chainID,
		Name:          name,
		RPCURL:        os.Getenv("HUB_RPC_URL"),
		IntentAddress: intentAddr,
		StartBlock:    startBlock,
	}, nil
}

// GetEnvConnectedEVMChains returns the connected EVM chain configurations.
// CONNECTED_EVM_CHAINS lists chain ids; each chain is configured through
// CHAIN_<ID>_RPC_URL, CHAIN_<ID>_INTENT_ADDRESS and optionally
// CHAIN_<ID>_NAME and CHAIN_<ID>_START_BLOCK.
func GetEnvConnectedEVMChains() ([]EVMChainConfig, error) {
	list := os.Getenv("CONNECTED_EVM_CHAINS")
	if list == "" {
		return nil, nil
	}

	var chains []EVMChainConfig
	for _, field := range strings.Split(list, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		chainID, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("invalid CONNECTED_EVM_CHAINS entry: %s, must be an integer", field)
		}

		name := os.Getenv(fmt.Sprintf("CHAIN_%d_NAME", chainID))
		if name == "" {
			name = fmt.Sprintf("EVM-%d", chainID)
		}

		intentAddr := os.Getenv(fmt.Sprintf("CHAIN_%d_INTENT_ADDRESS", chainID))
		if intentAddr != "" && !common.IsHexAddress(intentAddr) {
			return nil, fmt.Errorf("invalid CHAIN_%d_INTENT_ADDRESS value: %s, must be a valid address", chainID, intentAddr)
		}

		startBlock, err := getEnvStartBlock(fmt.Sprintf("CHAIN_%d_START_BLOCK", chainID))
		if err != nil {
			return nil, err
		}

		chains = append(chains, EVMChainConfig{
			ChainID:       chainID,
			Name:          name,
			RPCURL:        os.Getenv(fmt.Sprintf("CHAIN_%d_RPC_URL", chainID)),
			IntentAddress: intentAddr,
			StartBlock:    startBlock,
		})
	}
	return chains, nil
}

// GetEnvSolanaChain returns the Solana connected chain configuration, or nil
// when no SOLANA_RPC_URL is set.
func GetEnvSolanaChain() (*SolanaChainConfig, error) {
	rpcURL := os.Getenv("SOLANA_RPC_URL")
	if rpcURL == "" {
		return nil, nil
	}

	chainID := DefaultSolanaChainID
	if val := os.Getenv("SOLANA_CHAIN_ID"); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return nil, fmt.Errorf("invalid SOLANA_CHAIN_ID value: %s, must be an integer", val)
		}
		chainID = parsed
	}

	name := os.Getenv("SOLANA_NAME")
	if name == "" {
		name = DefaultSolanaName
	}

	return &SolanaChainConfig{
		ChainID:        chainID,
		Name:           name,
		RPCURL:         rpcURL,
		EscrowProgram:  os.Getenv("SOLANA_ESCROW_PROGRAM"),
		StartSignature: os.Getenv("SOLANA_START_SIGNATURE"),
	}, nil
}

// GetEnvCircuitBreakerEnabled returns whether the circuit breaker is enabled from environment variables
func GetEnvCircuitBreakerEnabled() (bool, error) {
	enabled := os.Getenv("CIRCUIT_BREAKER_ENABLED")
	if enabled == "" {
		return DefaultCircuitBreakerEnabled, nil
	}

	if enabled == "true" {
		return true, nil
	} else if enabled == "false" {
		return false, nil
	}

	return false, fmt.Errorf("invalid CIRCUIT_BREAKER_ENABLED value: %s, must be 'true' or 'false'", enabled)
}

// GetEnvCircuitBreakerThreshold returns the circuit breaker threshold from environment variables
func GetEnvCircuitBreakerThreshold() (int, error) {
	threshold := os.Getenv("CIRCUIT_BREAKER_THRESHOLD")
	if threshold == "" {
		return DefaultCircuitBreakerThreshold, nil
	}

	thresholdInt, err := strconv.Atoi(threshold)
	if err != nil {
		return 0, fmt.Errorf("invalid CIRCUIT_BREAKER_THRESHOLD value: %s, must be an integer", threshold)
	}
	if thresholdInt <= 0 {
		return 0, fmt.Errorf("CIRCUIT_BREAKER_THRESHOLD must be greater than 0")
	}
	return thresholdInt, nil
}

// GetEnvCircuitBreakerWindow returns the circuit breaker window duration from environment variables
func GetEnvCircuitBreakerWindow() (time.Duration, error) {
	window := os.Getenv("CIRCUIT_BREAKER_WINDOW")
	if window == "" {
		return DefaultCircuitBreakerWindow * time.Second, nil
	}

	parsed, err := time.ParseDuration(window)
	if err != nil {
		return 0, fmt.Errorf("invalid CIRCUIT_BREAKER_WINDOW value: %s, must be a valid duration string", window)
	}
	return parsed, nil
}

// GetEnvCircuitBreakerReset returns the circuit breaker reset timeout from environment variables
func GetEnvCircuitBreakerReset() (time.Duration, error) {
	reset := os.Getenv("CIRCUIT_BREAKER_RESET")
	if reset == "" {
		return DefaultCircuitBreakerReset * time.Second, nil
	}

	parsed, err := time.ParseDuration(reset)
	if err != nil {
		return 0, fmt.Errorf("invalid CIRCUIT_BREAKER_RESET value: %s, must be a valid duration string", reset)
	}
	return parsed, nil
}

// GetEnvLogLevel returns the log level from environment variables
func GetEnvLogLevel() (logger.Level, error) {
	level := os.Getenv("LOG_LEVEL")
	switch strings.ToLower(level) {
	case "":
		return logger.InfoLevel, nil
	case "debug":
		return logger.DebugLevel, nil
	case "info":
		return logger.InfoLevel, nil
	case "notice":
		return logger.NoticeLevel, nil
	case "error":
		return logger.ErrorLevel, nil
	}
	return 0, fmt.Errorf("invalid LOG_LEVEL value: %s, must be debug, info, notice or error", level)
}

// GetEnvLogColoring returns whether log coloring is enabled from environment variables
func GetEnvLogColoring() (bool, error) {
	coloring := os.Getenv("LOG_COLORING")
	if coloring == "" {
		return true, nil
	}

	if coloring == "true" {
		return true, nil
	} else if coloring == "false" {
		return false, nil
	}

	return false, fmt.Errorf("invalid LOG_COLORING value: %s, must be 'true' or 'false'", coloring)
}

func getEnvStartBlock(key string) (uint64, error) {
	val := os.Getenv(key)
	if val == "" {
		return 0, nil
	}
	block, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be a block number", key, val)
	}
	return block, nil
}
