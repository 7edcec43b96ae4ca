package service

import (
	"context"
	"fmt"
	"time"

	"github.com/intentwire/verifier/pkg/api"
	"github.com/intentwire/verifier/pkg/approval"
	"github.com/intentwire/verifier/pkg/chains"
	"github.com/intentwire/verifier/pkg/chains/evm"
	"github.com/intentwire/verifier/pkg/chains/solana"
	"github.com/intentwire/verifier/pkg/circuitbreaker"
	"github.com/intentwire/verifier/pkg/config"
	"github.com/intentwire/verifier/pkg/logger"
	"github.com/intentwire/verifier/pkg/models"
	"github.com/intentwire/verifier/pkg/monitor"
	"github.com/intentwire/verifier/pkg/router"
	"github.com/intentwire/verifier/pkg/store"
	"github.com/intentwire/verifier/pkg/validator"
)

// Service wires the chain adapters, event monitor, validator, approval
// signer and negotiation router together behind one Start call.
type Service struct {
	config          *config.Config
	store           store.Store
	adapters        map[int]chains.Adapter
	circuitBreakers map[int]*circuitbreaker.CircuitBreaker
	monitor         *monitor.Monitor
	api             *api.Server
	logger          logger.Logger
}

// NewService creates the verification service from configuration
func NewService(ctx context.Context, cfg *config.Config) (*Service, error) {
	stdLogger := logger.NewStdLogger(cfg.LoggerConfig.Coloring, cfg.LoggerConfig.Level)

	// Connect chain adapters. The hub is always an EVM chain.
	adapters := make(map[int]chains.Adapter)

	hubAdapter, err := evm.New(
		ctx,
		cfg.Hub.ChainID,
		cfg.Hub.Name,
		cfg.Hub.RPCURL,
		cfg.Hub.IntentAddress,
		cfg.Hub.StartBlock,
		cfg.RequestTimeout,
		stdLogger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create hub adapter for chain %d: %v", cfg.Hub.ChainID, err)
	}
	adapters[cfg.Hub.ChainID] = hubAdapter
	stdLogger.RegisterChain(cfg.Hub.ChainID, cfg.Hub.Name)

	for _, chainCfg := range cfg.EVMChains {
		adapter, err := evm.New(
			ctx,
			chainCfg.ChainID,
			chainCfg.Name,
			chainCfg.RPCURL,
			chainCfg.IntentAddress,
			chainCfg.StartBlock,
			cfg.RequestTimeout,
			stdLogger,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create adapter for chain %d: %v", chainCfg.ChainID, err)
		}
		adapters[chainCfg.ChainID] = adapter
		stdLogger.RegisterChain(chainCfg.ChainID, chainCfg.Name)
	}

	if cfg.Solana != nil {
		adapter, err := solana.New(
			cfg.Solana.ChainID,
			cfg.Solana.Name,
			cfg.Solana.RPCURL,
			cfg.Solana.EscrowProgram,
			cfg.Solana.StartSignature,
			cfg.RequestTimeout,
			stdLogger,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create solana adapter: %v", err)
		}
		adapters[cfg.Solana.ChainID] = adapter
		stdLogger.RegisterChain(cfg.Solana.ChainID, cfg.Solana.Name)
	}

	// Initialize circuit breakers, one per chain, shared between the
	// monitor's polling loops and on-demand validation lookups.
	circuitBreakers := make(map[int]*circuitbreaker.CircuitBreaker)
	for chainID := range adapters {
		circuitBreakers[chainID] = circuitbreaker.NewCircuitBreaker(
			cfg.CircuitBreaker.Enabled,
			cfg.CircuitBreaker.Threshold,
			cfg.CircuitBreaker.WindowDuration,
			cfg.CircuitBreaker.ResetTimeout,
			stdLogger,
		)
	}

	signers, err := buildSigners(cfg)
	if err != nil {
		return nil, err
	}

	st := store.NewMemory()

	adapterList := make([]chains.Adapter, 0, len(adapters))
	for _, adapter := range adapters {
		adapterList = append(adapterList, adapter)
	}

	v := validator.New(st, adapters, circuitBreakers, stdLogger)

	kindOf := func(chainID int) (models.ChainKind, bool) {
		adapter, ok := adapters[chainID]
		if !ok {
			return "", false
		}
		return adapter.Kind(), true
	}
	approvals := approval.New(st, v, signers, kindOf, stdLogger)

	drafts := router.New(st, stdLogger)

	return &Service{
		config:          cfg,
		store:           st,
		adapters:        adapters,
		circuitBreakers: circuitBreakers,
		monitor:         monitor.New(adapterList, st, circuitBreakers, cfg.PollingInterval, stdLogger),
		api:             api.NewServer(cfg.Port, st, v, approvals, drafts, adapters, circuitBreakers, stdLogger),
		logger:          stdLogger,
	}, nil
}

// buildSigners creates the signing backends. ECDSA is always required; the
// Ed25519 signer is only built when a seed is configured.
func buildSigners(cfg *config.Config) ([]approval.Signer, error) {
	ecdsaSigner, err := approval.NewEcdsaSigner(cfg.EcdsaPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load ECDSA signing key: %v", err)
	}
	signers := []approval.Signer{ecdsaSigner}

	if cfg.Ed25519Seed != "" {
		ed25519Signer, err := approval.NewEd25519Signer(cfg.Ed25519Seed)
		if err != nil {
			return nil, fmt.Errorf("failed to load Ed25519 signing seed: %v", err)
		}
		signers = append(signers, ed25519Signer)
	}
	return signers, nil
}

// Start runs the API server and the polling loops until ctx is cancelled,
// then drains in-flight API requests before returning.
func (s *Service) Start(ctx context.Context) {
	go func() {
		if err := s.api.Start(); err != nil {
			s.logger.Error("API server error: %v", err)
		}
	}()

	// Blocks until ctx is done and every polling loop has exited.
	s.monitor.Start(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.api.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("API server shutdown error: %v", err)
	}
	s.logger.Notice("Verification service stopped")
}
