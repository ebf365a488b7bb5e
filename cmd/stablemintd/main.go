package main

import (
	"context"
	"crypto/sha256"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stablemint/config"
	"stablemint/crypto"
	"stablemint/native/collateral"
	nativecommon "stablemint/native/common"
	"stablemint/native/token"
	"stablemint/observability/logging"
	"stablemint/server"
)

const debtSymbol = "USDM"

func main() {
	configPath := flag.String("config", "stablemintd.toml", "path to the TOML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stablemintd: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Service.Name, cfg.Service.Environment)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	moduleAddr, err := moduleAddress(cfg.Engine.ModuleAddress)
	if err != nil {
		return err
	}

	oracle, err := buildOracle(cfg.Oracle)
	if err != nil {
		return err
	}

	assets := make([]collateral.Asset, 0, len(cfg.Assets))
	collateralTokens := make(map[string]collateral.CollateralToken, len(cfg.Assets))
	ledgers := make(map[string]*token.Ledger, len(cfg.Assets))
	for _, asset := range cfg.Assets {
		assets = append(assets, collateral.Asset{Symbol: asset.Symbol, Decimals: asset.Decimals})
		ledger := token.NewAsset(asset.Symbol)
		ledgers[asset.Symbol] = ledger
		collateralTokens[asset.Symbol] = ledger
	}
	if err := seedBalances(cfg.Balances, ledgers); err != nil {
		return err
	}

	debtToken := token.NewMintable(debtSymbol, moduleAddr)

	params := collateral.RiskParameters{
		LiquidationThresholdBps: cfg.Engine.LiquidationThresholdBps,
		LiquidationBonusBps:     cfg.Engine.LiquidationBonusBps,
		MaxPriceAge:             cfg.Engine.MaxPriceAge(),
	}
	engine, err := collateral.NewEngine(moduleAddr, params, assets, oracle, debtToken, collateralTokens)
	if err != nil {
		return err
	}

	pauses := nativecommon.NewSwitch()
	if cfg.Engine.Paused {
		pauses.Pause("collateral")
	}
	engine.SetPauses(pauses)

	srv := server.New(engine, logger, pauses)
	httpServer := &http.Server{
		Addr:              cfg.Service.ListenAddress,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", cfg.Service.ListenAddress))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}

// moduleAddress parses the configured escrow address or derives a stable
// default from the module name.
func moduleAddress(configured string) (crypto.Address, error) {
	if configured != "" {
		addr, err := crypto.DecodeAddress(configured)
		if err != nil {
			return crypto.Address{}, fmt.Errorf("stablemintd: module address: %w", err)
		}
		return addr, nil
	}
	digest := sha256.Sum256([]byte("stablemint/collateral/module"))
	return crypto.NewAddress(digest[:20])
}

func buildOracle(cfg config.OracleConfig) (collateral.PriceOracle, error) {
	switch cfg.Mode {
	case "manual":
		oracle := collateral.NewManualOracle()
		now := time.Now()
		for _, seed := range cfg.Prices {
			if err := oracle.SetDecimal(seed.Symbol, seed.Price, cfg.FeedDecimals, now); err != nil {
				return nil, fmt.Errorf("stablemintd: seed price: %w", err)
			}
		}
		return oracle, nil
	case "feed":
		client := &http.Client{Timeout: 10 * time.Second}
		return collateral.NewFeedOracle(client, cfg.Endpoint, cfg.APIKey, cfg.FeedDecimals), nil
	default:
		return nil, fmt.Errorf("stablemintd: unknown oracle mode %q", cfg.Mode)
	}
}

func seedBalances(balances []config.BalanceConfig, ledgers map[string]*token.Ledger) error {
	for _, seed := range balances {
		ledger, ok := ledgers[seed.Asset]
		if !ok {
			return fmt.Errorf("stablemintd: balance seed for unknown asset %s", seed.Asset)
		}
		addr, err := crypto.DecodeAddress(seed.Address)
		if err != nil {
			return fmt.Errorf("stablemintd: balance seed address: %w", err)
		}
		amount, ok := new(big.Int).SetString(seed.Amount, 10)
		if !ok || amount.Sign() <= 0 {
			return fmt.Errorf("stablemintd: invalid balance seed amount %q", seed.Amount)
		}
		if err := ledger.Credit(addr, amount); err != nil {
			return fmt.Errorf("stablemintd: seed balance: %w", err)
		}
	}
	return nil
}
