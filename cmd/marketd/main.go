package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"nftmarket/config"
	"nftmarket/core/state"
	"nftmarket/native/market"
	"nftmarket/observability/logging"
	"nftmarket/rpc"
	"nftmarket/storage"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.ServiceName, cfg.Environment)

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "market"))
	if err != nil {
		logger.Error("failed to open database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	manager := state.NewManager(db)
	ledger := state.NewLedger(manager)

	engine := market.NewEngine()
	engine.SetState(manager)
	engine.SetAssets(ledger)
	engine.SetFunds(ledger.Funds())

	marketAddr, err := config.ParseAddress(cfg.Market.MarketAddress)
	if err != nil {
		logger.Error("invalid market address", "err", err)
		os.Exit(1)
	}
	engine.SetMarketAccount(marketAddr)

	if err := seedGenesis(manager, cfg, logger); err != nil {
		logger.Error("failed to seed genesis state", "err", err)
		os.Exit(1)
	}

	server := rpc.NewServer(engine, manager, logger)
	logger.Info("marketd ready", "rpc", cfg.RPCAddress, "data", cfg.DataDir)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("rpc server stopped", "err", err)
		os.Exit(1)
	}
}

// seedGenesis writes the configured marketplace parameters and admin set the
// first time the daemon starts against an empty store.
func seedGenesis(manager *state.Manager, cfg *config.Config, logger *slog.Logger) error {
	if _, ok, err := manager.ParamsGet(); err != nil {
		return err
	} else if ok {
		manager.Discard()
		return nil
	}

	feeRecipient, err := config.ParseAddress(cfg.Market.FeeRecipient)
	if err != nil {
		return err
	}
	defaultAsset, err := config.ParseAddress(cfg.Market.DefaultPaymentAsset)
	if err != nil {
		return err
	}
	floor, err := config.ParseAmount(cfg.Market.MinPriceFloor)
	if err != nil {
		return err
	}

	params := &market.Params{
		FeeBps:              cfg.Market.FeeBps,
		FeeWithOverrideBps:  cfg.Market.FeeWithOverrideBps,
		FeeRecipient:        feeRecipient,
		MinPriceFloor:       floor,
		DefaultPaymentAsset: defaultAsset,
		BiddingActive:       cfg.Market.BiddingActive,
	}
	if err := manager.ParamsPut(params); err != nil {
		return err
	}
	for _, admin := range cfg.Market.Admins {
		addr, err := config.ParseAddress(admin)
		if err != nil {
			return err
		}
		if err := manager.GrantRole(market.RoleMarketAdmin, addr); err != nil {
			return err
		}
	}
	if err := manager.Commit(); err != nil {
		return err
	}
	logger.Info("seeded marketplace genesis", "admins", len(cfg.Market.Admins), "feeBps", cfg.Market.FeeBps)
	return nil
}
