package main

import (
	"flag"
	"fmt"
	"os"

	"voucherchain/config"
	"voucherchain/core"
	"voucherchain/observability/logging"
	"voucherchain/rpc"
	"voucherchain/storage"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the TOML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup("voucherd", cfg.Environment)

	mintAuthority, err := cfg.MintAuthorityBytes()
	if err != nil {
		logger.Error("invalid mint authority", "error", err)
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("open database", "error", err, "dir", cfg.DataDir)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("close database", "error", err)
		}
	}()

	node, err := core.NewNode(db,
		core.WithTokenSymbol(cfg.TokenSymbol),
		core.WithMintAuthority(mintAuthority),
		core.WithBatchWorkBudget(cfg.BatchWorkBudget),
	)
	if err != nil {
		logger.Error("initialize node", "error", err)
		os.Exit(1)
	}

	logger.Info("node ready",
		"token", node.TokenSymbol(),
		"engine", fmt.Sprintf("%x", node.EngineAddress()),
		"collection", fmt.Sprintf("%x", node.Collection()),
	)

	server := rpc.NewServer(node, logger)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("rpc server stopped", "error", err)
		os.Exit(1)
	}
}
