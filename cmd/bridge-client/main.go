package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/omni/tokenbridge-client/bridge"
	"github.com/omni/tokenbridge-client/config"
	"github.com/omni/tokenbridge-client/ethclient"
	"github.com/omni/tokenbridge-client/logging"
	"github.com/omni/tokenbridge-client/presenter"
	"github.com/omni/tokenbridge-client/proof"
	"github.com/omni/tokenbridge-client/repository"
	"github.com/omni/tokenbridge-client/token"
	"github.com/omni/tokenbridge-client/tracker"
	"github.com/omni/tokenbridge-client/wallet"
	"github.com/omni/tokenbridge-client/watcher"
)

const tokenKindCacheSize = 1024

func main() {
	logger := logging.New()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yml"
	}
	cfg, err := config.ReadConfigFromFile(configPath)
	if err != nil {
		logger.WithError(err).Fatal("can't read config")
	}
	logger.SetLevel(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.MetricsHost != "" {
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			err2 := http.ListenAndServe(cfg.MetricsHost, nil)
			if err2 != nil {
				logger.WithError(err2).Fatal("can't start listener for prometheus metrics")
			}
		}()
	}

	clients := make(ethclient.Clients, len(cfg.Chains))
	for name, chain := range cfg.Chains {
		if chain.Disabled || chain.RPC == nil {
			continue
		}
		client, err2 := ethclient.NewClient(chain.RPC.Host, chain.RPC.Timeout, chain.RPC.RPS, chain.ChainID)
		if err2 != nil {
			logger.WithError(err2).WithField("chain", name).Fatal("can't dial rpc client")
		}
		head, err2 := client.BlockNumber(ctx)
		if err2 != nil {
			logger.WithError(err2).WithField("chain", name).Warn("can't get chain head")
		} else {
			logger.WithFields(logrus.Fields{"chain": name, "chain_id": chain.ChainID, "head": head}).Info("connected to chain")
		}
		clients[chain.ChainID] = client
	}

	repo, err := repository.Open(ctx, cfg)
	if err != nil {
		logger.WithError(err).Fatal("can't open bridge transactions storage")
	}
	defer repo.Close()

	prover := proof.NewService(logger, clients)
	detector, err := token.NewDetector(logger, clients, tokenKindCacheSize)
	if err != nil {
		logger.WithError(err).Fatal("can't create token detector")
	}
	svc := bridge.NewService(logger, cfg, clients, prover, detector)

	txTracker := tracker.NewTracker(logger, cfg, clients, repo.BridgeTransactions)
	txTracker.Start(ctx)
	defer txTracker.Stop()

	var walletSource presenter.WalletSource
	var signer wallet.Wallet
	if cfg.Wallet != nil && cfg.Wallet.RPC != nil {
		w, err2 := wallet.NewRPCWallet(ctx, logger, cfg.Wallet.RPC.Host, cfg.Wallet.RPC.Timeout, cfg.Watcher.PollInterval)
		if err2 != nil {
			logger.WithError(err2).Fatal("can't connect to wallet")
		}
		go w.Run(ctx)
		signer = w

		if err2 = txTracker.Load(ctx, w.Address()); err2 != nil {
			logger.WithError(err2).Error("can't load bridge transactions history")
		}
		wt := watcher.Start(ctx, logger, cfg, clients, w)
		defer wt.Stop()
		walletSource = wt
	}

	if cfg.Presenter != nil {
		pr := presenter.NewPresenter(logger, cfg, clients, txTracker, svc, walletSource, signer)
		go func() {
			err2 := pr.Serve(cfg.Presenter.Host)
			if err2 != nil {
				logger.WithError(err2).Fatal("can't serve presenter")
			}
		}()
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	logger.Warn("caught termination signal, gracefully terminating")
}
