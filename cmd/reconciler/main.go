package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"goldmarket/internal/chain"
	"goldmarket/internal/config"
	"goldmarket/internal/db"
	"goldmarket/internal/seaport"
	"goldmarket/internal/store"
	"goldmarket/internal/worker"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

func main() {
	log := logrus.WithField("service", "reconciler")

	cfg, err := config.Load("")
	if err != nil {
		log.WithError(err).Fatal("config load failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		log.WithError(err).Fatal("db connect failed")
	}
	defer pool.Close()

	rpc, err := chain.Dial(cfg.Chain.RPCEndpoints, cfg.Chain.RPCFailoverThreshold, cfg.RequestTimeout())
	if err != nil {
		log.WithError(err).Fatal("rpc dial failed")
	}
	defer rpc.Close()

	settlementAddr := common.HexToAddress(cfg.Chain.SettlementContract)
	settlement, err := seaport.NewContract(settlementAddr, rpc, nil)
	if err != nil {
		log.WithError(err).Fatal("settlement contract binding failed")
	}

	r := &worker.Reconciler{
		Store:      store.New(pool),
		Settlement: settlement,
		Contract:   settlementAddr,
		Interval:   cfg.ReconcileInterval(),
		WSEndpoint: cfg.Chain.WSEndpoint,
		Log:        log,
	}

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		cancel()
	}()

	log.WithField("interval", cfg.ReconcileInterval()).Info("reconciler started")
	r.Run(ctx)
}
