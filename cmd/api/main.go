package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"goldmarket/internal/chain"
	"goldmarket/internal/config"
	"goldmarket/internal/db"
	internalhttp "goldmarket/internal/http"
	"goldmarket/internal/seaport"
	"goldmarket/internal/store"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

func main() {
	log := logrus.WithField("service", "api")

	cfg, err := config.Load("")
	if err != nil {
		log.WithError(err).Fatal("config load failed")
	}

	ctx := context.Background()
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

	settlement, err := seaport.NewContract(common.HexToAddress(cfg.Chain.SettlementContract), rpc, nil)
	if err != nil {
		log.WithError(err).Fatal("settlement contract binding failed")
	}

	st := store.New(pool)
	h := internalhttp.NewHandler(st, settlement, log)
	srv := internalhttp.NewServer(h)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Router,
	}

	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("api listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
}
