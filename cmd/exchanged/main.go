// Command exchanged wires and runs one spot-market exchange core: the
// matching engine, the settlement and admin services, the market data
// feed, and the REST/WS gateway, all sharing one event bus and one
// persistence backend.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/altxchange/spotcore/pkg/account"
	"github.com/altxchange/spotcore/pkg/admin"
	"github.com/altxchange/spotcore/pkg/config"
	"github.com/altxchange/spotcore/pkg/eventbus"
	"github.com/altxchange/spotcore/pkg/exch"
	"github.com/altxchange/spotcore/pkg/gateway"
	"github.com/altxchange/spotcore/pkg/logging"
	"github.com/altxchange/spotcore/pkg/marketdata"
	"github.com/altxchange/spotcore/pkg/matching"
	"github.com/altxchange/spotcore/pkg/store"
	"github.com/altxchange/spotcore/pkg/store/memstore"
	"github.com/altxchange/spotcore/pkg/store/pebblestore"
	"github.com/altxchange/spotcore/pkg/wallet"

	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadFromEnv("")

	zlog, err := buildLogger(cfg.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zlog.Sync()
	sugar := zlog.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.LogFile)

	repo, err := openStore(cfg.Store)
	if err != nil {
		sugar.Fatalw("store_open_failed", "err", err)
	}

	bus := eventbus.New(func(event any, r any) {
		sugar.Errorw("event_handler_panicked", "event", event, "recover", r)
	})

	engine := matching.New(cfg.Market.Symbol, repo, bus, cfg.Market.FeeRate)
	acctSvc := account.New(cfg.Market.Symbol, exch.Asset(cfg.Market.BaseAsset), exch.Asset(cfg.Market.QuoteAsset), cfg.Market.FeeRate, repo, bus, engine)
	chain := wallet.NewSimChain("BSC")
	adminSvc := admin.New(cfg.Admin.MaxID, repo, bus, acctSvc, engine, chain)
	feed := marketdata.NewFeed(bus, engine, marketdata.DefaultCapacity)

	srv := gateway.NewServer(cfg.Market.Symbol, acctSvc, adminSvc, feed)

	eventbus.Subscribe(bus, func(eventbus.TradeExecuted) { srv.BroadcastBookUpdate() })
	eventbus.Subscribe(bus, func(eventbus.OrderStatusChanged) { srv.BroadcastBookUpdate() })

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		sugar.Infow("gateway_starting", "addr", cfg.Gateway.Addr, "market", cfg.Market.Symbol)
		if err := srv.Start(cfg.Gateway.Addr); err != nil {
			sugar.Fatalw("gateway_failed", "err", err)
		}
	}()

	sugar.Infow("exchanged_started",
		"market", cfg.Market.Symbol,
		"store_backend", cfg.Store.Backend,
		"admin_max_id", cfg.Admin.MaxID)

	<-ctx.Done()
	sugar.Info("exchanged_shutting_down")
}

func openStore(cfg config.Store) (store.Repository, error) {
	switch cfg.Backend {
	case "pebble":
		return pebblestore.Open(cfg.Path)
	default:
		return memstore.New(), nil
	}
}

func buildLogger(logFile string) (*zap.Logger, error) {
	if logFile == "" {
		return logging.New()
	}
	return logging.NewWithFile(logFile)
}
