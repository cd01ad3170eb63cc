package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/vitwit/storefront"
	"github.com/vitwit/storefront/clients"
	"github.com/vitwit/storefront/config"
	"github.com/vitwit/storefront/logger"
	"github.com/vitwit/storefront/metrics"
	"github.com/vitwit/storefront/types"
)

var (
	configPath  string
	metricsAddr string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "storefront",
		Short:        "Buy catalog items with Solana Pay",
		Version:      storefront.Version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(balanceCmd())
	rootCmd.AddCommand(buyCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app bundles what every command needs.
type app struct {
	cfg   *types.Config
	log   logger.Logger
	shop  *storefront.Storefront
	flush func()
}

func setup() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	var log logger.Logger
	if cfg.LogFile != "" {
		log = logger.NewZapFileLogger(cfg.LogLevel, cfg.LogFile)
	} else {
		log = logger.NewZapLogger(cfg.LogLevel)
	}

	opts := []storefront.Option{storefront.WithLogger(log)}
	if cfg.EnableMetrics || metricsAddr != "" {
		opts = append(opts, storefront.WithMetrics(metrics.NewPrometheusRecorder()))
	}
	if metricsAddr != "" {
		go serveMetrics(metricsAddr, log)
	}

	shop, err := storefront.New(cfg, opts...)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:  cfg,
		log:  log,
		shop: shop,
		flush: func() {
			shop.Close()
			if z, ok := log.(*logger.ZapLogger); ok {
				_ = z.Sync()
			}
		},
	}, nil
}

func (a *app) wallet() (*clients.KeypairWallet, error) {
	if a.cfg.KeypairPath == "" {
		return nil, errors.New("keypair_path is not configured")
	}

	rpcURL := a.cfg.RPCUrl
	if rpcURL == "" {
		u, err := a.cfg.Network.DefaultRPCUrl()
		if err != nil {
			return nil, err
		}
		rpcURL = u
	}
	return clients.LoadKeypairWallet(a.cfg.KeypairPath, rpcURL)
}

func serveMetrics(addr string, log logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	log.Info("Serving metrics", map[string]any{"addr": addr})
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("Metrics server stopped", map[string]any{"error": err})
	}
}

func catalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List the products for sale",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.flush()

			for _, item := range a.shop.Catalog() {
				fmt.Printf("%-16s %-32s $%s\n", item.ID, item.Name, item.PriceUSD.StringFixed(2))
			}
			return nil
		},
	}
}

func balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the loyalty point balance of the configured wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.flush()

			w, err := a.wallet()
			if err != nil {
				return err
			}

			a.shop.ConnectWallet(cmd.Context(), w)
			b := a.shop.State().Balance
			fmt.Printf("%s %s\n", b.Amount.String(), b.TokenName)
			return nil
		},
	}
}
