package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/vecton/pkg/catalog"
	"github.com/cuemby/vecton/pkg/config"
	"github.com/cuemby/vecton/pkg/consensus"
	"github.com/cuemby/vecton/pkg/log"
	"github.com/cuemby/vecton/pkg/metrics"
	"github.com/cuemby/vecton/pkg/scheduler"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "vecton",
	Short:   "vecton - a replicated vector search node",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("vecton version %s\nCommit: %s\n", Version, Commit))
	rootCmd.AddCommand(nodeCmd)
}

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Run a vecton node",
	RunE:  runNode,
}

func init() {
	nodeCmd.Flags().String("config", "", "path to node config YAML file")
}

func runNode(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	var cfg config.Config
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
	} else {
		cfg = config.Default()
	}

	log.Init(log.Config{Level: cfg.LogLevel(), JSONOutput: cfg.Log.JSON})

	toc := catalog.New(cfg.PeerID)
	toc.SetStorageRoot(filepath.Join(cfg.DataDir, "collections"))
	persist, err := consensus.Load(cfg.DataDir, cfg.PeerID)
	if err != nil {
		return err
	}

	driver, err := consensus.Open(cfg.PeerID, cfg.BindAddr, cfg.DataDir, toc, persist)
	if err != nil {
		return err
	}

	if cfg.Join == nil {
		if err := driver.Bootstrap(); err != nil {
			return err
		}
	}

	rebalancer := scheduler.New(toc, driver)
	rebalancer.Start()

	collector := metrics.NewCollector(toc, driver)
	collector.Start()

	if cfg.Metric.ListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		server := &http.Server{Addr: cfg.Metric.ListenAddr, Handler: mux}
		go func() {
			log.Info("vecton: metrics listening on " + cfg.Metric.ListenAddr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("vecton: metrics server: " + err.Error())
			}
		}()
	}

	log.Info("vecton: node started on " + cfg.BindAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("vecton: shutting down")
	rebalancer.Stop()
	collector.Stop()
	return driver.Shutdown()
}
