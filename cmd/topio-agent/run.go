package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/topio-agent/pkg/config"
	"github.com/cuemby/topio-agent/pkg/events"
	"github.com/cuemby/topio-agent/pkg/frequency"
	"github.com/cuemby/topio-agent/pkg/gateway"
	"github.com/cuemby/topio-agent/pkg/log"
	"github.com/cuemby/topio-agent/pkg/metrics"
	"github.com/cuemby/topio-agent/pkg/release"
	"github.com/cuemby/topio-agent/pkg/reward"
	"github.com/cuemby/topio-agent/pkg/scheduler"
	"github.com/cuemby/topio-agent/pkg/security"
	"github.com/cuemby/topio-agent/pkg/storage"
	"github.com/cuemby/topio-agent/pkg/tenant"
	"github.com/cuemby/topio-agent/pkg/upgrade"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the upgrade and reward loops until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := log.WithComponent("agent")

		cfg, vault, err := loadSealedConfig()
		if err != nil {
			return err
		}
		metrics.UpdateComponent(metrics.ComponentConfig, true, cfg.Path())

		store, err := storage.NewBoltStore(viper.GetString("data-dir"))
		if err != nil {
			return err
		}
		defer store.Close()
		metrics.UpdateComponent(metrics.ComponentStore, true, "")

		broker := events.NewBroker()
		broker.Start()
		defer broker.Stop()
		recorder := events.NewRecorder(broker, store)
		recorder.Start()
		defer recorder.Stop()

		runner := gateway.NewExecRunner()
		picker := tenant.NewPicker(cfg.Tenants, tenant.NewOpener(runner, func(id string) (string, error) {
			return cfg.Password(vault, id)
		}))
		resolver := release.NewGitHubResolver(cfg.Release.API, cfg.Release.AssetSuffix)

		lock := scheduler.NewLock()
		base := cfg.Schedule.FrequencyBase
		loopOpts := []scheduler.Option{
			scheduler.WithJitter(cfg.Schedule.MinJitter, cfg.Schedule.MaxJitter),
			scheduler.WithStateStore(store),
			scheduler.WithPublisher(broker),
		}
		loops := []*scheduler.Loop{
			scheduler.NewLoop("upgrade",
				upgrade.NewUpgrader(picker, resolver,
					upgrade.WithPublisher(broker),
					upgrade.WithTagPrefix(cfg.Release.Prefix())),
				frequency.New(frequency.UpgradeConfig(base)), lock, loopOpts...),
			scheduler.NewLoop("reward",
				reward.NewClaimer(picker, reward.WithPublisher(broker)),
				frequency.New(frequency.RewardConfig(base)), lock, loopOpts...),
		}

		errCh := make(chan error, 1)
		var srv *http.Server
		if addr := viper.GetString("metrics-addr"); addr != "" {
			srv = &http.Server{
				Addr:              addr,
				Handler:           metrics.NewServeMux(),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- fmt.Errorf("metrics server error: %w", err)
				}
			}()
			logger.Info().Str("addr", addr).Msg("Metrics endpoint listening")
		}

		for _, l := range loops {
			l.Start()
		}
		metrics.UpdateComponent(metrics.ComponentScheduler, true, "running")
		logger.Info().
			Strs("tenants", cfg.TenantIDs()).
			Dur("frequency_base", base).
			Msg("Agent running")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		var runErr error
		select {
		case sig := <-sigCh:
			logger.Info().Str("signal", sig.String()).Msg("Shutting down")
		case runErr = <-errCh:
			logger.Error().Err(runErr).Msg("Shutting down")
		}

		metrics.UpdateComponent(metrics.ComponentScheduler, false, "stopping")
		for _, l := range loops {
			l.Stop()
		}
		if srv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}

		logger.Info().Msg("Shutdown complete")
		return runErr
	},
}

// loadSealedConfig loads the configuration and checks every tenant password
// can be decrypted on this host
func loadSealedConfig() (*config.Config, *security.Vault, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.CheckSealed(); err != nil {
		return nil, nil, err
	}
	vault, err := security.NewHostVault(viper.GetString("machine-id-path"))
	if err != nil {
		return nil, nil, err
	}
	for _, id := range cfg.TenantIDs() {
		if _, err := cfg.Password(vault, id); err != nil {
			return nil, nil, err
		}
	}
	return cfg, vault, nil
}

func init() {
	runCmd.Flags().String("metrics-addr", "", "Serve /metrics and health endpoints on this address (disabled when empty)")
	_ = viper.BindPFlag("metrics-addr", runCmd.Flags().Lookup("metrics-addr"))
}
