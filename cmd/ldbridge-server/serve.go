package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/open-feature/go-sdk/pkg/openfeature"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	ldbridge "github.com/launchdarkly/flutter-client-bridge"
	"github.com/launchdarkly/flutter-client-bridge/channel"
	"github.com/launchdarkly/flutter-client-bridge/fileprovider"
)

type serveConfig struct {
	Addr             string
	Channel          string
	Flags            string
	KnownFlags       []string
	CallTimeout      time.Duration
	StartWaitTimeout time.Duration
}

func loadServeConfig() serveConfig {
	return serveConfig{
		Addr:             settings.GetString("addr"),
		Channel:          settings.GetString("channel"),
		Flags:            settings.GetString("flags"),
		KnownFlags:       settings.GetStringSlice("known-flags"),
		CallTimeout:      settings.GetDuration("call-timeout"),
		StartWaitTimeout: settings.GetDuration("start-wait-timeout"),
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Evaluate the flags of a JSON file and serve them over the method channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadServeConfig()
		if cfg.Flags == "" {
			return errors.New("--flags is required")
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "Address to listen on")
	serveCmd.Flags().String("channel", channel.DefaultChannel, "Name of the method channel")
	serveCmd.Flags().StringP("flags", "f", "", "Path of the JSON flag file")
	serveCmd.Flags().StringSlice("known-flags", nil, "Flag keys reported by allFlags. Defaults to every flag in the file")
	serveCmd.Flags().Duration("call-timeout", channel.DefaultCallTimeout, "How long a method call may take")
	serveCmd.Flags().Duration("start-wait-timeout", time.Second*5, "How long start waits for the flags to load")
	rootCmd.AddCommand(serveCmd)
}

// bridge is the file provider, plugin and channel server of one serve run.
type bridge struct {
	provider *fileprovider.Provider
	server   *channel.Server
	plugin   *ldbridge.Plugin
}

func newBridge(cfg serveConfig, registry *prometheus.Registry) (*bridge, error) {
	provider := fileprovider.NewProvider(cfg.Flags)
	if err := openfeature.SetProvider(provider); err != nil {
		return nil, err
	}

	server := channel.NewServer(channel.ServerOptions{
		Channel:     cfg.Channel,
		CallTimeout: cfg.CallTimeout,
		Metrics:     channel.NewMetrics(registry),
	})
	server.Router().Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	options := ldbridge.OpenFeatureOptions{KnownFlags: cfg.KnownFlags, EventSink: logSink{}, Provider: provider}
	if len(cfg.KnownFlags) == 0 {
		options.FlagKeys = func() []string { return flagKeys(provider) }
	}
	plugin, err := ldbridge.NewPlugin(
		ldbridge.NewOpenFeatureStarter(openfeature.NewClient("ldbridge-server"), options),
		server,
		&ldbridge.Options{StartWaitTimeout: cfg.StartWaitTimeout},
	)
	if err != nil {
		provider.Shutdown()
		server.Close()
		return nil, err
	}
	server.SetHandler(plugin)
	return &bridge{provider: provider, server: server, plugin: plugin}, nil
}

func (b *bridge) Close() {
	if err := b.plugin.Close(); err != nil {
		log.WithError(err).Warn("Closing the client failed")
	}
	// event streams stay open until the channel server is closed
	b.server.Close()
	b.provider.Shutdown()
}

func serve(ctx context.Context, cfg serveConfig) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	b, err := newBridge(cfg, registry)
	if err != nil {
		return err
	}

	httpServer := &http.Server{Addr: cfg.Addr, Handler: b.server, ReadHeaderTimeout: time.Second * 10}
	errc := make(chan error, 1)
	go func() {
		errc <- httpServer.ListenAndServe()
	}()
	log.WithFields(log.Fields{"addr": cfg.Addr, "channel": cfg.Channel, "flags": cfg.Flags}).Info("Serving method channel")

	select {
	case err = <-errc:
		b.Close()
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	b.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func flagKeys(provider *fileprovider.Provider) []string {
	flags := provider.Flags()
	keys := make([]string, 0, len(flags))
	for key := range flags {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
