// ocpp-simulator — boots a fleet of simulated OCPP charge points against a
// CSMS and exposes a control-plane endpoint for starting/stopping stations
// and transactions remotely. See pkg/server for the composition root.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ocppsim/simulator/internal/config"
	"github.com/ocppsim/simulator/pkg/server"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	templatePath := flag.String("template", "", "path to a station Template JSON file (required)")
	count := flag.Int("count", 1, "number of stations to launch from the template")
	supervisionURL := flag.String("csms-url", "", "supervision URL, overrides the template's supervisionURLs")
	idTagPool := flag.String("idtag-pool", "", "path to a JSON id-tag list feeding the load generator")
	localList := flag.String("local-list", "", "path to a JSON id-tag list seeding the LocalList strategy")
	strict := flag.Bool("strict", false, "enable strict OCPP compliance mode")
	autoStart := flag.Bool("autostart", true, "connect and boot every launched station immediately")
	flag.Parse()

	if *templatePath == "" {
		fmt.Fprintln(os.Stderr, "missing required -template flag")
		flag.Usage()
		os.Exit(2)
	}

	log.Info().Msg("🔌 OCPP simulator starting...")

	cfg := config.Load()
	cfg.Session.OCPPStrictCompliance = cfg.Session.OCPPStrictCompliance || *strict

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize simulator")
	}

	for i := 0; i < *count; i++ {
		entry, err := srv.LaunchStation(ctx, server.LaunchOptions{
			TemplatePath:     *templatePath,
			Index:            i,
			SupervisionURL:   *supervisionURL,
			IDTagPoolPath:    *idTagPool,
			LocalListPath:    *localList,
			StrictCompliance: *strict,
		})
		if err != nil {
			log.Fatal().Err(err).Int("index", i).Msg("failed to launch station")
		}
		if *autoStart {
			entry.Station.Start(ctx)
		}
		log.Info().Str("hashId", entry.Station.HashID()).Msg("station launched")
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      srv.ControlPlane.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info().Msg("🛑 shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("error during simulator shutdown")
		}
	}()

	log.Info().
		Int("port", cfg.Port).
		Int("stations", *count).
		Str("template", lastPathSegment(*templatePath)).
		Msg("⚡ simulator ready")

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("control-plane server failed")
	}
}

func lastPathSegment(p string) string {
	parts := strings.Split(strings.ReplaceAll(p, "\\", "/"), "/")
	return parts[len(parts)-1]
}
