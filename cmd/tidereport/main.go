package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/seaward/tidereport/internal/cache"
	"github.com/seaward/tidereport/internal/config"
	"github.com/seaward/tidereport/internal/hydrate"
	"github.com/seaward/tidereport/internal/mail"
	"github.com/seaward/tidereport/internal/maps"
	"github.com/seaward/tidereport/internal/report"
	"github.com/seaward/tidereport/internal/station"
	"github.com/seaward/tidereport/internal/store"
	"github.com/seaward/tidereport/internal/tide"
	"github.com/seaward/tidereport/pkg/http/client"
)

type rootFlags struct {
	configFile string
	mapsAPIKey string
	send       bool
	saveHTML   bool
	saveEML    bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "tidereport",
		Short: "Retrieve tide predictions for NOAA stations and email them to recipients",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReport(cmd, flags)
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&flags.configFile, "config", "", "Use a custom configuration file")
	cmd.Flags().StringVar(&flags.mapsAPIKey, "maps-api-key", "", "Google Maps Static API key (overrides configuration file)")
	cmd.Flags().BoolVar(&flags.send, "send", true, "Send the email to recipients")
	cmd.Flags().BoolVar(&flags.saveHTML, "save-html", false, "Save the HTML message body locally")
	cmd.Flags().BoolVar(&flags.saveEML, "save-eml", false, "Save the email message locally")

	cmd.AddCommand(newCacheCommand(flags))

	return cmd
}

func runReport(cmd *cobra.Command, flags *rootFlags) error {
	cfg, err := config.Load(flags.configFile)
	if err != nil {
		return err
	}
	cfg.InitializeLogging()

	if len(cfg.Stations) == 0 {
		return fmt.Errorf("no stations configured")
	}

	apiKey := flags.mapsAPIKey
	if apiKey == "" {
		apiKey = cfg.MapsAPIKey
	}

	st := store.New(cfg.Cache.Dir)
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Closing cache store")
		}
	}()

	predictionCache := cache.NewPredictionCache(st, cfg.PredictionWindow(), cfg.Retention())
	predictionService, err := cache.NewPredictionService(predictionCache, cfg.Cache.LRUSize, cfg.LRUTTL())
	if err != nil {
		return err
	}

	noaaClient := client.New(client.Options{BaseURL: cfg.NOAABaseURL, Timeout: cfg.HTTPTimeout()})

	var mapProvider hydrate.MapProvider
	if apiKey != "" {
		mapsClient := client.New(client.Options{BaseURL: cfg.MapsBaseURL, Timeout: cfg.HTTPTimeout()})
		mapProvider = maps.NewGoogleStaticMapClient(mapsClient, apiKey)
	} else {
		log.Warn().Msg("No maps API key configured, reports will have no map images")
	}

	orchestrator := hydrate.New(
		cache.NewMetadataCache(st, cfg.MetadataWindow()),
		predictionService,
		cache.NewImageCache(st, cfg.ImageWindow()),
		station.NewNOAAMetadataClient(noaaClient),
		tide.NewNOAAPredictionClient(noaaClient),
		mapProvider,
		hydrate.Options{
			PredictionsFatal: cfg.PredictionsFatal,
			MaxParallel:      cfg.MaxParallel,
			RemoteTimeout:    cfg.HTTPTimeout(),
		},
	)

	requests := make([]hydrate.Request, len(cfg.Stations))
	for i, entry := range cfg.Stations {
		requests[i] = hydrate.Request{ExternalID: entry.ID, NameHint: entry.Name}
	}

	stations, err := orchestrator.Hydrate(cmd.Context(), requests)
	if err != nil {
		return err
	}
	if len(stations) == 0 {
		return fmt.Errorf("no stations could be hydrated")
	}
	predictionService.LogStats()

	rep, err := report.Render(stations)
	if err != nil {
		return err
	}

	if flags.saveHTML {
		if err := os.WriteFile("message.html", []byte(rep.HTML), 0o644); err != nil {
			return fmt.Errorf("saving HTML body: %w", err)
		}
		log.Info().Str("path", "message.html").Msg("Saved HTML message body")
	}

	msg, err := mail.Compose(rep)
	if err != nil {
		return err
	}

	if flags.saveEML {
		if err := msg.WriteToFile("message.eml"); err != nil {
			return fmt.Errorf("saving email message: %w", err)
		}
		log.Info().Str("path", "message.eml").Msg("Saved email message")
	}

	if !flags.send {
		return nil
	}

	if len(cfg.Recipients) == 0 {
		return fmt.Errorf("no recipients configured")
	}

	return mail.Send(cmd.Context(), msg, cfg.Recipients, mail.Settings{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		Sender:   cfg.SMTP.Sender,
	})
}

func newCacheCommand(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the local prediction cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "wipe",
		Short: "Delete the cache database file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.configFile)
			if err != nil {
				return err
			}
			cfg.InitializeLogging()

			path, existed, err := store.New(cfg.Cache.Dir).Wipe()
			if err != nil {
				return err
			}

			if existed {
				cmd.Printf("Removed cache database at %s\n", path)
			} else {
				cmd.Printf("No cache database at %s\n", path)
			}
			return nil
		},
	})

	return cmd
}
