// Package registry builds the configured providers.
package registry

import (
	"go.uber.org/zap"

	"favorites-sync-service/internal/config"
	"favorites-sync-service/internal/domain"
	"favorites-sync-service/internal/infra/provider"
	"favorites-sync-service/internal/infra/provider/provider_ex"
	"favorites-sync-service/internal/infra/provider/provider_jm"
	"favorites-sync-service/internal/infra/storage"
)

// NewProviders creates the enabled provider clients in a fixed order (ex,
// then jm). The jm client checkpoints through store, and store normalizes
// jm snapshots on load with the same cover template.
func NewProviders(cfg config.ProviderConfig, store *storage.FileStore, logger *zap.Logger) []domain.Provider {
	providers := make([]domain.Provider, 0, 2)

	if cfg.Ex.Enabled {
		providers = append(providers, provider_ex.New(provider_ex.Config{
			FavoritesURL:   cfg.Ex.FavoritesURL,
			APIURL:         cfg.Ex.APIURL,
			MemberID:       cfg.Ex.MemberID,
			PassHash:       cfg.Ex.PassHash,
			Igneous:        cfg.Ex.Igneous,
			BatchSize:      cfg.Ex.BatchSize,
			MaxRetryRounds: cfg.Ex.MaxRetryRounds,
			RetryDelay:     cfg.Ex.RetryDelay,
			RequestRate:    cfg.Ex.RequestRate,
			MaxPages:       cfg.Ex.MaxPages,
			Client:         clientConfig(cfg.Ex.HTTP),
		}, logger))
	}

	if cfg.JM.Enabled {
		var checkpoints domain.CheckpointStore
		if store != nil {
			checkpoints = store
			cover := cfg.JM.CoverURLTemplate
			store.SetNormalizer(domain.ProviderJM, func(r domain.Record) domain.Record {
				return provider_jm.Normalize(r, cover)
			})
		}

		providers = append(providers, provider_jm.New(provider_jm.Config{
			Mirrors:          cfg.JM.Mirrors,
			AppVersion:       cfg.JM.AppVersion,
			TokenSecret:      cfg.JM.TokenSecret,
			DataSecret:       cfg.JM.DataSecret,
			Username:         cfg.JM.Username,
			Password:         cfg.JM.Password,
			ProbeTimeout:     cfg.JM.ProbeTimeout,
			Client:           clientConfig(cfg.JM.HTTP),
			Workers:          cfg.JM.Workers,
			PerItemRetries:   cfg.JM.PerItemRetries,
			ItemBackoff:      cfg.JM.ItemBackoff,
			SaveEvery:        cfg.JM.SaveEvery,
			MaxRetryRounds:   cfg.JM.MaxRetryRounds,
			RetryDelay:       cfg.JM.RetryDelay,
			MaxPages:         cfg.JM.MaxPages,
			CoverURLTemplate: cfg.JM.CoverURLTemplate,
		}, checkpoints, logger))
	}

	return providers
}

func clientConfig(c config.HTTPConfig) provider.ClientConfig {
	return provider.ClientConfig{
		Timeout:   c.Timeout,
		UserAgent: c.UserAgent,
		Retry: provider.RetryConfig{
			MaxAttempts: c.Retry.MaxAttempts,
			WaitTime:    c.Retry.WaitTime,
			MaxWaitTime: c.Retry.MaxWaitTime,
		},
		CB: provider.CBConfig{
			MaxRequests:  c.CB.MaxRequests,
			MinRequests:  c.CB.MinRequests,
			Interval:     c.CB.Interval,
			Timeout:      c.CB.Timeout,
			FailureRatio: c.CB.FailureRatio,
		},
	}
}
