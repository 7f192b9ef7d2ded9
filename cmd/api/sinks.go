package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"google.golang.org/api/option"

	"github.com/pratik-mahalle/secwatch/internal/config"
	"github.com/pratik-mahalle/secwatch/internal/domain/alert"
	"github.com/pratik-mahalle/secwatch/internal/pkg/logger"
	"github.com/pratik-mahalle/secwatch/internal/repository/postgres"
	"github.com/pratik-mahalle/secwatch/internal/services"
	"github.com/pratik-mahalle/secwatch/internal/sinks"
)

// builtSinks holds the configured sinks and the clients that need closing
type builtSinks struct {
	services.Sinks
	HistoryRepo alert.Repository

	closers []func() error
}

// Close releases every client, collecting all errors
func (b *builtSinks) Close() error {
	var result *multierror.Error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// buildSinks creates a sink for every destination that is configured. A
// sink whose settings are missing is left nil and skipped by the dispatcher.
func buildSinks(ctx context.Context, cfg *config.Config, db *sql.DB, log *logger.Logger) (*builtSinks, error) {
	b := &builtSinks{}
	b.Log = sinks.NewLogSink(sinks.NewZerologWriter(log))
	b.Metrics = sinks.NewMetricsSink()

	if db != nil {
		b.HistoryRepo = postgres.NewAlertRepository(db)
		b.Sinks.History = sinks.NewHistorySink(b.HistoryRepo)
	}

	if cfg.EmailEnabled() {
		mailer := sinks.NewSMTPMailer(sinks.SMTPConfig{
			Host:          cfg.Email.SMTPHost,
			Port:          cfg.Email.SMTPPort,
			Username:      cfg.Email.Username,
			Password:      cfg.Email.Password,
			From:          cfg.Email.From,
			TLSSkipVerify: cfg.Email.TLSSkipVerify,
		})
		b.Notify = sinks.NewNotifySink(mailer, cfg.Email.Recipients)
	} else {
		log.Warn("Email notifications disabled: SMTP sender or recipients not configured")
	}

	if cfg.GCP.ProjectID == "" {
		log.Warn("GCP project not configured: publish, store and mitigate sinks disabled")
		return b, nil
	}
	opts := gcpOptions(cfg.GCP)

	for _, add := range []func() error{
		func() error { return b.addPublish(ctx, cfg.GCP, opts) },
		func() error { return b.addStore(ctx, cfg.GCP, opts) },
		func() error { return b.addMitigate(ctx, cfg.GCP, opts, log) },
	} {
		if err := add(); err != nil {
			return nil, b.abort(err)
		}
	}
	return b, nil
}

// abort closes what was built so far and folds any close failure into err
func (b *builtSinks) abort(err error) error {
	if cerr := b.Close(); cerr != nil {
		return multierror.Append(err, cerr)
	}
	return err
}

func (b *builtSinks) addPublish(ctx context.Context, gcp config.GCPConfig, opts []option.ClientOption) error {
	if gcp.PubSubTopic == "" {
		return nil
	}
	pub, err := sinks.NewPubSubPublisher(ctx, gcp.ProjectID, opts...)
	if err != nil {
		return err
	}
	b.closers = append(b.closers, pub.Close)
	b.Publish = sinks.NewPublishSink(pub, gcp.PubSubTopic)
	return nil
}

func (b *builtSinks) addStore(ctx context.Context, gcp config.GCPConfig, opts []option.ClientOption) error {
	switch gcp.StoreBackend {
	case "gcs":
		if gcp.ArchiveBucket == "" {
			return nil
		}
		st, err := sinks.NewGCSStorer(ctx, gcp.ArchiveBucket, gcp.ArchivePrefix, opts...)
		if err != nil {
			return err
		}
		b.closers = append(b.closers, st.Close)
		b.Store = sinks.NewStoreSink(st)
	case "bigquery":
		if gcp.BigQueryDataset == "" || gcp.BigQueryTable == "" {
			return nil
		}
		st, err := sinks.NewBigQueryStorer(ctx, gcp.ProjectID, gcp.BigQueryDataset, gcp.BigQueryTable, opts...)
		if err != nil {
			return err
		}
		b.closers = append(b.closers, st.Close)
		b.Store = sinks.NewStoreSink(st)
	default:
		return fmt.Errorf("unsupported store backend: %s", gcp.StoreBackend)
	}
	return nil
}

func (b *builtSinks) addMitigate(ctx context.Context, gcp config.GCPConfig, opts []option.ClientOption, log *logger.Logger) error {
	if !gcp.MitigateEnabled {
		return nil
	}
	fw, err := sinks.NewComputeFirewall(ctx, gcp.ProjectID, opts...)
	if err != nil {
		return err
	}
	m := sinks.NewMitigateSink(fw, gcp.FirewallRule, log)
	b.closers = append(b.closers, fw.Close, func() error {
		m.Close()
		return nil
	})
	b.Mitigate = m
	return nil
}

func gcpOptions(gcp config.GCPConfig) []option.ClientOption {
	var opts []option.ClientOption
	switch {
	case gcp.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(gcp.CredentialsJSON)))
	case gcp.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(gcp.CredentialsFile))
	}
	return opts
}
