// Package app wires the pipeline from configuration. The server and the CLI
// share it so both run the same gateway, normalizer and budget settings.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"docdash/internal/config"
	"docdash/internal/metrics"
	"docdash/internal/normalize"
	"docdash/internal/port"
	"docdash/internal/resilience"
	"docdash/internal/service"
	"docdash/internal/storage/gateway"
	s3storage "docdash/internal/storage/s3"
)

// Gateway is a storage gateway that can report its own readiness.
type Gateway interface {
	port.Gateway
	Ping(ctx context.Context) error
}

// NewGateway builds the gateway selected by cfg.Gateway.Mode.
func NewGateway(cfg *config.Config, guard *resilience.Guard) (Gateway, error) {
	switch cfg.Gateway.Mode {
	case config.GatewayModeHTTP:
		return gateway.NewClient(&cfg.Gateway, guard), nil
	case config.GatewayModeS3:
		client, err := s3storage.NewClient(&cfg.S3, guard)
		if err != nil {
			return nil, fmt.Errorf("initializing S3 gateway: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown gateway mode %q", cfg.Gateway.Mode)
	}
}

// NewPipeline builds the normalizer, column profile and services on top of gw.
func NewPipeline(
	cfg *config.Config,
	gw port.Gateway,
	m *metrics.PipelineMetrics,
	logger *zap.Logger,
	opts ...service.PipelineOption,
) (*service.Pipeline, error) {
	normalizer, err := normalize.NewFromConfig(&cfg.Export)
	if err != nil {
		return nil, fmt.Errorf("initializing normalizer: %w", err)
	}
	profile, err := normalize.LoadProfile(cfg.Export.ProfilePath)
	if err != nil {
		return nil, fmt.Errorf("loading export profile: %w", err)
	}

	uploadSvc := service.NewUploadService(gw, m, logger)
	pollSvc := service.NewPollService(gw, m, logger)
	return service.NewPipeline(uploadSvc, pollSvc, normalizer, profile, cfg.Poll, cfg.Upload, logger, opts...), nil
}
