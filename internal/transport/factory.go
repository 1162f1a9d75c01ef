package transport

import (
	"context"
	"fmt"
	"net/http"

	"dsync-go/internal/config"
	"dsync-go/internal/dsync"
)

// NewTransportFromConfig creates the Transport and the endpoint pool
// selected by cfg.Type. Probes are cached for cfg.ProbeCacheTTL and every
// call is reported to observer when it is non-nil.
func NewTransportFromConfig(ctx context.Context, cfg config.TransportConfig, observer RequestObserver, logger dsync.Logger) (dsync.Transport, *EndpointPool, error) {
	endpoints, err := LoadEndpoints(cfg.EndpointsFile)
	if err != nil {
		return nil, nil, err
	}

	var t dsync.Transport
	backend := cfg.Type
	switch cfg.Type {
	case "webhook", "":
		backend = "webhook"
		client := &http.Client{Timeout: cfg.TransferTimeout()}
		t = NewWebhookTransport(client, cfg.TransferTimeout(), cfg.ProbeTimeout(), logger)
	case "s3":
		t, err = NewS3Transport(ctx, S3Options{
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			TransferTimeout: cfg.TransferTimeout(),
			ProbeTimeout:    cfg.ProbeTimeout(),
		}, nil, logger)
		if err != nil {
			return nil, nil, err
		}
	case "filesystem":
		t = NewFileSystemTransport(nil, logger)
	case "memory":
		if len(endpoints) == 0 {
			endpoints = []string{"memory"}
		}
		t = NewMemoryTransport(nil)
	default:
		return nil, nil, fmt.Errorf("unknown transport type: %s", cfg.Type)
	}

	t = NewProbeCache(Instrument(t, backend, observer), cfg.ProbeCacheTTL())
	return t, NewEndpointPool(endpoints), nil
}
