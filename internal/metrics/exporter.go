/*
SPDX-License-Identifier: Apache-2.0

Copyright 2025 ConfigButler

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics provides the OpenTelemetry-based metrics exporter for the registry.
// It bridges OpenTelemetry metric instruments onto a Prometheus registry that the HTTP
// surface exposes on the ambient metrics/health side channel.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

var (
	otelMeter metric.Meter

	PublishRequestsTotal   metric.Int64Counter
	DownloadRequestsTotal  metric.Int64Counter
	GitCommitsTotal        metric.Int64Counter
	PublishDurationSeconds metric.Float64Histogram
)

// Outcome labels attached to the request counters.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Init creates a dedicated Prometheus registry, bridges an OpenTelemetry meter provider
// onto it, and creates the registry's request/commit instruments. The returned
// registry is what the metrics/health server exposes on /metrics; the returned
// shutdown function should be called once on process exit.
func Init(_ context.Context) (*prometheus.Registry, func(context.Context) error, error) {
	registry := prometheus.NewRegistry()

	exporter, err := otelprometheus.New(otelprometheus.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	otelMeter = provider.Meter("cargo-registry")

	PublishRequestsTotal, err = otelMeter.Int64Counter("cargo_registry_publish_requests_total")
	if err != nil {
		return nil, nil, err
	}
	DownloadRequestsTotal, err = otelMeter.Int64Counter("cargo_registry_download_requests_total")
	if err != nil {
		return nil, nil, err
	}
	GitCommitsTotal, err = otelMeter.Int64Counter("cargo_registry_git_commits_total")
	if err != nil {
		return nil, nil, err
	}
	PublishDurationSeconds, err = otelMeter.Float64Histogram("cargo_registry_publish_duration_seconds")
	if err != nil {
		return nil, nil, err
	}

	return registry, provider.Shutdown, nil
}
