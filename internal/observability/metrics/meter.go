// Copyright 2026 The TaskFlow Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/taskflow/taskflow/internal/authz"
)

// Config holds metrics configuration
type Config struct {
	Enabled bool
}

// Meter wraps OpenTelemetry meter
type Meter struct {
	meter metric.Meter
}

// New creates a new meter instance
func New(ctx context.Context, cfg Config, serviceName string) (*Meter, error) {
	if !cfg.Enabled {
		return &Meter{meter: otel.Meter("noop")}, nil
	}
	return &Meter{meter: otel.Meter(serviceName)}, nil
}

// GetMeter returns the underlying meter
func (m *Meter) GetMeter() metric.Meter {
	return m.meter
}

// AuthzMetrics counts authorization decisions and cache behavior.
type AuthzMetrics struct {
	decisions metric.Int64Counter
}

// NewAuthzMetrics registers the authorization instruments on the meter.
func NewAuthzMetrics(m *Meter) (*AuthzMetrics, error) {
	decisions, err := m.meter.Int64Counter(
		"authz.decisions",
		metric.WithDescription("Authorization decisions by guard and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("create decision counter: %w", err)
	}
	return &AuthzMetrics{decisions: decisions}, nil
}

// Decision records one permission check outcome.
func (a *AuthzMetrics) Decision(ctx context.Context, guard authz.Guard, allowed bool) {
	a.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("guard", string(guard)),
		attribute.Bool("allowed", allowed),
	))
}
