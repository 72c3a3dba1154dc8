// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

// Package metrics collects Prometheus instrumentation for a rings node:
// DHT stabilize/join activity, router forward/drop counts, transport
// connection and handshake timing, swarm peer counts, and crypto
// operation counts.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "rings"

// Registry is the process-wide Prometheus registry all metrics in this
// package register against, rather than prometheus.DefaultRegisterer,
// so a node embedding this package doesn't collide with a host
// application's own metrics.
var Registry = prometheus.NewRegistry()
