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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SwarmPeers reports the number of live transports registered.
	SwarmPeers = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "swarm",
			Name:      "peers",
			Help:      "Number of peers with a live transport registered",
		},
	)

	// SwarmRPCTimeouts tracks RemoteRing RPC calls that timed out
	// waiting for a correlated reply.
	SwarmRPCTimeouts = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "swarm",
			Name:      "rpc_timeouts_total",
			Help:      "Total number of RemoteRing RPCs that timed out",
		},
		[]string{"method"}, // find_successors, notify
	)

	// SwarmTransportReplaced tracks at-most-one-transport tie-breaks.
	SwarmTransportReplaced = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "swarm",
			Name:      "transport_replaced_total",
			Help:      "Total number of times a duplicate transport to a peer was replaced",
		},
	)
)
