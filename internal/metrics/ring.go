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
	// RingStabilizations tracks stabilize ticks, by whether the
	// successor changed.
	RingStabilizations = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ring",
			Name:      "stabilizations_total",
			Help:      "Total number of stabilize ticks run",
		},
		[]string{"outcome"}, // unchanged, successor_updated, predecessor_notified
	)

	// RingFingerFixes tracks fix_fingers ticks.
	RingFingerFixes = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ring",
			Name:      "finger_fixes_total",
			Help:      "Total number of finger table entries refreshed",
		},
	)

	// RingJoins tracks join attempts.
	RingJoins = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ring",
			Name:      "joins_total",
			Help:      "Total number of ring join attempts",
		},
		[]string{"status"}, // success, failure
	)

	// RingSuccessorListSize reports the current successor list length.
	RingSuccessorListSize = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ring",
			Name:      "successor_list_size",
			Help:      "Current length of the live successor list",
		},
	)

	// RingVNodesStored reports the count of VNode entries owned locally.
	RingVNodesStored = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ring",
			Name:      "vnodes_stored",
			Help:      "Number of VNode records currently owned by this node",
		},
	)
)
