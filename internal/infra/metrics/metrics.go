// Package metrics provides Prometheus metrics for the chain node:
// counters, gauges, and histograms for dispatch, block production, the
// expiration sweeper, and the off-chain oracle worker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Dispatch ───────────────────────────────────────────────────────────────

// Dispatches tracks applied extrinsics by call and result.
var Dispatches = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gridmkt",
	Name:      "dispatches_total",
	Help:      "Total dispatched extrinsics by call and result.",
}, []string{"call", "result"})

// PoolDepth tracks extrinsics waiting for inclusion.
var PoolDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "gridmkt",
	Name:      "pool_depth",
	Help:      "Extrinsics currently waiting in the pool.",
})

// ─── Blocks ─────────────────────────────────────────────────────────────────

// BlockHeight tracks the current chain height.
var BlockHeight = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "gridmkt",
	Name:      "block_height",
	Help:      "Current block height.",
})

// BlockApplyLatency tracks how long a block takes to apply and finalize.
var BlockApplyLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "gridmkt",
	Name:      "block_apply_latency_seconds",
	Help:      "Time to apply and finalize one block.",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
})

// ─── Contracts ──────────────────────────────────────────────────────────────

// ContractsCancelled counts contracts reaching the Cancelled state.
var ContractsCancelled = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "gridmkt",
	Name:      "contracts_cancelled_total",
	Help:      "Total contracts decommissioned (any path).",
})

// SweepDecommissions counts contracts decommissioned by the sweeper.
var SweepDecommissions = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "gridmkt",
	Name:      "sweep_decommissions_total",
	Help:      "Total contracts decommissioned at finalization.",
})

// ─── Oracle worker ──────────────────────────────────────────────────────────

// OracleRuns tracks worker runs by outcome (ok, skipped, err).
var OracleRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gridmkt",
	Name:      "oracle_runs_total",
	Help:      "Off-chain oracle worker runs by outcome.",
}, []string{"outcome"})

// OracleFetchLatency tracks explorer fetch duration.
var OracleFetchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "gridmkt",
	Name:      "oracle_fetch_latency_seconds",
	Help:      "Explorer fetch duration per worker run.",
	Buckets:   prometheus.DefBuckets,
})
