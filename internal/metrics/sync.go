package metrics

import (
	"time"

	"klinevault/logger"
)

// SyncStats summarises one orchestrated sync run.
type SyncStats struct {
	Category          string
	SymbolsTotal      int64
	SymbolsSynced     int64
	SymbolsFailed     int64
	PartitionsPresent int64
	PartitionsFetched int64
	PartitionsSkipped int64
	PartitionsFailed  int64
	BytesDownloaded   int64
	Duration          time.Duration
}

// ReportSync emits the run metrics using the provided logger and component name.
func ReportSync(log *logger.Log, component string, stats SyncStats) {
	if log == nil {
		log = logger.GetLogger()
	}
	dims := logger.Fields{"category": stats.Category}

	failureRate := float64(0)
	if stats.SymbolsTotal > 0 {
		failureRate = float64(stats.SymbolsFailed) / float64(stats.SymbolsTotal)
	}

	EmitMetric(log, component, "symbols_synced", stats.SymbolsSynced, "counter", dims)
	EmitMetric(log, component, "symbols_failed", stats.SymbolsFailed, "counter", dims)
	EmitMetric(log, component, "partitions_fetched", stats.PartitionsFetched, "counter", dims)
	EmitMetric(log, component, "partitions_skipped", stats.PartitionsSkipped, "counter", dims)
	EmitMetric(log, component, "partitions_failed", stats.PartitionsFailed, "counter", dims)
	EmitMetric(log, component, "bytes_downloaded", stats.BytesDownloaded, "counter", logger.Fields{"category": stats.Category, "unit": "bytes"})
	EmitMetric(log, component, "run_duration_seconds", stats.Duration.Seconds(), "gauge", logger.Fields{"category": stats.Category, "unit": "seconds"})

	for _, c := range logger.Counts() {
		if c.Warns == 0 && c.Errors == 0 {
			continue
		}
		log.WithComponent(component).WithFields(logger.Fields{
			"source_component": c.Component,
			"warns":            c.Warns,
			"errors":           c.Errors,
		}).Debug("log level counts")
	}

	entry := log.WithComponent(component).WithFields(logger.Fields{
		"category":           stats.Category,
		"symbols_total":      stats.SymbolsTotal,
		"symbols_synced":     stats.SymbolsSynced,
		"symbols_failed":     stats.SymbolsFailed,
		"failure_rate":       failureRate,
		"partitions_present": stats.PartitionsPresent,
		"partitions_fetched": stats.PartitionsFetched,
		"partitions_skipped": stats.PartitionsSkipped,
		"partitions_failed":  stats.PartitionsFailed,
		"bytes_downloaded":   stats.BytesDownloaded,
		"duration":           stats.Duration.String(),
	})

	if stats.SymbolsFailed > 0 {
		entry.Warn(component + " metrics")
		return
	}
	entry.Info(component + " metrics")
}
