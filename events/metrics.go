package events

import (
	"time"

	"github.com/docker/go-metrics"
)

// Namespace is the prometheus namespace all pkginstall metrics are
// registered under.
var Namespace = metrics.NewNamespace("pkginstall", "", nil)

var (
	// go-metrics appends the unit suffix itself, so these surface as
	// pkginstall_stage_duration_seconds, pkginstall_packages_installed_total,
	// pkginstall_packages_cache_hit_total and pkginstall_packages_purged_total.
	stageDuration = Namespace.NewLabeledTimer("stage_duration", "Time spent in each install stage", "stage")

	packagesInstalled = Namespace.NewCounter("packages_installed", "Packages fetched and unpacked")
	packagesCacheHit  = Namespace.NewCounter("packages_cache_hit", "Packages resolved from cached metadata")
	packagesPurged    = Namespace.NewCounter("packages_purged", "Install directories removed by the reclaimer")
)

func init() {
	metrics.Register(Namespace)
}

// RecordStageDuration records how long a named pipeline stage took.
func RecordStageDuration(stage string, since time.Time) {
	stageDuration.WithValues(stage).UpdateSince(since)
}

// RecordPackageInstalled increments the fetched-and-unpacked counter.
func RecordPackageInstalled() { packagesInstalled.Inc() }

// RecordPackageCacheHit increments the cache-hit counter.
func RecordPackageCacheHit() { packagesCacheHit.Inc() }

// RecordPackagePurged increments the purged counter.
func RecordPackagePurged() { packagesPurged.Inc() }
