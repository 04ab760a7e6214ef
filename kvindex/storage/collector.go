package storage

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PebbleCollector exports the engine metrics of a PebbleStore
type PebbleCollector struct {
	store *PebbleStore

	compactionCount         *prometheus.Desc
	compactionEstimatedDebt *prometheus.Desc
	memtableSize            *prometheus.Desc
	memtableCount           *prometheus.Desc
	walFiles                *prometheus.Desc
	walSize                 *prometheus.Desc
	walBytesWritten         *prometheus.Desc
}

// NewPebbleCollector creates a collector for s
func NewPebbleCollector(s *PebbleStore) *PebbleCollector {
	return &PebbleCollector{
		store: s,

		compactionCount: prometheus.NewDesc(
			"kvindex_pebble_compaction_count_total",
			"Total number of compactions performed",
			nil, nil,
		),
		compactionEstimatedDebt: prometheus.NewDesc(
			"kvindex_pebble_compaction_estimated_debt_bytes",
			"Estimated number of bytes that need to be compacted",
			nil, nil,
		),
		memtableSize: prometheus.NewDesc(
			"kvindex_pebble_memtable_size_bytes",
			"Current size of memtables in bytes",
			nil, nil,
		),
		memtableCount: prometheus.NewDesc(
			"kvindex_pebble_memtable_count",
			"Current number of memtables",
			nil, nil,
		),
		walFiles: prometheus.NewDesc(
			"kvindex_pebble_wal_files",
			"Number of live WAL files",
			nil, nil,
		),
		walSize: prometheus.NewDesc(
			"kvindex_pebble_wal_size_bytes",
			"Size of live WAL data in bytes",
			nil, nil,
		),
		walBytesWritten: prometheus.NewDesc(
			"kvindex_pebble_wal_bytes_written_total",
			"Total bytes written to the WAL",
			nil, nil,
		),
	}
}

func (pc *PebbleCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- pc.compactionCount
	ch <- pc.compactionEstimatedDebt
	ch <- pc.memtableSize
	ch <- pc.memtableCount
	ch <- pc.walFiles
	ch <- pc.walSize
	ch <- pc.walBytesWritten
}

func (pc *PebbleCollector) Collect(ch chan<- prometheus.Metric) {
	metrics := pc.store.db.Metrics()

	ch <- prometheus.MustNewConstMetric(pc.compactionCount, prometheus.CounterValue, float64(metrics.Compact.Count))
	ch <- prometheus.MustNewConstMetric(pc.compactionEstimatedDebt, prometheus.GaugeValue, float64(metrics.Compact.EstimatedDebt))
	ch <- prometheus.MustNewConstMetric(pc.memtableSize, prometheus.GaugeValue, float64(metrics.MemTable.Size))
	ch <- prometheus.MustNewConstMetric(pc.memtableCount, prometheus.GaugeValue, float64(metrics.MemTable.Count))
	ch <- prometheus.MustNewConstMetric(pc.walFiles, prometheus.GaugeValue, float64(metrics.WAL.Files))
	ch <- prometheus.MustNewConstMetric(pc.walSize, prometheus.GaugeValue, float64(metrics.WAL.Size))
	ch <- prometheus.MustNewConstMetric(pc.walBytesWritten, prometheus.CounterValue, float64(metrics.WAL.BytesWritten))
}

// BadgerCollector exports the on-disk size of a BadgerStore
type BadgerCollector struct {
	store *BadgerStore

	lsmSize  *prometheus.Desc
	vlogSize *prometheus.Desc
}

// NewBadgerCollector creates a collector for s
func NewBadgerCollector(s *BadgerStore) *BadgerCollector {
	return &BadgerCollector{
		store: s,
		lsmSize: prometheus.NewDesc(
			"kvindex_badger_lsm_size_bytes",
			"Size of the LSM tree in bytes",
			nil, nil,
		),
		vlogSize: prometheus.NewDesc(
			"kvindex_badger_vlog_size_bytes",
			"Size of the value log in bytes",
			nil, nil,
		),
	}
}

func (bc *BadgerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- bc.lsmSize
	ch <- bc.vlogSize
}

func (bc *BadgerCollector) Collect(ch chan<- prometheus.Metric) {
	lsm, vlog := bc.store.db.Size()
	ch <- prometheus.MustNewConstMetric(bc.lsmSize, prometheus.GaugeValue, float64(lsm))
	ch <- prometheus.MustNewConstMetric(bc.vlogSize, prometheus.GaugeValue, float64(vlog))
}

// NewCollector returns the engine metrics collector for s, or nil for
// stores without one
func NewCollector(s Store) prometheus.Collector {
	switch st := s.(type) {
	case *PebbleStore:
		return NewPebbleCollector(st)
	case *BadgerStore:
		return NewBadgerCollector(st)
	}
	return nil
}
