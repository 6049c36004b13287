package hot

import (
	"io"

	"github.com/VictoriaMetrics/metrics"
	"github.com/puzpuzpuz/xsync/v3"
)

// engineMetrics holds the metrics of one DB.
// Counters on the read and write paths are striped xsync counters, the
// metrics set reads them lazily through gauges.
type engineMetrics struct {
	set *metrics.Set

	sets     *xsync.Counter
	gets     *xsync.Counter
	hits     *xsync.Counter
	expires  *xsync.Counter
	deletes  *xsync.Counter
	ranges   *xsync.Counter
	rejected *xsync.Counter

	gcExpired   *metrics.Counter
	gcDeleted   *metrics.Counter
	compactions *metrics.Counter
	reclaimed   *metrics.Counter
}

func newEngineMetrics(hdb *DB) *engineMetrics {
	s := metrics.NewSet()
	m := &engineMetrics{
		set:      s,
		sets:     xsync.NewCounter(),
		gets:     xsync.NewCounter(),
		hits:     xsync.NewCounter(),
		expires:  xsync.NewCounter(),
		deletes:  xsync.NewCounter(),
		ranges:   xsync.NewCounter(),
		rejected: xsync.NewCounter(),

		gcExpired:   s.NewCounter("hotkv_gc_expired_total"),
		gcDeleted:   s.NewCounter("hotkv_gc_deleted_total"),
		compactions: s.NewCounter("hotkv_compactions_total"),
		reclaimed:   s.NewCounter("hotkv_compaction_reclaimed_bytes_total"),
	}

	for name, c := range map[string]*xsync.Counter{
		`hotkv_ops_total{op="set"}`:    m.sets,
		`hotkv_ops_total{op="get"}`:    m.gets,
		`hotkv_ops_total{op="expire"}`: m.expires,
		`hotkv_ops_total{op="delete"}`: m.deletes,
		`hotkv_ops_total{op="range"}`:  m.ranges,
		`hotkv_get_hits_total`:         m.hits,
		`hotkv_rejected_writes_total`:  m.rejected,
	} {
		s.NewGauge(name, func() float64 { return float64(c.Value()) })
	}

	s.NewGauge("hotkv_keys", func() float64 { return float64(hdb.Len()) })
	s.NewGauge("hotkv_write_index", func() float64 { return float64(hdb.WriteIdx()) })
	s.NewGauge("hotkv_arena_bytes", func() float64 {
		var total uint64
		for _, shard := range hdb.shards {
			shard.Mu.RLock()
			total += shard.Data.MemoryUsage().Total
			shard.Mu.RUnlock()
		}
		return float64(total)
	})
	s.NewGauge("hotkv_value_bytes", func() float64 {
		var total int64
		for _, shard := range hdb.shards {
			shard.Mu.RLock()
			total += shard.ValueBytes
			shard.Mu.RUnlock()
		}
		return float64(total)
	})

	return m
}

// WritePrometheus writes the metrics of the database in Prometheus text format
func (hdb *DB) WritePrometheus(w io.Writer) {
	hdb.metrics.set.WritePrometheus(w)
}
