package storage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// engineMetrics instruments a KVStore the same way the teacher's
// walMetrics instruments a WAL: one promauto-registered metric per
// operation class, counted inside the engine's single critical section.
type engineMetrics struct {
	sets             prometheus.Counter
	gets             prometheus.Counter
	removes          prometheus.Counter
	keyNotFound      prometheus.Counter
	bytesWritten     prometheus.Counter
	compactions      prometheus.Counter
	bytesReclaimed   prometheus.Counter
	segmentsUnlinked prometheus.Counter
}

func newEngineMetrics(reg prometheus.Registerer) *engineMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &engineMetrics{
		sets: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "kvs_engine_sets_total",
			Help: "kvs_engine_sets_total counts the number of Set calls that completed successfully.",
		}),
		gets: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "kvs_engine_gets_total",
			Help: "kvs_engine_gets_total counts the number of Get calls, hit or miss.",
		}),
		removes: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "kvs_engine_removes_total",
			Help: "kvs_engine_removes_total counts the number of Remove calls that completed successfully.",
		}),
		keyNotFound: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "kvs_engine_key_not_found_total",
			Help: "kvs_engine_key_not_found_total counts Remove calls that failed because the key was absent.",
		}),
		bytesWritten: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "kvs_engine_bytes_written_total",
			Help: "kvs_engine_bytes_written_total counts bytes of encoded command records appended to segments.",
		}),
		compactions: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "kvs_engine_compactions_total",
			Help: "kvs_engine_compactions_total counts how many times the uncompacted threshold triggered a compaction.",
		}),
		bytesReclaimed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "kvs_engine_bytes_reclaimed_total",
			Help: "kvs_engine_bytes_reclaimed_total counts the on-disk bytes freed by unlinking stale segments during compaction.",
		}),
		segmentsUnlinked: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "kvs_engine_segments_unlinked_total",
			Help: "kvs_engine_segments_unlinked_total counts segment files removed by compaction.",
		}),
	}
}
