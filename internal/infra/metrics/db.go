package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(dbPoolConns, jobStoreOps) }

var dbPoolConns = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "scriptgen_db_pool_conns",
		Help: "Postgres pool connections by state.",
	},
	[]string{"state"}, // total | idle | acquired
)

var jobStoreOps = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "scriptgen_job_store_ops_total",
		Help: "Job store operations by kind and outcome.",
	},
	[]string{"op", "result"},
)

func SetDBPoolStats(total, idle, acquired int32) {
	dbPoolConns.WithLabelValues("total").Set(float64(total))
	dbPoolConns.WithLabelValues("idle").Set(float64(idle))
	dbPoolConns.WithLabelValues("acquired").Set(float64(acquired))
}

// IncJobStoreOp counts one store call; err == nil is "ok", anything else "error".
func IncJobStoreOp(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	jobStoreOps.WithLabelValues(norm(op), result).Inc()
}
