// Package metrics exposes Prometheus counters for the interesting state
// transitions: logins, lockouts, locked picks, eliminations, completions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the registry and the application counters.
type Metrics struct {
	registry *prometheus.Registry

	LoginSuccesses  prometheus.Counter
	LoginFailures   prometheus.Counter
	AccountLockouts prometheus.Counter
	UsersCreated    prometheus.Counter
	PicksLocked     prometheus.Counter
	PoolsCreated    prometheus.Counter
	PoolsAdvanced   prometheus.Counter
	PoolsCompleted  prometheus.Counter
	Eliminations    *prometheus.CounterVec
}

// New builds a registry with go/process collectors plus the app counters.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		LoginSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "survivorpool_logins_total",
			Help: "Successful logins.",
		}),
		LoginFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "survivorpool_login_failures_total",
			Help: "Failed login attempts.",
		}),
		AccountLockouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "survivorpool_account_lockouts_total",
			Help: "Accounts locked after repeated failed logins.",
		}),
		UsersCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "survivorpool_users_created_total",
			Help: "Accounts registered.",
		}),
		PicksLocked: factory.NewCounter(prometheus.CounterOpts{
			Name: "survivorpool_picks_locked_total",
			Help: "Weekly picks locked in.",
		}),
		PoolsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "survivorpool_pools_created_total",
			Help: "Pools created.",
		}),
		PoolsAdvanced: factory.NewCounter(prometheus.CounterOpts{
			Name: "survivorpool_pools_advanced_total",
			Help: "Successful week advances.",
		}),
		PoolsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "survivorpool_pools_completed_total",
			Help: "Pools that reached completion.",
		}),
		Eliminations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "survivorpool_eliminations_total",
			Help: "Member eliminations by reason.",
		}, []string{"reason"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
