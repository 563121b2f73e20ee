// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"database/sql"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rdychk/rdychk/pkg/response"
)

const ResultOK = "ok"

var (
	Mutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rdychk",
		Name:      "mutations_total",
		Help:      "Gateway mutations by operation and result.",
	}, []string{"operation", "result"})

	PreviewFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rdychk",
		Name:      "preview_fetch_total",
		Help:      "Link preview lookups by result.",
	}, []string{"result"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rdychk",
		Name:      "notifications_total",
		Help:      "Change notifications published by result.",
	}, []string{"result"})
)

// Result maps an operation error to its metric label: "ok" for nil, the
// error kind for application errors, external_failure for anything else.
func Result(err error) string {
	if err == nil {
		return ResultOK
	}
	var appErr *response.AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return response.CodeExternal
}

// ObserveMutation counts one gateway call.
func ObserveMutation(operation string, err error) {
	Mutations.WithLabelValues(operation, Result(err)).Inc()
}

// RegisterDBStats exports connection pool gauges for db. Registering twice is
// not an error.
func RegisterDBStats(db *sql.DB) error {
	err := prometheus.Register(collectors.NewDBStatsCollector(db, "rdychk"))
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		return nil
	}
	return err
}
