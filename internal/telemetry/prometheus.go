package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PageOperations conta mutações de hierarquia por operação. Registrado no
// registry default e exposto em /metrics junto com as métricas de runtime.
var PageOperations = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "docspace_page_operations_total",
	Help: "Total page hierarchy mutations by operation",
}, []string{"operation"})
