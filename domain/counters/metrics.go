package counters

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueueSizeGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "adworker_queue_size",
		Help: "Advisory count of submitted jobs not yet released by the consumer",
	})

	ActiveProcessingGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "adworker_active_processing",
		Help: "Advisory count of jobs currently being processed",
	})

	AvailableSlotsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "adworker_available_processing_slots",
		Help: "max_concurrency minus active_processing, floored at zero",
	})
)

func gaugeFor(name string) prometheus.Gauge {
	if name == QueueSize {
		return QueueSizeGauge
	}
	return ActiveProcessingGauge
}

func observe(info Info) {
	QueueSizeGauge.Set(float64(info.QueueSize))
	ActiveProcessingGauge.Set(float64(info.ActiveProcessing))
	AvailableSlotsGauge.Set(float64(info.AvailableProcessingSlots))
}
