package metrics

import (
	"time"

	"github.com/berfenger/powermon/internal/core/domain"
	"github.com/berfenger/powermon/pkg/huawei_modbus"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "powermon_"

// Metrics bundles collector, aggregator and forwarder metrics. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	RegisterReadDuration *prometheus.HistogramVec
	PollCyclesTotal      *prometheus.CounterVec
	FramesTotal          prometheus.Counter
	FrameErrorsTotal     *prometheus.CounterVec
	SubmitsTotal         *prometheus.CounterVec
	FlushesTotal         *prometheus.CounterVec
	DeliveriesTotal      *prometheus.CounterVec
	DeliveryDuration     prometheus.Histogram
}

// New constructs and registers metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RegisterReadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metricPrefix + "register_read_duration_seconds",
			Help:    "Inverter register read latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"fn"}),
		PollCyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "inverter_poll_cycles_total",
			Help: "Inverter poll cycles by result",
		}, []string{"result"}),
		FramesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "meter_frames_total",
			Help: "Complete meter frames emitted",
		}),
		FrameErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "meter_frame_errors_total",
			Help: "Meter framing and parse errors",
		}, []string{"kind"}),
		SubmitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "aggregator_submits_total",
			Help: "Readings submitted to the aggregator by source",
		}, []string{"source"}),
		FlushesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "aggregator_flushes_total",
			Help: "Flush ticks by result",
		}, []string{"result"}),
		DeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "jeedom_deliveries_total",
			Help: "Field deliveries by result",
		}, []string{"result"}),
		DeliveryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    metricPrefix + "jeedom_delivery_duration_seconds",
			Help:    "Field delivery latency",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.RegisterReadDuration,
			m.PollCyclesTotal,
			m.FramesTotal,
			m.FrameErrorsTotal,
			m.SubmitsTotal,
			m.FlushesTotal,
			m.DeliveriesTotal,
			m.DeliveryDuration,
		)
	}
	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) RecordTime(fnName string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RegisterReadDuration.WithLabelValues(fnName).Observe(elapsed.Seconds())
}

// ModbusInstrument feeds register read timings into the latency histogram.
func (m *Metrics) ModbusInstrument() *huawei_modbus.ModbusInstrument {
	if m == nil {
		return nil
	}
	return &huawei_modbus.ModbusInstrument{RecordTime: m.RecordTime}
}

func (m *Metrics) PollCycle(err error) {
	if m == nil {
		return
	}
	m.PollCyclesTotal.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) Frame() {
	if m == nil {
		return
	}
	m.FramesTotal.Inc()
}

func (m *Metrics) FrameError(kind string) {
	if m == nil {
		return
	}
	m.FrameErrorsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) Submit(source domain.Source) {
	if m == nil {
		return
	}
	m.SubmitsTotal.WithLabelValues(string(source)).Inc()
}

// Flush counts a flush tick, result is one of flushed, not_ready.
func (m *Metrics) Flush(result string) {
	if m == nil {
		return
	}
	m.FlushesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordDelivery(field string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.DeliveriesTotal.WithLabelValues(result(err)).Inc()
	m.DeliveryDuration.Observe(elapsed.Seconds())
}
