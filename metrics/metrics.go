// Package metrics exports kmsdisplay Presenter statistics to Prometheus.
//
//	p, _ := kmsdisplay.NewPresenter(d, nil)
//	prometheus.MustRegister(metrics.NewCollector(p))
package metrics

import (
	"github.com/flavioheleno/kmsdisplay"
	"github.com/prometheus/client_golang/prometheus"
)

// Source is anything reporting presenter statistics.
type Source interface {
	Stats() kmsdisplay.Stats
}

// Collector is a prometheus.Collector reading a Source on every scrape.
type Collector struct {
	src Source

	buffers       *prometheus.Desc
	posted        *prometheus.Desc
	presented     *prometheus.Desc
	presentErrors *prometheus.Desc
	blitErrors    *prometheus.Desc
}

// NewCollector returns a collector for src. Metric names are prefixed with
// kmsdisplay_presenter_.
func NewCollector(src Source) *Collector {
	const ns, sub = "kmsdisplay", "presenter"
	return &Collector{
		src: src,
		buffers: prometheus.NewDesc(
			prometheus.BuildFQName(ns, sub, "buffers"),
			"Framebuffers per pipeline state.",
			[]string{"state"}, nil),
		posted: prometheus.NewDesc(
			prometheus.BuildFQName(ns, sub, "frames_posted_total"),
			"Frames composed and queued for display.", nil, nil),
		presented: prometheus.NewDesc(
			prometheus.BuildFQName(ns, sub, "frames_presented_total"),
			"Successful mode-sets.", nil, nil),
		presentErrors: prometheus.NewDesc(
			prometheus.BuildFQName(ns, sub, "present_errors_total"),
			"Mode-sets rejected by the kernel.", nil, nil),
		blitErrors: prometheus.NewDesc(
			prometheus.BuildFQName(ns, sub, "blit_errors_total"),
			"Posts dropped because the blit failed.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.buffers
	ch <- c.posted
	ch <- c.presented
	ch <- c.presentErrors
	ch <- c.blitErrors
}

// Collect implements prometheus.Collector. It takes one Stats snapshot per
// scrape.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()
	for _, b := range []struct {
		state string
		n     int
	}{
		{"free", s.Free},
		{"used", s.Used},
		{"on_screen", s.OnScreen},
		{"in_flight", s.InFlight},
	} {
		ch <- prometheus.MustNewConstMetric(c.buffers, prometheus.GaugeValue, float64(b.n), b.state)
	}
	ch <- prometheus.MustNewConstMetric(c.posted, prometheus.CounterValue, float64(s.Posted))
	ch <- prometheus.MustNewConstMetric(c.presented, prometheus.CounterValue, float64(s.Presented))
	ch <- prometheus.MustNewConstMetric(c.presentErrors, prometheus.CounterValue, float64(s.PresentErrors))
	ch <- prometheus.MustNewConstMetric(c.blitErrors, prometheus.CounterValue, float64(s.BlitErrors))
}

var _ prometheus.Collector = (*Collector)(nil)
