package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PoolStats 是连接池在采集时刻的快照. 数据库与 Redis 各自转换成它.
type PoolStats struct {
	Open     int
	Idle     int
	Waits    uint64 // 累计，需要等待空闲连接的次数
	Timeouts uint64 // 累计，等待超时次数
}

// poolCollector 在 scrape 时读取快照，不需要后台采样协程.
type poolCollector struct {
	name  string
	stats func() PoolStats

	open     *prometheus.Desc
	idle     *prometheus.Desc
	waits    *prometheus.Desc
	timeouts *prometheus.Desc
}

// RegisterPool 为名为 name 的连接池注册指标. 同名重复注册返回错误.
func (c *Collector) RegisterPool(name string, stats func() PoolStats) error {
	labels := prometheus.Labels{"pool": name}
	desc := func(metric, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(c.namespace, "pool", metric), help, nil, labels)
	}
	return c.reg.Register(&poolCollector{
		name:     name,
		stats:    stats,
		open:     desc("connections_open", "Open connections in the pool"),
		idle:     desc("connections_idle", "Idle connections in the pool"),
		waits:    desc("waits_total", "Times a caller waited for a free connection"),
		timeouts: desc("timeouts_total", "Times waiting for a connection timed out"),
	})
}

func (p *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- p.open
	ch <- p.idle
	ch <- p.waits
	ch <- p.timeouts
}

func (p *poolCollector) Collect(ch chan<- prometheus.Metric) {
	s := p.stats()
	ch <- prometheus.MustNewConstMetric(p.open, prometheus.GaugeValue, float64(s.Open))
	ch <- prometheus.MustNewConstMetric(p.idle, prometheus.GaugeValue, float64(s.Idle))
	ch <- prometheus.MustNewConstMetric(p.waits, prometheus.CounterValue, float64(s.Waits))
	ch <- prometheus.MustNewConstMetric(p.timeouts, prometheus.CounterValue, float64(s.Timeouts))
}
