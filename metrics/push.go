package metrics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
)

// DefaultTimeout is the default timeout for remote write HTTP requests.
const DefaultTimeout = 30 * time.Second

// PushRegistry implements Registry for push-based metrics collection.
// Metrics are pushed to a VictoriaMetrics/Prometheus remote write endpoint.
type PushRegistry struct {
	pusher *pusher
}

// PushConfig configures a PushRegistry.
type PushConfig struct {
	// URL is the base URL of the remote write endpoint (e.g., "http://localhost:8428").
	URL string
	// Prefix is the metric name prefix. All metric names will be prefixed
	// with this value followed by an underscore.
	Prefix string
	// Job is the job label for all metrics.
	Job string
	// Instance is the instance label for all metrics.
	Instance string
	// Timeout is the HTTP client timeout. Defaults to DefaultTimeout.
	Timeout time.Duration
}

// NewPushRegistry creates a new PushRegistry that pushes metrics to the given URL.
func NewPushRegistry(cfg PushConfig) *PushRegistry {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	p := &pusher{
		url:        cfg.URL + "/api/v1/write",
		httpClient: &http.Client{Timeout: timeout},
		prefix:     cfg.Prefix,
		job:        cfg.Job,
		instance:   cfg.Instance,
		timeout:    timeout,
	}
	return &PushRegistry{pusher: p}
}

// NewGauge creates a new push-based Gauge.
func (r *PushRegistry) NewGauge(opts prometheus.GaugeOpts) (Gauge, error) {
	return &pushGauge{pusher: r.pusher, name: opts.Name}, nil
}

// NewCounter creates a new push-based Counter.
func (r *PushRegistry) NewCounter(opts prometheus.CounterOpts) (Counter, error) {
	return &pushCounter{pusher: r.pusher, name: opts.Name}, nil
}

// NewCounterVec creates a new push-based CounterVec.
func (r *PushRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error) {
	return &pushCounterVec{pusher: r.pusher, name: opts.Name}, nil
}

// pusher handles remote write to VictoriaMetrics/Prometheus.
type pusher struct {
	url        string
	httpClient *http.Client
	prefix     string
	job        string
	instance   string
	timeout    time.Duration
}

// push sends a single metric to the remote write endpoint.
func (p *pusher) push(name string, value float64, labels map[string]string) error {
	ts := p.metricToTimeSeries(name, value, labels)

	req := &prompb.WriteRequest{
		Timeseries: []prompb.TimeSeries{ts},
	}

	data, err := proto.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshaling write request: %w", err)
	}

	compressed := snappy.Encode(nil, data)

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(compressed))
	if err != nil {
		return fmt.Errorf("creating HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Encoding", "snappy")
	httpReq.Header.Set("Content-Type", "application/x-protobuf")
	httpReq.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// metricToTimeSeries converts a metric to Prometheus TimeSeries format.
func (p *pusher) metricToTimeSeries(name string, value float64, labels map[string]string) prompb.TimeSeries {
	promLabels := make([]prompb.Label, 0, len(labels)+3)

	metricName := name
	if p.prefix != "" {
		metricName = p.prefix + "_" + name
	}
	promLabels = append(promLabels, prompb.Label{
		Name:  "__name__",
		Value: metricName,
	})

	if p.job != "" {
		promLabels = append(promLabels, prompb.Label{
			Name:  "job",
			Value: p.job,
		})
	}
	if p.instance != "" {
		promLabels = append(promLabels, prompb.Label{
			Name:  "instance",
			Value: p.instance,
		})
	}

	for k, v := range labels {
		promLabels = append(promLabels, prompb.Label{
			Name:  k,
			Value: v,
		})
	}

	sample := prompb.Sample{
		Value:     value,
		Timestamp: time.Now().UnixMilli(),
	}

	return prompb.TimeSeries{
		Labels:  promLabels,
		Samples: []prompb.Sample{sample},
	}
}

// pushGauge implements Gauge for push mode. The current value is tracked
// locally so Inc and Dec can push absolute values.
type pushGauge struct {
	pusher *pusher
	name   string

	mu    sync.Mutex
	value float64
}

func (g *pushGauge) Set(v float64) {
	g.mu.Lock()
	g.value = v
	g.mu.Unlock()
	// Fire and forget - push errors are not actionable here.
	_ = g.pusher.push(g.name, v, nil)
}

func (g *pushGauge) Inc() { g.add(1) }
func (g *pushGauge) Dec() { g.add(-1) }

func (g *pushGauge) add(delta float64) {
	g.mu.Lock()
	g.value += delta
	v := g.value
	g.mu.Unlock()
	_ = g.pusher.push(g.name, v, nil)
}

// pushCounter implements Counter for push mode.
type pushCounter struct {
	pusher *pusher
	name   string
	labels map[string]string

	mu    sync.Mutex
	value float64
}

func (c *pushCounter) Inc() { c.Add(1) }

func (c *pushCounter) Add(v float64) {
	if v < 0 {
		panic("counter cannot decrease")
	}
	c.mu.Lock()
	c.value += v
	total := c.value
	c.mu.Unlock()
	_ = c.pusher.push(c.name, total, c.labels)
}

// pushCounterVec implements CounterVec for push mode.
type pushCounterVec struct {
	pusher *pusher
	name   string

	mu       sync.Mutex
	children map[string]*pushCounter
}

func (v *pushCounterVec) With(labels prometheus.Labels) Counter {
	key := labelKey(labels)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.children == nil {
		v.children = make(map[string]*pushCounter)
	}
	if child, ok := v.children[key]; ok {
		return child
	}
	child := &pushCounter{
		pusher: v.pusher,
		name:   v.name,
		labels: map[string]string(labels),
	}
	v.children[key] = child
	return child
}

func labelKey(labels prometheus.Labels) string {
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	sort.Strings(names)

	key := ""
	for _, name := range names {
		key += name + "=" + labels[name] + ";"
	}
	return key
}
