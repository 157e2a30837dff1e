package scanning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anstrom/portsweep/internal/logging"
	"github.com/anstrom/portsweep/internal/metrics"
	"github.com/anstrom/portsweep/internal/workers"
)

// Scanner fans probes out across a bounded worker pool and gathers their results.
type Scanner struct {
	probers          map[Protocol]Prober
	progressInterval int
	maxProbes        int
	logger           *logging.Logger
	metrics          *metrics.PrometheusMetrics
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithProber replaces the prober used for protocol.
func WithProber(protocol Protocol, prober Prober) Option {
	return func(s *Scanner) {
		s.probers[protocol] = prober
	}
}

// WithPayloads installs a UDP prober that draws payloads from source.
func WithPayloads(source PayloadSource) Option {
	return WithProber(UDP, UDPProber{Payloads: source})
}

// WithProgressInterval sets how many completions pass between progress reports.
func WithProgressInterval(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.progressInterval = n
		}
	}
}

// WithMaxProbes caps the number of probes a single scan may dispatch.
func WithMaxProbes(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.maxProbes = n
		}
	}
}

// WithLogger sets the scanner's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Scanner) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink. Nil disables metrics.
func WithMetrics(m *metrics.PrometheusMetrics) Option {
	return func(s *Scanner) {
		s.metrics = m
	}
}

// NewScanner creates a scanner with connect-based TCP and generic-payload UDP probers.
func NewScanner(opts ...Option) *Scanner {
	s := &Scanner{
		probers: map[Protocol]Prober{
			TCP: TCPProber{},
			UDP: UDPProber{},
		},
		progressInterval: DefaultProgressInterval,
		maxProbes:        DefaultMaxProbes,
		logger:           logging.Default().WithComponent("scanner"),
		metrics:          metrics.GetGlobalMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run expands the raw target and port specifications and scans the result.
// Port specification and probe limit errors are returned before any probe is
// sent, and before targets are expanded.
func (s *Scanner) Run(ctx context.Context, req Request, progress ProgressFunc) ([]Result, error) {
	if err := req.Config.Validate(); err != nil {
		return nil, err
	}
	ports, err := ExpandPorts(req.Ports)
	if err != nil {
		s.countScan("invalid")
		return nil, err
	}
	protocols := NormalizeProtocols(req.Protocols)
	if err := CheckProbeLimit(CountTargets(req.Targets), len(ports), len(protocols), s.maxProbes); err != nil {
		s.countScan("invalid")
		return nil, err
	}
	hosts := ExpandTargets(req.Targets)
	return s.Scan(ctx, hosts, ports, protocols, req.Config, progress)
}

// Scan probes every (host, port, protocol) combination and returns exactly one
// result per dispatched probe, in completion order.
//
// Progress is reported every progress interval and once more on the last
// completion. Canceling ctx stops dispatching; probes already running are
// allowed to finish, their results are returned, and the error is ctx.Err().
func (s *Scanner) Scan(
	ctx context.Context,
	hosts []string,
	ports []int,
	protocols []Protocol,
	cfg Config,
	progress ProgressFunc,
) ([]Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	protocols = NormalizeProtocols(protocols)
	if err := CheckProbeLimit(len(hosts), len(ports), len(protocols), s.maxProbes); err != nil {
		s.countScan("invalid")
		return nil, err
	}
	tasks := buildTasks(hosts, ports, protocols)
	total := len(tasks)
	if total == 0 {
		return []Result{}, nil
	}

	start := time.Now()
	s.logger.Info("Starting scan",
		"hosts", len(hosts),
		"ports", len(ports),
		"protocols", protocolLabel(protocols),
		"probes", total,
		"concurrency", cfg.Concurrency,
		"timeout", cfg.Timeout)
	if s.metrics != nil {
		s.metrics.AddActiveScans(1)
		defer s.metrics.AddActiveScans(-1)
	}

	// Buffered to total so a worker never waits on the collector.
	sink := make(chan Result, total)
	pool := workers.New(workers.Config{Size: min(cfg.Concurrency, total)})
	pool.Start(context.WithoutCancel(ctx))

	var dispatchErr error
	go func() {
		defer func() {
			pool.Close()
			close(sink)
		}()
		for _, task := range tasks {
			job := &probeJob{task: task, prober: s.probers[task.Protocol], timeout: cfg.Timeout, sink: sink, scanner: s}
			if err := pool.Submit(ctx, job); err != nil {
				dispatchErr = err
				return
			}
		}
	}()

	results := make([]Result, 0, total)
	lastReported := 0
	for result := range sink {
		results = append(results, result)
		if s.metrics != nil {
			s.metrics.IncrementProbes(result.Protocol.String(), result.Status.String())
		}
		completed := len(results)
		if progress != nil && (completed%s.progressInterval == 0 || completed == total) {
			progress(completed, total)
			lastReported = completed
		}
	}
	if progress != nil && len(results) > 0 && lastReported != len(results) {
		progress(len(results), total)
	}

	elapsed := time.Since(start)
	if s.metrics != nil {
		s.metrics.RecordScanDuration(protocolLabel(protocols), elapsed)
	}

	if dispatchErr != nil {
		s.countScan("canceled")
		s.logger.Warn("Scan canceled",
			"completed", len(results),
			"probes", total,
			"duration", elapsed)
		return results, dispatchErr
	}

	s.countScan("completed")
	s.logger.Info("Scan completed",
		"probes", total,
		"duration", elapsed)
	return results, nil
}

func (s *Scanner) countScan(outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementScansTotal(outcome)
	}
}

func buildTasks(hosts []string, ports []int, protocols []Protocol) []Task {
	tasks := make([]Task, 0, len(hosts)*len(ports)*len(protocols))
	for _, host := range hosts {
		for _, port := range ports {
			for _, protocol := range protocols {
				tasks = append(tasks, Task{Host: host, Port: port, Protocol: protocol})
			}
		}
	}
	return tasks
}

func protocolLabel(protocols []Protocol) string {
	names := make([]string, len(protocols))
	for i, p := range protocols {
		names[i] = p.String()
	}
	return strings.Join(names, "+")
}

// probeJob runs one task and always delivers exactly one result to sink.
type probeJob struct {
	task    Task
	prober  Prober
	timeout time.Duration
	sink    chan<- Result
	scanner *Scanner
}

func (j *probeJob) ID() string {
	return fmt.Sprintf("%s/%s:%d", j.task.Protocol, j.task.Host, j.task.Port)
}

func (j *probeJob) Type() string {
	return "probe"
}

func (j *probeJob) Execute(ctx context.Context) error {
	result := j.task.result(StatusFiltered)
	defer func() {
		if r := recover(); r != nil {
			result = j.task.result(StatusFiltered)
			j.scanner.logger.Error("Probe panicked",
				"host", j.task.Host,
				"port", j.task.Port,
				"protocol", j.task.Protocol.String(),
				"panic", fmt.Sprint(r))
			if j.scanner.metrics != nil {
				j.scanner.metrics.IncrementProbePanics()
			}
		}
		j.sink <- result
	}()

	if j.prober == nil {
		return nil
	}
	probed := j.prober.Probe(ctx, j.task.Host, j.task.Port, j.timeout)
	if probed.Status.Valid() {
		result.Status = probed.Status
	}
	return nil
}
