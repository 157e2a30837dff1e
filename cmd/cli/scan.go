package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/anstrom/portsweep/internal/config"
	"github.com/anstrom/portsweep/internal/daemon"
	"github.com/anstrom/portsweep/internal/errors"
	"github.com/anstrom/portsweep/internal/metrics"
	"github.com/anstrom/portsweep/internal/profiles"
	"github.com/anstrom/portsweep/internal/scanning"
)

// scanOptions holds the scan command's flags.
type scanOptions struct {
	ports       string
	tcp         bool
	udp         bool
	commonPorts bool
	top100      bool
	top1000     bool
	profile     string
	timeout     time.Duration
	concurrency int
	output      string
	preview     int
}

// scanPlan is a fully resolved scan.
type scanPlan struct {
	hosts     []string
	ports     []int
	protocols []scanning.Protocol
	config    scanning.Config
	preview   int
	output    string
}

var scanOpts scanOptions

// scanCmd represents the scan command.
var scanCmd = &cobra.Command{
	Use:   "scan TARGET",
	Short: "Scan hosts for reachable TCP and UDP ports",
	Long: `Probe every combination of host, port and protocol and print the
results grouped by status. TARGET is a comma-separated list of addresses,
hostnames and IPv4 CIDR blocks.

TCP probes use a full connect. UDP probes send a protocol-appropriate
payload (DNS, NTP, SNMP or a generic packet); silence is reported as
open|filtered. Press Ctrl-C to stop early and print partial results.`,
	Example: `  portsweep scan 192.168.1.1
  portsweep scan 10.0.0.0/24 -p 22,80,443
  portsweep scan "host-a,host-b" --common-ports --tcp --udp
  portsweep scan 192.168.1.0/28 --profile web -o results.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	flags := scanCmd.Flags()
	flags.StringVarP(&scanOpts.ports, "ports", "p", "", "ports to scan: list, ranges or a named set (default from config, 1-1000)")
	flags.BoolVar(&scanOpts.tcp, "tcp", false, "scan TCP ports")
	flags.BoolVar(&scanOpts.udp, "udp", false, "scan UDP ports")
	flags.BoolVar(&scanOpts.commonPorts, "common-ports", false, "scan the common port set")
	flags.BoolVar(&scanOpts.top100, "top100", false, "scan ports 1-100")
	flags.BoolVar(&scanOpts.top1000, "top1000", false, "scan ports 1-1000")
	flags.StringVar(&scanOpts.profile, "profile", "", "use a scan profile's ports, timeout, concurrency and protocols")
	flags.DurationVarP(&scanOpts.timeout, "timeout", "t", 0, "per-probe timeout (default from config, 3s)")
	flags.IntVarP(&scanOpts.concurrency, "concurrency", "c", 0, "number of concurrent probes (default from config, 100)")
	flags.StringVarP(&scanOpts.output, "output", "o", "", "write results to a CSV file")
	flags.IntVar(&scanOpts.preview, "preview", 0, "closed/filtered rows to print per bucket (default from config, 10)")

	scanCmd.MarkFlagsMutuallyExclusive("ports", "common-ports", "top100", "top1000")
}

func runScan(cmd *cobra.Command, args []string) error {
	profileManager, err := daemon.LoadProfiles(appConfig)
	if err != nil {
		return err
	}
	plan, err := resolveScan(appConfig, profileManager, args[0], scanOpts, cmd.Flags().Changed)
	if err != nil {
		return err
	}

	scanner, err := daemon.NewScanner(appConfig, metrics.GetGlobalMetrics())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stderr := cmd.ErrOrStderr()
	results, err := scanner.Scan(ctx, plan.hosts, plan.ports, plan.protocols, plan.config, progressPrinter(stderr))
	if err != nil {
		if !stderrors.Is(err, context.Canceled) {
			return err
		}
		fmt.Fprintf(stderr, "\nScan interrupted: showing %d partial results\n", len(results))
	}
	fmt.Fprintln(stderr)

	if err := scanning.WriteReport(cmd.OutOrStdout(), scanning.Group(results), plan.preview); err != nil {
		return err
	}

	if plan.output != "" {
		if err := writeCSVFile(plan.output, results); err != nil {
			return err
		}
		fmt.Fprintf(stderr, "Results written to %s\n", plan.output)
	}
	return nil
}

// resolveScan applies, in order: configuration defaults, the profile, then
// explicitly set flags.
func resolveScan(
	cfg *config.Config,
	profileManager *profiles.Manager,
	target string,
	opts scanOptions,
	changed func(string) bool,
) (*scanPlan, error) {
	portSpec := cfg.Scanning.Ports
	scanConfig := cfg.Scanning.ScanConfig()
	protocols, err := cfg.Scanning.ProtocolList()
	if err != nil {
		return nil, err
	}

	if opts.profile != "" {
		profile, err := profileManager.Get(opts.profile)
		if err != nil {
			return nil, err
		}
		portSpec = profile.Ports
		scanConfig = profile.ScanConfig()
		if protocols, err = profile.ProtocolList(); err != nil {
			return nil, err
		}
	}

	switch {
	case opts.commonPorts:
		portSpec = profiles.KeywordCommon
	case opts.top100:
		portSpec = profiles.KeywordTop100
	case opts.top1000:
		portSpec = profiles.KeywordTop1000
	case changed("ports"):
		portSpec = opts.ports
	}

	if opts.tcp || opts.udp {
		protocols = nil
		if opts.tcp {
			protocols = append(protocols, scanning.TCP)
		}
		if opts.udp {
			protocols = append(protocols, scanning.UDP)
		}
	}
	if changed("timeout") {
		scanConfig.Timeout = opts.timeout
	}
	if changed("concurrency") {
		scanConfig.Concurrency = opts.concurrency
	}
	if err := scanConfig.Validate(); err != nil {
		return nil, err
	}

	ports, err := scanning.ExpandPorts(profiles.ResolvePorts(portSpec))
	if err != nil {
		return nil, err
	}
	hostCount := scanning.CountTargets(target)
	if hostCount == 0 {
		return nil, errors.NewScanError(errors.CodeTargetInvalid, fmt.Sprintf("no hosts in target %q", target))
	}
	protocols = scanning.NormalizeProtocols(protocols)
	if err := scanning.CheckProbeLimit(hostCount, len(ports), len(protocols), cfg.Scanning.MaxProbes); err != nil {
		return nil, err
	}
	hosts := scanning.ExpandTargets(target)

	preview := cfg.Scanning.PreviewLimit
	if changed("preview") {
		preview = opts.preview
	}

	return &scanPlan{
		hosts:     hosts,
		ports:     ports,
		protocols: protocols,
		config:    scanConfig,
		preview:   preview,
		output:    strings.TrimSpace(opts.output),
	}, nil
}

func progressPrinter(w io.Writer) scanning.ProgressFunc {
	return func(completed, total int) {
		pct := float64(completed) / float64(total) * 100
		fmt.Fprintf(w, "\rProgress: %d/%d (%.1f%%)", completed, total, pct)
	}
}

func writeCSVFile(path string, results []scanning.Result) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		if closeErr := file.Close(); err == nil {
			err = closeErr
		}
	}()

	sorted := append([]scanning.Result(nil), results...)
	scanning.SortResults(sorted)
	return scanning.WriteCSV(file, sorted)
}
