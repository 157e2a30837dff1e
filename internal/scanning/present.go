package scanning

import (
	"cmp"
	"fmt"
	"io"
	"net/netip"
	"slices"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// DefaultPreviewLimit is how many closed and filtered results a report shows.
const DefaultPreviewLimit = 10

// Report partitions results by status. Each bucket is sorted by (host, port).
type Report struct {
	Open         []Result `json:"open"`
	OpenFiltered []Result `json:"open_filtered"`
	Closed       []Result `json:"closed"`
	Filtered     []Result `json:"filtered"`
}

// Group partitions results into a Report. The input is not modified.
func Group(results []Result) Report {
	var r Report
	for _, res := range results {
		switch res.Status {
		case StatusOpen:
			r.Open = append(r.Open, res)
		case StatusOpenFiltered:
			r.OpenFiltered = append(r.OpenFiltered, res)
		case StatusClosed:
			r.Closed = append(r.Closed, res)
		default:
			r.Filtered = append(r.Filtered, res)
		}
	}
	SortResults(r.Open)
	SortResults(r.OpenFiltered)
	SortResults(r.Closed)
	SortResults(r.Filtered)
	return r
}

// Bucket returns the results with the given status.
func (r Report) Bucket(status Status) []Result {
	switch status {
	case StatusOpen:
		return r.Open
	case StatusOpenFiltered:
		return r.OpenFiltered
	case StatusClosed:
		return r.Closed
	case StatusFiltered:
		return r.Filtered
	default:
		return nil
	}
}

// Total returns the number of results across all buckets.
func (r Report) Total() int {
	return len(r.Open) + len(r.OpenFiltered) + len(r.Closed) + len(r.Filtered)
}

// SortResults orders results in place by host, then port, then protocol.
// IP addresses compare numerically and sort before hostnames.
func SortResults(results []Result) {
	slices.SortFunc(results, compareResults)
}

func compareResults(a, b Result) int {
	if c := compareHosts(a.Host, b.Host); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Port, b.Port); c != 0 {
		return c
	}
	return cmp.Compare(a.Protocol, b.Protocol)
}

func compareHosts(a, b string) int {
	if a == b {
		return 0
	}
	addrA, errA := netip.ParseAddr(a)
	addrB, errB := netip.ParseAddr(b)
	switch {
	case errA == nil && errB == nil:
		return addrA.Compare(addrB)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

// Summary counts results by status and host.
type Summary struct {
	Total        int `json:"total"`
	Open         int `json:"open"`
	OpenFiltered int `json:"open_filtered"`
	Closed       int `json:"closed"`
	Filtered     int `json:"filtered"`
	HostsScanned int `json:"hosts_scanned"`
	HostsActive  int `json:"hosts_active"`
}

// Summarize computes a Summary. A host is active when it has an open port.
func Summarize(results []Result) Summary {
	s := Summary{Total: len(results)}
	hosts := make(map[string]bool)
	for _, r := range results {
		switch r.Status {
		case StatusOpen:
			s.Open++
			hosts[r.Host] = true
		case StatusOpenFiltered:
			s.OpenFiltered++
		case StatusClosed:
			s.Closed++
		default:
			s.Filtered++
		}
		if _, seen := hosts[r.Host]; !seen {
			hosts[r.Host] = false
		}
	}
	s.HostsScanned = len(hosts)
	for _, active := range hosts {
		if active {
			s.HostsActive++
		}
	}
	return s
}

var bucketTitles = map[Status]string{
	StatusOpen:         "Open ports",
	StatusOpenFiltered: "Open|filtered ports",
	StatusClosed:       "Closed ports",
	StatusFiltered:     "Filtered ports",
}

// WriteReport renders a human-readable report. Open and open|filtered
// buckets are printed in full; closed and filtered buckets show at most
// previewLimit rows followed by a "+K more" line.
func WriteReport(w io.Writer, report Report, previewLimit int) error {
	if previewLimit <= 0 {
		previewLimit = DefaultPreviewLimit
	}

	_, err := fmt.Fprintf(w, "Scan results: %d open, %d open|filtered, %d closed, %d filtered (%d probes)\n",
		len(report.Open), len(report.OpenFiltered), len(report.Closed), len(report.Filtered), report.Total())
	if err != nil {
		return err
	}

	for _, status := range Statuses() {
		bucket := report.Bucket(status)
		if len(bucket) == 0 {
			continue
		}

		shown := bucket
		truncated := status == StatusClosed || status == StatusFiltered
		if truncated && len(shown) > previewLimit {
			shown = shown[:previewLimit]
		}

		if _, err := fmt.Fprintf(w, "\n%s (%d):\n", bucketTitles[status], len(bucket)); err != nil {
			return err
		}
		if err := writeTable(w, shown); err != nil {
			return err
		}
		if more := len(bucket) - len(shown); more > 0 {
			if _, err := fmt.Fprintf(w, "  +%d more\n", more); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeTable(w io.Writer, results []Result) error {
	table := tablewriter.NewWriter(w)
	table.Header("Host", "Port", "Protocol", "Status")
	for _, r := range results {
		if err := table.Append([]string{r.Host, strconv.Itoa(r.Port), r.Protocol.String(), r.Status.String()}); err != nil {
			return err
		}
	}
	return table.Render()
}
