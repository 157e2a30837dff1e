// Package scanning provides the port reachability engine for portsweep.
//
// It expands target and port specifications, probes every (host, port,
// protocol) combination with a TCP connect or a UDP payload exchange, and
// classifies each probe as open, closed, filtered or open|filtered.
//
// # Overview
//
// The main entry points are Scanner.Run, which accepts raw specification
// strings, and Scanner.Scan, which accepts already expanded hosts and ports.
// Both return exactly one Result per dispatched probe.
//
// # Main Components
//
// ## Expansion
//
//   - ExpandTargets: comma lists, IPv4 CIDR networks (network and broadcast
//     addresses excluded), IP literals and hostnames
//   - ExpandPorts: comma lists of ports and inclusive ranges, sorted and
//     deduplicated; malformed input yields a *ParseError
//
// ## Probing
//
//   - TCPProber: connect scan; refused is closed, timeouts and other
//     failures are filtered
//   - UDPProber: sends a payload from an injected PayloadSource; a reply is
//     open, ICMP port-unreachable is closed, silence is open|filtered
//
// ## Coordination
//
// Scanner dispatches probes to a bounded workers.Pool and collects results
// through a single channel. Progress is reported every 50 completions by
// default and on the final one. Canceling the context stops dispatching;
// running probes finish and their results are still returned.
//
// ## Presentation
//
//   - Group and Report: four status buckets sorted by (host, port)
//   - WriteReport: table output with closed and filtered previews
//   - WriteCSV and ReadCSV: the Host,Port,Protocol,Status export format
//
// # Usage Examples
//
//	scanner := scanning.NewScanner(scanning.WithPayloads(payloads.NewTable()))
//	results, err := scanner.Run(ctx, scanning.Request{
//		Targets:   "192.168.1.0/30,example.com",
//		Ports:     "22,80,443,8000-8010",
//		Protocols: []scanning.Protocol{scanning.TCP, scanning.UDP},
//		Config:    scanning.DefaultConfig(),
//	}, func(done, total int) {
//		fmt.Printf("%d/%d\n", done, total)
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	_ = scanning.WriteReport(os.Stdout, scanning.Group(results), 10)
package scanning
