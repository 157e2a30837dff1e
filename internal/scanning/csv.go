package scanning

import (
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/anstrom/portsweep/internal/errors"
)

// CSVHeader is the header row of exported result files.
var CSVHeader = []string{"Host", "Port", "Protocol", "Status"}

// WriteCSV writes one record per result, sorted by (host, port), after a
// header row. The input slice is not reordered.
func WriteCSV(w io.Writer, results []Result) error {
	sorted := slices.Clone(results)
	SortResults(sorted)

	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, r := range sorted {
		record := []string{r.Host, strconv.Itoa(r.Port), r.Protocol.String(), r.Status.String()}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a file produced by WriteCSV.
func ReadCSV(r io.Reader) ([]Result, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(CSVHeader)

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.NewScanError(errors.CodeParse, "missing CSV header")
	}
	if err != nil {
		return nil, errors.WrapScanError(errors.CodeParse, "failed to read CSV header", err)
	}
	if !slices.Equal(header, CSVHeader) {
		return nil, errors.NewScanError(errors.CodeParse, fmt.Sprintf("unexpected CSV header %v", header))
	}

	var results []Result
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.WrapScanError(errors.CodeParse, fmt.Sprintf("line %d", line), err)
		}
		result, err := parseRecord(record)
		if err != nil {
			return nil, errors.WrapScanError(errors.CodeParse, fmt.Sprintf("line %d", line), err)
		}
		results = append(results, result)
	}
	return results, nil
}

func parseRecord(record []string) (Result, error) {
	port, err := strconv.Atoi(record[1])
	if err != nil || port < MinPort || port > MaxPort {
		return Result{}, fmt.Errorf("invalid port %q", record[1])
	}
	protocol, err := ParseProtocol(record[2])
	if err != nil {
		return Result{}, err
	}
	status, err := ParseStatus(record[3])
	if err != nil {
		return Result{}, err
	}
	return Result{Host: record[0], Port: port, Protocol: protocol, Status: status}, nil
}
