package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/anstrom/portsweep/internal/daemon"
	"github.com/anstrom/portsweep/internal/profiles"
	"github.com/anstrom/portsweep/internal/scanning"
)

const maxPortsDisplayLen = 40

// profilesCmd lists scan profiles or shows one.
var profilesCmd = &cobra.Command{
	Use:   "profiles [NAME]",
	Short: "List scan profiles or show one in detail",
	Long: `Without arguments, list the built-in profiles together with any loaded
from scanning.profiles_file. With a NAME, show that profile's settings and
the ports it expands to.`,
	Example: `  portsweep profiles
  portsweep profiles web`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProfiles,
}

func init() {
	rootCmd.AddCommand(profilesCmd)
}

func runProfiles(cmd *cobra.Command, args []string) error {
	manager, err := daemon.LoadProfiles(appConfig)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return writeProfileTable(cmd.OutOrStdout(), manager.List())
	}

	profile, err := manager.Get(args[0])
	if err != nil {
		return err
	}
	return writeProfileDetail(cmd.OutOrStdout(), profile)
}

func writeProfileTable(w io.Writer, list []*profiles.Profile) error {
	table := tablewriter.NewWriter(w)
	table.Header("Name", "Ports", "Protocols", "Timeout", "Concurrency", "Description")
	for _, p := range list {
		ports := p.Ports
		if len(ports) > maxPortsDisplayLen {
			ports = ports[:maxPortsDisplayLen-3] + "..."
		}
		if err := table.Append([]string{
			p.Name,
			ports,
			strings.Join(p.Protocols, ","),
			p.Timeout.String(),
			strconv.Itoa(p.Concurrency),
			p.Description,
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

func writeProfileDetail(w io.Writer, p *profiles.Profile) error {
	ports, err := scanning.ExpandPorts(profiles.ResolvePorts(p.Ports))
	if err != nil {
		return err
	}
	source := "custom"
	if p.BuiltIn {
		source = "built-in"
	}
	_, err = fmt.Fprintf(w, `Profile:      %s (%s)
Description:  %s
Ports:        %s (%d ports)
Protocols:    %s
Timeout:      %s
Concurrency:  %d
`, p.Name, source, p.Description, p.Ports, len(ports), strings.Join(p.Protocols, ","), p.Timeout, p.Concurrency)
	return err
}
