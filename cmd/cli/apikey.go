package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/anstrom/portsweep/internal/auth"
)

var (
	apikeyCost  int
	apikeyCheck string
	apikeyHash  string
)

// apikeyCmd generates API keys for the HTTP API.
var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Generate an API key and the hash to configure",
	Long: `Generate a random API key. The key is printed once; add the printed
bcrypt hash to api.api_key_hashes to enable it. With --check and --hash,
verify a key against an existing hash instead.`,
	Example: `  portsweep apikey
  portsweep apikey --check psw_... --hash '$2a$12$...'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if apikeyCheck != "" || apikeyHash != "" {
			return checkAPIKey(cmd.OutOrStdout(), apikeyCheck, apikeyHash)
		}
		generated, err := auth.Generate(apikeyCost)
		if err != nil {
			return err
		}
		writeGeneratedKey(cmd.OutOrStdout(), generated)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(apikeyCmd)

	apikeyCmd.Flags().IntVar(&apikeyCost, "cost", auth.DefaultCost, "bcrypt cost")
	apikeyCmd.Flags().StringVar(&apikeyCheck, "check", "", "key to verify")
	apikeyCmd.Flags().StringVar(&apikeyHash, "hash", "", "hash to verify the key against")
	apikeyCmd.MarkFlagsRequiredTogether("check", "hash")
}

func writeGeneratedKey(w io.Writer, generated *auth.GeneratedKey) {
	fmt.Fprintf(w, "API key:  %s\n", generated.Key)
	fmt.Fprintf(w, "Hash:     %s\n", generated.Hash)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Store the key now; it cannot be recovered. Add the hash to your configuration:")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "api:")
	fmt.Fprintln(w, "  api_key_hashes:")
	fmt.Fprintf(w, "    - %q\n", generated.Hash)
}

func checkAPIKey(w io.Writer, key, hash string) error {
	if !auth.Validate(key, hash) {
		return fmt.Errorf("key %s does not match the hash", auth.DisplayPrefix(key))
	}
	fmt.Fprintf(w, "Key %s matches\n", auth.DisplayPrefix(key))
	return nil
}
