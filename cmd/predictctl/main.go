package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"stakeoracle/cmd/internal/passphrase"
)

type secretSource interface {
	Get() (string, error)
}

// app carries the global flags and the resolved configuration shared by every
// command.
type app struct {
	out        io.Writer
	configPath string
	endpoint   string
	address    string
	token      string

	cfg     fileConfig
	secrets secretSource
	client  *http.Client
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out, client: &http.Client{Timeout: 15 * time.Second}}
	root := &cobra.Command{
		Use:           "predictctl",
		Short:         "Operate a loan prediction staking node",
		Long:          "Submit loans, stake on outcomes, withdraw settlements and inspect the ledger of a predictd node.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", defaultConfig, "Path to the predictctl TOML config")
	flags.StringVar(&a.endpoint, "endpoint", "", "predictd base URL (overrides Endpoint)")
	flags.StringVar(&a.address, "as", "", "Caller address (overrides Address)")
	flags.StringVar(&a.token, "token", "", "Bearer token (overrides Token)")

	root.AddCommand(
		a.newSubmitCmd(),
		a.newRetractCmd(),
		a.newVoteCmd(),
		a.newWithdrawCmd(),
		a.newQuoteCmd(),
		a.newLoanCmd(),
		a.newLoansCmd(),
		a.newParamsCmd(),
		a.newApproveCmd(),
		a.newBalanceCmd(),
		a.newSupplyCmd(),
		a.newOracleCmd(),
		a.newEventsCmd(),
		a.newTokenSignCmd(),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := loadConfig(a.configPath, cmd.Flags().Changed("config"))
	if err != nil {
		return err
	}
	if a.endpoint != "" {
		cfg.Endpoint = a.endpoint
	}
	if a.address != "" {
		cfg.Address = a.address
	}
	if a.token != "" {
		cfg.Token = a.token
	}
	a.cfg = cfg
	if a.secrets == nil {
		a.secrets = passphrase.NewSource(cfg.SecretEnv, "predictd signing secret")
	}
	return nil
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
