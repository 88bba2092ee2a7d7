package main

import (
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"stakeoracle/native/prediction"
)

func parseAmount(raw string) (string, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || amount.Sign() <= 0 {
		return "", fmt.Errorf("amount must be a positive integer, got %q", raw)
	}
	return amount.String(), nil
}

func loanPath(raw, suffix string) (string, error) {
	loan, err := normalizeAddress(raw)
	if err != nil {
		return "", err
	}
	return "/v1/loans/" + loan + suffix, nil
}

func (a *app) newSubmitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit <loan>",
		Short: "Submit a pending loan for prediction with the caller as creator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := loanPath(args[0], "/submit")
			if err != nil {
				return err
			}
			raw, err := a.call(cmd.Context(), http.MethodPost, path, nil, true)
			if err != nil {
				return err
			}
			return a.print(raw)
		},
	}
}

func (a *app) newRetractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retract <loan>",
		Short: "Retract a pending loan you created",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := loanPath(args[0], "/retract")
			if err != nil {
				return err
			}
			raw, err := a.call(cmd.Context(), http.MethodPost, path, nil, true)
			if err != nil {
				return err
			}
			return a.print(raw)
		},
	}
}

func (a *app) newVoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vote <loan> <yes|no> <amount>",
		Short: "Stake on whether a pending loan will be repaid",
		Long:  "Stake on whether a pending loan will be repaid. The stake is pulled from your balance through the allowance granted with approve.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := loanPath(args[0], "/votes")
			if err != nil {
				return err
			}
			side, err := prediction.ParseSide(args[1])
			if err != nil {
				return err
			}
			amount, err := parseAmount(args[2])
			if err != nil {
				return err
			}
			body := map[string]string{"side": side.String(), "amount": amount}
			raw, err := a.call(cmd.Context(), http.MethodPost, path, body, true)
			if err != nil {
				return err
			}
			return a.print(raw)
		},
	}
}

func (a *app) newWithdrawCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "withdraw <loan> <amount>",
		Short: "Withdraw stake and collect the settlement for a loan",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := loanPath(args[0], "/withdraw")
			if err != nil {
				return err
			}
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			raw, err := a.call(cmd.Context(), http.MethodPost, path, map[string]string{"amount": amount}, true)
			if err != nil {
				return err
			}
			return a.print(raw)
		},
	}
}

func (a *app) newQuoteCmd() *cobra.Command {
	var staker string
	cmd := &cobra.Command{
		Use:   "quote <loan> <amount>",
		Short: "Preview the settlement a withdrawal would produce",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := loanPath(args[0], "/quote")
			if err != nil {
				return err
			}
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			who := staker
			if who == "" {
				if who, err = a.caller(); err != nil {
					return err
				}
			} else if who, err = normalizeAddress(who); err != nil {
				return err
			}
			query := url.Values{"staker": {who}, "amount": {amount}}
			raw, err := a.call(cmd.Context(), http.MethodGet, path+"?"+query.Encode(), nil, false)
			if err != nil {
				return err
			}
			return a.print(raw)
		},
	}
	cmd.Flags().StringVar(&staker, "staker", "", "Staker to quote for (defaults to the caller)")
	return cmd
}

func (a *app) newLoanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "loan <loan>",
		Short: "Show a loan with its status, totals and resolution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := loanPath(args[0], "")
			if err != nil {
				return err
			}
			raw, err := a.call(cmd.Context(), http.MethodGet, path, nil, false)
			if err != nil {
				return err
			}
			return a.print(raw)
		},
	}
}

func (a *app) newLoansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "loans",
		Short: "List submitted loans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := a.call(cmd.Context(), http.MethodGet, "/v1/loans", nil, false)
			if err != nil {
				return err
			}
			return a.print(raw)
		},
	}
}

func (a *app) newParamsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "params",
		Short: "Inspect or update the redistribution factors",
	}
	get := &cobra.Command{
		Use:   "get",
		Short: "Show the loss and burn factors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := a.call(cmd.Context(), http.MethodGet, "/v1/params", nil, false)
			if err != nil {
				return err
			}
			return a.print(raw)
		},
	}
	var lossBps, burnBps uint32
	set := &cobra.Command{
		Use:   "set",
		Short: "Update the loss and/or burn factor (administrator only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]uint32{}
			if cmd.Flags().Changed("loss-bps") {
				body["lossFactorBps"] = lossBps
			}
			if cmd.Flags().Changed("burn-bps") {
				body["burnFactorBps"] = burnBps
			}
			if len(body) == 0 {
				return errors.New("set at least one of --loss-bps or --burn-bps")
			}
			for name, bps := range body {
				if bps > 10_000 {
					return fmt.Errorf("%s must be between 0 and 10000", name)
				}
			}
			raw, err := a.call(cmd.Context(), http.MethodPut, "/v1/params", body, true)
			if err != nil {
				return err
			}
			return a.print(raw)
		},
	}
	set.Flags().Uint32Var(&lossBps, "loss-bps", 0, "Share of the losing side that winners split, in basis points")
	set.Flags().Uint32Var(&burnBps, "burn-bps", 0, "Share of the redistributed loss that is burned, in basis points")
	cmd.AddCommand(get, set)
	return cmd
}

func (a *app) newApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <amount>",
		Short: "Allow custody to pull up to amount of stake from your balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[0])
			if err != nil {
				return err
			}
			raw, err := a.call(cmd.Context(), http.MethodPost, "/v1/token/approve", map[string]string{"amount": amount}, true)
			if err != nil {
				return err
			}
			return a.print(raw)
		},
	}
}

func (a *app) newBalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance [address]",
		Short: "Show token balances and custody allowances (defaults to the caller)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				addr string
				err  error
			)
			if len(args) == 1 {
				addr, err = normalizeAddress(args[0])
			} else {
				addr, err = a.caller()
			}
			if err != nil {
				return err
			}
			raw, err := a.call(cmd.Context(), http.MethodGet, "/v1/token/balances/"+addr, nil, false)
			if err != nil {
				return err
			}
			return a.print(raw)
		},
	}
}

func (a *app) newSupplyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "supply",
		Short: "Show token supplies and custody holdings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := a.call(cmd.Context(), http.MethodGet, "/v1/token/supply", nil, false)
			if err != nil {
				return err
			}
			return a.print(raw)
		},
	}
}

func (a *app) newOracleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oracle",
		Short: "Control the static loan oracle of a development node",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <loan> <void|pending|running|settled|defaulted>",
		Short: "Set the status the static oracle reports for a loan (administrator only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			loan, err := normalizeAddress(args[0])
			if err != nil {
				return err
			}
			status, err := prediction.ParseLoanStatus(args[1])
			if err != nil {
				return err
			}
			if !status.External() {
				return fmt.Errorf("status %s cannot be reported by an oracle", status)
			}
			raw, err := a.call(cmd.Context(), http.MethodPut, "/v1/oracle/"+loan, map[string]string{"status": status.String()}, true)
			if err != nil {
				return err
			}
			return a.print(raw)
		},
	})
	return cmd
}

func (a *app) newEventsCmd() *cobra.Command {
	var (
		loan  string
		typ   string
		after int64
		limit int
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Query the event journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			if loan != "" {
				addr, err := normalizeAddress(loan)
				if err != nil {
					return err
				}
				query.Set("loan", addr)
			}
			if typ != "" {
				query.Set("type", typ)
			}
			if after > 0 {
				query.Set("after", strconv.FormatInt(after, 10))
			}
			if limit > 0 {
				query.Set("limit", strconv.Itoa(limit))
			}
			path := "/v1/events"
			if encoded := query.Encode(); encoded != "" {
				path += "?" + encoded
			}
			raw, err := a.call(cmd.Context(), http.MethodGet, path, nil, false)
			if err != nil {
				return err
			}
			return a.print(raw)
		},
	}
	cmd.Flags().StringVar(&loan, "loan", "", "Only events for this loan")
	cmd.Flags().StringVar(&typ, "type", "", "Only events of this type")
	cmd.Flags().Int64Var(&after, "after", 0, "Only events after this sequence number")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of events")
	return cmd
}

func (a *app) newTokenSignCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token-sign <address>",
		Short: "Mint a bearer token for an address from the shared signing secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, err := normalizeAddress(args[0])
			if err != nil {
				return err
			}
			if ttl > 0 {
				a.cfg.TokenTTL = ttl.String()
			}
			token, err := a.sign(subject)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.out, token)
			return err
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (defaults to TokenTTL or 5m)")
	return cmd
}
