package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/monero-ecosystem/monerohealth/internal/health"
)

// unhealthyError is returned when the reported status is not OK so that the
// process exits non-zero.
type unhealthyError struct {
	what   string
	status health.Status
}

func (e *unhealthyError) Error() string {
	return fmt.Sprintf("%s status is '%s'", e.what, e.status)
}

func verdict(what string, status health.Status) error {
	if status == health.StatusOK {
		return nil
	}
	return &unhealthyError{what: what, status: status}
}

// healthChecker is the part of *health.Checker the commands use.
type healthChecker interface {
	LastBlock(ctx context.Context, ep health.Endpoint, offset health.Offset) health.LastBlockResult
	RPCStatus(ctx context.Context, ep health.Endpoint) health.RPCResult
	P2PStatus(ctx context.Context, host string, port int) health.P2PResult
	Daemon(ctx context.Context, req health.Request) health.DaemonResult
	Combined(ctx context.Context, req health.Request) health.CombinedResult
}

func checkCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run the combined check once and exit non-zero unless it is OK",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return executeCheck(cmd.Context(), cmd.OutOrStdout(), a.checker(), a.cfg.Request(), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

func executeCheck(ctx context.Context, out io.Writer, c healthChecker, req health.Request, asJSON bool) error {
	res := c.Combined(ctx, req)
	if asJSON {
		if err := writeJSON(out, res); err != nil {
			return err
		}
	} else if err := writeTable(out, res); err != nil {
		return err
	}
	return verdict("combined", res.Status)
}

// singleCmds returns one command per individual check. Each prints its result
// as JSON.
func singleCmds(a *app) []*cobra.Command {
	single := func(use, short string, run func(ctx context.Context, c healthChecker, req health.Request) (health.Status, any)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			RunE: func(cmd *cobra.Command, _ []string) error {
				status, res := run(cmd.Context(), a.checker(), a.cfg.Request())
				if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
				return verdict(use, status)
			},
		}
	}
	return []*cobra.Command{
		single("last-block", "Check the age of the daemon's last block",
			func(ctx context.Context, c healthChecker, req health.Request) (health.Status, any) {
				res := c.LastBlock(ctx, req.RPCEndpoint(), req.Offset)
				return res.Status, res
			}),
		single("rpc", "Check the status reported by the daemon's RPC interface",
			func(ctx context.Context, c healthChecker, req health.Request) (health.Status, any) {
				res := c.RPCStatus(ctx, req.RPCEndpoint())
				return res.Status, res
			}),
		single("p2p", "Check that the daemon's P2P port accepts connections",
			func(ctx context.Context, c healthChecker, req health.Request) (health.Status, any) {
				res := c.P2PStatus(ctx, req.Host, req.P2PPort)
				return res.Status, res
			}),
		single("daemon", "Check the daemon's RPC and P2P status",
			func(ctx context.Context, c healthChecker, req health.Request) (health.Status, any) {
				res := c.Daemon(ctx, req)
				return res.Status, res
			}),
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	return nil
}

func writeTable(out io.Writer, res health.CombinedResult) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHECK\tSTATUS\tHOST\tDETAIL")

	lb := res.LastBlock
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", health.LastBlockKey, lb.Status, lb.Host,
		detail(lb.Error, fmt.Sprintf("age %s, hash %s", lb.BlockAge, lb.Hash)))

	rpc := res.Daemon.RPC
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", health.RPCKey, rpc.Status, rpc.Host,
		detail(rpc.Error, fmt.Sprintf("version %d", rpc.Version)))

	p2p := res.Daemon.P2P
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", health.P2PKey, p2p.Status, p2p.Host, detail(p2p.Error, "reachable"))

	fmt.Fprintf(w, "%s\t%s\t%s\t\n", health.DaemonKey, res.Daemon.Status, res.Daemon.Host)
	fmt.Fprintf(w, "combined\t%s\t%s\t\n", res.Status, res.Host)
	return w.Flush()
}

func detail(e *health.ErrorInfo, ok string) string {
	if e == nil {
		return ok
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Error)
}
