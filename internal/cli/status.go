package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/warden/internal/config"
	"github.com/Paintersrp/warden/internal/statetable"
	"github.com/Paintersrp/warden/internal/tui"
)

func newStatusCmd(ctx *commandContext) *cobra.Command {
	var apiAddr string
	var watchMode bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the worker state table of a running supervisor",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := apiAddr
			if !cmd.Flags().Changed("api") {
				if doc, err := config.Load(*ctx.manifest); err == nil && doc.API != nil {
					addr = doc.API.Addr
				}
			}

			fetch := func() (map[string]statetable.Record, error) {
				return fetchWorkers(addr)
			}

			if watchMode {
				return tui.Run(cmd.Context(), fetch)
			}

			records, err := fetch()
			if err != nil {
				return err
			}
			printWorkers(cmd, records)
			return nil
		},
	}
	cmd.Flags().StringVar(&apiAddr, "api", "127.0.0.1:7663", "Address of the inspection API")
	cmd.Flags().BoolVar(&watchMode, "watch", false, "Continuously render the state table")
	return cmd
}

func fetchWorkers(addr string) (map[string]statetable.Record, error) {
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/api/v1/workers", addr))
	if err != nil {
		return nil, fmt.Errorf("query inspection API: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inspection API returned %s", resp.Status)
	}
	var records map[string]statetable.Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode worker table: %w", err)
	}
	return records, nil
}

func printWorkers(cmd *cobra.Command, records map[string]statetable.Record) {
	idents := make([]string, 0, len(records))
	for ident := range records {
		idents = append(idents, ident)
	}
	sort.Strings(idents)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WORKER\tPID\tSTATE\tSERVER\tRESTARTS\tUPTIME")
	for _, ident := range idents {
		rec := records[ident]
		uptime := "-"
		if !rec.StartedAt.IsZero() {
			uptime = time.Since(rec.StartedAt).Truncate(time.Second).String()
		}
		server := ""
		if rec.Server {
			server = "yes"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d\t%s\n",
			ident, rec.Pid, rec.State, server, rec.Restarts, uptime)
	}
	_ = w.Flush()
}
