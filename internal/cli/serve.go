package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Paintersrp/warden/internal/api"
	"github.com/Paintersrp/warden/internal/config"
	"github.com/Paintersrp/warden/internal/control"
	"github.com/Paintersrp/warden/internal/events"
	"github.com/Paintersrp/warden/internal/manager"
	"github.com/Paintersrp/warden/internal/proc"
	"github.com/Paintersrp/warden/internal/statetable"
	"github.com/Paintersrp/warden/internal/watch"
	"github.com/Paintersrp/warden/internal/worker"
)

func newServeCmd(ctx *commandContext) *cobra.Command {
	var workerCount int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the server workers and supervise them",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := config.Load(*ctx.manifest)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("workers") {
				doc.Server.Count = workerCount
			}
			if err := doc.Validate(); err != nil {
				return err
			}

			evts := make(chan events.Event, 256)
			stream := events.NewStream(256)
			channel := control.NewChannel()
			table := statetable.NewMemory()

			serverFactory := func(ident string) (worker.Process, error) {
				return proc.New(proc.Config{
					Name:    ident,
					Command: doc.Server.Command,
					Env:     doc.Server.Env,
					Workdir: doc.Server.Workdir,
					Probe:   doc.Server.Probe.Clone(),
					Table:   table,
					Control: channel,
					Events:  evts,
					Server:  true,
				}), nil
			}

			mgr, err := manager.New(manager.Config{
				Count:      doc.Server.Count,
				Serve:      serverFactory,
				Publisher:  channel,
				Subscriber: channel,
				Table:      table,
				Events:     evts,
				RunID:      uuid.NewString(),
			})
			if err != nil {
				return err
			}
			defer mgr.Close()
			mgr.Tune(doc.Supervisor.AckTick.Duration, doc.Supervisor.AckThreshold)

			for _, aux := range doc.Auxiliary {
				spec := aux
				err := mgr.Manage(spec.Name, func(ident string) (worker.Process, error) {
					return proc.New(proc.Config{
						Name:    ident,
						Command: spec.Command,
						Env:     spec.Env,
						Workdir: spec.Workdir,
						Table:   table,
						Events:  evts,
					}), nil
				}, false)
				if err != nil {
					return err
				}
			}

			if doc.Watch != nil {
				watcher, err := watch.New(watch.Config{
					Paths:     doc.Watch.Paths,
					Debounce:  doc.Watch.Debounce.Duration,
					Publisher: channel,
					Events:    evts,
				})
				if err != nil {
					return err
				}
				err = mgr.Manage("Reloader", func(ident string) (worker.Process, error) {
					return worker.NewLocal(ident, watcher.Run), nil
				}, false)
				if err != nil {
					return err
				}
			}

			if doc.API != nil && doc.API.Enabled {
				server, err := api.NewServer(api.Config{
					Addr:      doc.API.Addr,
					Table:     table,
					Publisher: channel,
					Quorum:    mgr.Quorum,
					Stream:    stream,
				})
				if err != nil {
					return err
				}
				go func() {
					if err := server.Run(cmd.Context()); err != nil {
						events.Send(evts, manager.MainIdent, events.TypeError, "api server failed", err)
					}
				}()
				fmt.Fprintf(cmd.OutOrStdout(), "Inspection API listening on %s\n", server.Addr())
			}

			writer := newEventWriter(cmd.OutOrStdout(), cmd.ErrOrStderr(), doc.Logging.Format)
			go func() {
				for evt := range evts {
					writer.Write(evt)
					stream.Publish(evt)
				}
			}()
			defer stream.Close()

			return mgr.Run()
		},
	}
	cmd.Flags().IntVar(&workerCount, "workers", 0, "Override the number of server workers")
	return cmd
}
