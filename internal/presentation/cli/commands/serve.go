package commands

import (
	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/invsync/internal/presentation/api"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve status, sync, history and checkpoint operations over HTTP.

Routes:
  GET    /status?kinds=laptop,person
  POST   /sync                      {"entities": ["laptop"]}
  GET    /history
  GET    /checkpoints
  POST   /checkpoints
  POST   /checkpoints/{id}/restore
  DELETE /checkpoints/{id}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := mustApp()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = app.Config.Server.Addr
			}

			srv, err := api.NewServer(app.Container.Engine(), app.Container.CheckpointManager(), app.Container.Logger())
			if err != nil {
				return err
			}
			app.Formatter.Info("listening on http://%s", addr)
			return srv.ListenAndServe(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: server.addr)")

	return cmd
}
