package serve

import (
	"fmt"
	"os"

	"github.com/soratane/chardex-go/internal/conf"
	"github.com/soratane/chardex-go/internal/engine"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Command creates the serve subcommand running the companion site API.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the character media API server",
		Long:  "Start the HTTP API that serves aggregated character media to the companion site.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return engine.Serve(settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the serve command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.Server.Host, "host", viper.GetString("server.host"), "Address to listen on")
	cmd.Flags().IntVar(&settings.Server.Port, "port", viper.GetInt("server.port"), "Port to listen on")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
