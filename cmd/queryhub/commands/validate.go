package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/queryhub/queryhub/pkg/config"
)

func newValidateCommand() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration directory",
		Long: `Validate the configuration directory without executing anything.

This command checks:
  - YAML syntax of providers.yaml, credentials.yaml and reports/
  - required fields and retry policy bounds
  - cross-references (component provider ids, provider credential ids)
  - duplicate ids

With --watch the command keeps running and revalidates whenever a
configuration file changes, until interrupted.`,
		Example: `  # Validate configs in ./config
  queryhub validate -c ./config

  # Revalidate on every change
  queryhub validate -c ./config --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Info().Str("dir", configDir).Msg("validating configuration")

			loader := config.NewLoader(configDir).WithLogger(log.Logger)
			settings, err := loader.Load(cmd.Context())
			if err != nil {
				return err
			}
			printSettings(settings)

			if !watch {
				return nil
			}

			err = loader.Watch(cmd.Context(), func(reloaded *config.Settings) error {
				printSettings(reloaded)
				return nil
			})
			if err != nil {
				return err
			}
			<-cmd.Context().Done()
			return nil
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "keep running and revalidate on configuration changes")

	return cmd
}

func printSettings(settings *config.Settings) {
	for _, id := range settings.ReportIDs() {
		report, _ := settings.Report(id)
		fmt.Printf("report %-24s components=%d\n", id, len(report.Components))
	}
	fmt.Println("configuration is valid")
}
