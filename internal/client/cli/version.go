package cli

import "github.com/spf13/cobra"

func (c *Cli) newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Show version information",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			c.io.Println("chartsync")
			c.io.Printf("Version:    %s\n", c.info.Version)
			c.io.Printf("Build Date: %s\n", c.info.BuildDate)
			c.io.Printf("Git Commit: %s\n", c.info.GitCommit)
			return nil
		},
	}
}
