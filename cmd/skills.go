package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dexterhq/dexter/internal/skills"
)

func skillsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skills",
		Short: "Inspect available skills",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List discovered skills and where they come from",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			registry := skills.NewRegistry(cfg.SkillsDir())
			metas := registry.Discover()
			if len(metas) == 0 {
				fmt.Println("No skills found.")
				return nil
			}
			for _, m := range metas {
				fmt.Printf("%-24s %-8s %s\n", m.Name, m.Source, m.Description)
			}
			return nil
		},
	})
	return cmd
}
