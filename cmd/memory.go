package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dexterhq/dexter/internal/memory"
)

func memoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect and manage long-term memory",
	}
	cmd.AddCommand(memorySearchCmd(), memorySyncCmd(), memoryClearCmd())
	return cmd
}

func openMemory() (*memory.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return memory.NewStore(cfg.MemoryDir()), nil
}

func memorySearchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <terms...>",
		Short: "Search memory by keywords",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openMemory()
			if err != nil {
				return err
			}
			results := store.Search(strings.Join(args, " "), limit)
			if len(results) == 0 {
				fmt.Println("No matching memories.")
				return nil
			}
			for _, r := range results {
				fmt.Printf("%s  score=%.2f  tags=%s\n  %s\n", r.Entry.ID, r.Score, strings.Join(r.Entry.Tags, ","), r.Snippet)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "maximum results")
	return cmd
}

func memorySyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Index markdown files from the memory files/ directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openMemory()
			if err != nil {
				return err
			}
			n, err := store.SyncFromFiles()
			if err != nil {
				return err
			}
			fmt.Printf("Synced %d file(s)\n", n)
			return nil
		},
	}
}

func memoryClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all memory entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openMemory()
			if err != nil {
				return err
			}
			if err := store.Clear(); err != nil {
				return err
			}
			fmt.Println("Memory cleared.")
			return nil
		},
	}
}
