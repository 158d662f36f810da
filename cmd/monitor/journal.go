package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"threatScope/internal/model"
	"threatScope/internal/storage"
)

func runJournal(cmd *cobra.Command, _ []string) error {
	in, _ := cmd.Flags().GetString("in")
	if in == "" {
		return fmt.Errorf("input journal is required")
	}
	minRaw, _ := cmd.Flags().GetString("min-severity")
	minSeverity, err := model.ParseSeverity(minRaw)
	if err != nil {
		return err
	}
	summaryOnly, _ := cmd.Flags().GetBool("summary")

	entries, err := storage.ReadEvents(in)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	counts := make(map[string]int)
	for _, event := range entries {
		a := event.Alert
		if !a.Severity.AtLeast(minSeverity) {
			continue
		}
		counts[fmt.Sprintf("%s/%s", a.Type, a.Severity)]++
		if summaryOnly {
			continue
		}
		mitigated := ""
		if a.Mitigated {
			mitigated = " mitigated"
		}
		fmt.Fprintf(out, "%s %-8s %-20s block=%d tx=%s conf=%.2f%s\n",
			event.Timestamp.UTC().Format("2006-01-02T15:04:05Z"), a.Severity, a.Type, a.BlockNumber, a.TxHash, a.Confidence, mitigated)
	}

	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(out, "%-32s %d\n", key, counts[key])
	}
	return nil
}
