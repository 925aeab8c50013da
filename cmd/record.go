package cmd

import (
	"github.cicd.cloud.fpdev.io/BD/test-timings/lib"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newRecordCmd(o *options) *cobra.Command {
	var prune bool
	recordCmd := &cobra.Command{
		Use:   "record",
		Short: "Store measured durations from standard input in postgres",
		Long: `Reads "<duration> <identifier>" lines from standard input and stores them
as the timings of --suite. With --prune, timings of identifiers missing from
the input are removed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			suite := o.config.GetString("TIMINGS_SUITE")
			if suite == "" {
				return &lib.ArgumentRangeError{Name: "suite", Reason: "required when recording timings"}
			}
			items, err := lib.ParseTimings(cmd.InOrStdin())
			if err != nil {
				return err
			}
			db, err := openDatabase(cmd, o)
			if err != nil {
				return err
			}
			defer db.Close()
			return RecordTimings(db, suite, items, prune)
		},
	}
	recordCmd.Flags().BoolVar(&prune, "prune", false, "delete stored timings missing from the input")
	return recordCmd
}

// RecordTimings writes items as the timings of suite, skipping rows whose
// duration is unchanged.
func RecordTimings(db *lib.Database, suite string, items []lib.WorkItem, prune bool) error {
	if err := db.EnsureSchema(); err != nil {
		return err
	}
	var changed, unchanged int
	for _, item := range items {
		current, err := db.GetTiming(suite, item.ID)
		if err != nil && err != lib.NoRowFound {
			return err
		}
		if err == nil && current == item.Duration {
			unchanged++
			continue
		}
		if err := db.UpsertTiming(suite, item); err != nil {
			return err
		}
		changed++
		logrus.Debugf("timing of %s has been recorded: %g", item.ID, item.Duration)
	}

	var removed int
	if prune {
		recorded, err := db.GetPaths(suite)
		if err != nil {
			return err
		}
		for _, path := range StalePaths(recorded, items) {
			err := db.DeleteTiming(suite, path)
			if err == lib.NoRowFound {
				continue
			}
			if err != nil {
				return err
			}
			removed++
			logrus.Infof("timing of %s has been removed from database", path)
		}
	}

	logrus.WithFields(logrus.Fields{
		"suite":     suite,
		"changed":   changed,
		"unchanged": unchanged,
		"removed":   removed,
	}).Info("timings recorded")
	return nil
}

// StalePaths returns the recorded paths that are not among items.
func StalePaths(recorded []string, items []lib.WorkItem) []string {
	present := make(map[string]bool, len(items))
	for _, item := range items {
		present[item.ID] = true
	}
	var stale []string
	for _, path := range recorded {
		if path != "" && !present[path] {
			stale = append(stale, path)
		}
	}
	return stale
}
