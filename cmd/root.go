package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.cicd.cloud.fpdev.io/BD/test-timings/lib"
	errorWrapper "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/crypto/ssh/terminal"
)

const (
	SourceStdin    = "stdin"
	SourcePostgres = "postgres"
)

// newDatabase is replaced in tests.
var newDatabase = lib.NewDatabase

type options struct {
	cfgFile     string
	verbose     bool
	askPassword bool
	config      *viper.Viper
}

// NewRootCmd builds the command that prints one chunk of the partitioned timings.
func NewRootCmd() *cobra.Command {
	o := &options{config: viper.New()}
	rootCmd := &cobra.Command{
		Use:   "test-timings <chunk> <max-chunks>",
		Short: "Split tests into chunks of near-equal duration",
		Long: `Reads "<duration> <identifier>" lines from standard input, distributes
the identifiers over <max-chunks> chunks so that every chunk takes about the
same time and prints the identifiers of chunk <chunk> (1-based), one per line.

Tests without a measured duration are charged --zero-duration seconds.`,
		Args:          chunkArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd, o)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSplit(cmd, args, o)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&o.cfgFile, "config", "", "config file (config.yml)")
	pf.BoolVarP(&o.verbose, "verbose", "v", false, "enable debug logging")
	pf.BoolVar(&o.askPassword, "ask-password", false, "prompt for the database password")
	pf.String("suite", "", "suite name of the timings stored in postgres")

	f := rootCmd.Flags()
	f.String("source", SourceStdin, "where timings are read from: stdin or postgres")
	f.Float64("zero-duration", lib.DefaultZeroDuration, "duration charged for tests without a measurement")
	f.String("order", string(lib.OrderIdentifier), "assignment order: identifier or duration")
	f.Bool("totals", false, "log the total duration of every chunk")

	bindFlag(o.config, "TIMINGS_SUITE", pf.Lookup("suite"))
	bindFlag(o.config, "TIMINGS_SOURCE", f.Lookup("source"))
	bindFlag(o.config, "TIMINGS_ZERO_DURATION", f.Lookup("zero-duration"))
	bindFlag(o.config, "TIMINGS_ORDER", f.Lookup("order"))
	bindFlag(o.config, "TIMINGS_TOTALS", f.Lookup("totals"))

	rootCmd.AddCommand(newRecordCmd(o))
	return rootCmd
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}

func bindFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		logrus.Fatal(err)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig(cmd *cobra.Command, o *options) error {
	logrus.SetOutput(cmd.ErrOrStderr())
	if o.verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	v := o.config
	v.SetDefault("POSTGRES_HOST", "")
	v.SetDefault("POSTGRES_PORT", 5432)
	v.SetDefault("POSTGRES_USER_NAME", "")
	v.SetDefault("POSTGRES_DATABASE_NAME", "")
	v.SetDefault("POSTGRES_DATABASE_PASSWORD", "")
	v.SetDefault("POSTGRES_SSL_MODE", "")

	v.AutomaticEnv() // read in environment variables that match

	if o.cfgFile != "" {
		// Use config file from the flag.
		v.SetConfigFile(o.cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return errorWrapper.Wrap(err, "failed in reading config file "+o.cfgFile)
		}
		logrus.Debugf("using config file %s", v.ConfigFileUsed())
	}
	return nil
}

func chunkArgs(cmd *cobra.Command, args []string) error {
	if len(args) != 2 {
		return &lib.ArgumentRangeError{
			Name:   "chunk, max-chunks",
			Reason: fmt.Sprintf("expected 2 arguments, got %d", len(args)),
		}
	}
	_, _, err := parseChunkArgs(args)
	return err
}

// parseChunkArgs returns the 1-based chunk and the chunk count.
func parseChunkArgs(args []string) (int, int, error) {
	chunk, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, 0, &lib.ArgumentRangeError{Name: "chunk", Value: args[0], Reason: "not a number"}
	}
	maxChunks, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, 0, &lib.ArgumentRangeError{Name: "max-chunks", Value: args[1], Reason: "not a number"}
	}
	if maxChunks <= 0 {
		return 0, 0, &lib.ArgumentRangeError{Name: "max-chunks", Value: args[1], Reason: "must be at least 1"}
	}
	if chunk < 1 || chunk > maxChunks {
		return 0, 0, &lib.ArgumentRangeError{
			Name:   "chunk",
			Value:  args[0],
			Reason: "must be between 1 and " + args[1],
		}
	}
	return chunk, maxChunks, nil
}

func runSplit(cmd *cobra.Command, args []string, o *options) error {
	chunk, maxChunks, err := parseChunkArgs(args)
	if err != nil {
		return err
	}
	order, err := lib.ParseOrder(o.config.GetString("TIMINGS_ORDER"))
	if err != nil {
		return err
	}
	items, err := loadTimings(cmd, o)
	if err != nil {
		return err
	}

	buckets, err := lib.Partition(items, maxChunks, lib.PartitionOptions{
		ZeroDuration: o.config.GetFloat64("TIMINGS_ZERO_DURATION"),
		Order:        order,
	})
	if err != nil {
		return err
	}
	if o.config.GetBool("TIMINGS_TOTALS") {
		logTotals(buckets)
	}

	bucket, err := buckets.Bucket(chunk)
	if err != nil {
		return err
	}
	return printBucket(cmd.OutOrStdout(), bucket)
}

func loadTimings(cmd *cobra.Command, o *options) ([]lib.WorkItem, error) {
	source := strings.ToLower(o.config.GetString("TIMINGS_SOURCE"))
	switch source {
	case "", SourceStdin:
		return lib.ParseTimings(cmd.InOrStdin())
	case SourcePostgres:
		suite := o.config.GetString("TIMINGS_SUITE")
		if suite == "" {
			return nil, &lib.ArgumentRangeError{Name: "suite", Reason: "required when reading timings from postgres"}
		}
		db, err := openDatabase(cmd, o)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		return db.GetTimings(suite)
	}
	return nil, errorWrapper.Wrap(lib.ErrUnknownSource, source)
}

func openDatabase(cmd *cobra.Command, o *options) (*lib.Database, error) {
	v := o.config
	cfg := lib.DatabaseConfig{
		Host:     v.GetString("POSTGRES_HOST"),
		Port:     v.GetInt("POSTGRES_PORT"),
		User:     v.GetString("POSTGRES_USER_NAME"),
		Name:     v.GetString("POSTGRES_DATABASE_NAME"),
		Password: v.GetString("POSTGRES_DATABASE_PASSWORD"),
		SSLMode:  v.GetString("POSTGRES_SSL_MODE"),
	}
	if o.askPassword && cfg.Password == "" {
		password, err := readPassword(cfg.User)
		if err != nil {
			return nil, err
		}
		cfg.Password = password
	}
	db, err := newDatabase(cfg)
	if err != nil {
		return nil, err
	}
	if _, err := db.Ping(); err != nil {
		db.Close()
		return nil, errorWrapper.Wrap(err, "failed in connecting with database "+cfg.Host)
	}
	return db, nil
}

// openTTY opens the controlling terminal. Standard input may carry the timings,
// so the password prompt never reads from it.
var openTTY = func() (*os.File, error) {
	return os.OpenFile("/dev/tty", os.O_RDWR, 0)
}

func readPassword(user string) (string, error) {
	tty, err := openTTY()
	if err != nil {
		return "", errorWrapper.Wrap(err, "cannot prompt for password: no controlling terminal")
	}
	defer tty.Close()
	fd := int(tty.Fd())
	if !terminal.IsTerminal(fd) {
		return "", errorWrapper.New("cannot prompt for password: " + tty.Name() + " is not a terminal")
	}
	fmt.Fprintf(tty, "Enter database password for '%s' and press Enter: ", user)
	bytePassword, err := terminal.ReadPassword(fd)
	fmt.Fprintln(tty) // do not remove it
	if err != nil {
		return "", errorWrapper.Wrap(err, "failed in reading password from console")
	}
	password := strings.TrimSpace(string(bytePassword))
	if len(password) == 0 {
		return "", errorWrapper.New("please enter a valid password")
	}
	return password, nil
}

func logTotals(buckets *lib.Buckets) {
	for i, b := range buckets.All() {
		logrus.WithFields(logrus.Fields{
			"chunk": i + 1,
			"tests": len(b.IDs),
			"total": b.Total,
		}).Info("chunk total")
	}
	logrus.WithFields(logrus.Fields{
		"total":    buckets.Total(),
		"makespan": buckets.Makespan(),
	}).Info("partition summary")
}

func printBucket(w io.Writer, bucket *lib.Bucket) error {
	for _, id := range bucket.IDs {
		if _, err := fmt.Fprintln(w, id); err != nil {
			return errorWrapper.Wrap(err, "failed in writing chunk")
		}
	}
	return nil
}
