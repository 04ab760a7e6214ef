package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/wbrown/janus-kvindex/kvindex/annotations"
	"github.com/wbrown/janus-kvindex/kvindex/index"
	"github.com/wbrown/janus-kvindex/kvindex/storage"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DBPath    string
	Engine    string // "badger" | "pebble"
	IndexFile string
	Verbose   bool
	Format    string // "text" | "json"
}

// Valid flag values
var (
	ValidEngines = []string{"badger", "pebble"}
	ValidFormats = []string{"text", "json"}
)

// NewRootCommand creates the root command of the kvindex CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "kvindex",
		Short: "Secondary indexes over a key/value store",
		Long: `Store JSON objects under <prefix>_<name> keys and keep secondary index
records for their fields, then query those indexes with typed comparisons.

Index definitions are read from a YAML file given with --indexes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !contains(ValidEngines, opts.Engine) {
				return fmt.Errorf("invalid engine %q: must be one of %v", opts.Engine, ValidEngines)
			}
			if !contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "kvindex.db", "database path")
	cmd.PersistentFlags().StringVar(&opts.Engine, "engine", "badger", "storage engine (badger|pebble)")
	cmd.PersistentFlags().StringVar(&opts.IndexFile, "indexes", "", "YAML file with index definitions")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "print index maintenance events")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")

	cmd.AddCommand(NewPutCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewRepairCommand(opts))
	cmd.AddCommand(NewIndexesCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))

	return cmd
}

// session is an open store plus the client layered on it
type session struct {
	store  storage.Store
	client *index.Client
}

func (s *session) Close() error {
	return s.store.Close()
}

// openSession opens the configured store and registers the index
// definitions. Annotation events go to errOut in verbose mode.
func openSession(opts *RootOptions, errOut io.Writer) (*session, error) {
	var store storage.Store
	var err error
	switch opts.Engine {
	case "pebble":
		store, err = storage.NewPebbleStore(opts.DBPath)
	default:
		store, err = storage.NewBadgerStore(opts.DBPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	clientOpts := index.DefaultOptions()
	if opts.Verbose {
		clientOpts.Handler = annotations.NewOutputFormatter(errOut).Handle
	}
	client := index.NewClientWithOptions(store, clientOpts)

	if opts.IndexFile != "" {
		defs, err := index.LoadDefinitionsFile(opts.IndexFile)
		if err == nil {
			err = client.AddIndexes(defs)
		}
		if err != nil {
			store.Close()
			return nil, err
		}
	}

	return &session{store: store, client: client}, nil
}

// withSession runs fn against an open session and closes it afterwards
func withSession(opts *RootOptions, cmd *cobra.Command, fn func(s *session) error) error {
	s, err := openSession(opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
