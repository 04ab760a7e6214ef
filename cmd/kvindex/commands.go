package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/wbrown/janus-kvindex/kvindex"
	"github.com/wbrown/janus-kvindex/kvindex/index"
	"github.com/wbrown/janus-kvindex/kvindex/storage"
)

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "put <bucket> <key> <json>",
		Short: "Store a JSON object and update its indexes",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := parseObject(args[2])
			if err != nil {
				return err
			}
			return withSession(rootOpts, cmd, func(s *session) error {
				_, err := s.client.Bucket(args[0]).New(args[1], data).Store(cmd.Context())
				if err != nil && !errors.Is(err, index.ErrIndexDrift) && !errors.Is(err, index.ErrUnindexableKey) {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "stored %s/%s\n", args[0], args[1])
				return err
			})
		},
	}
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <bucket> <key>",
		Short: "Print a stored object",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				obj, err := s.client.Bucket(args[0]).Get(cmd.Context(), args[1])
				if err != nil {
					return err
				}
				if !obj.Exists() {
					return fmt.Errorf("%w: %s/%s", storage.ErrNotFound, args[0], args[1])
				}
				return writeJSON(cmd.OutOrStdout(), obj.Data())
			})
		},
	}
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <bucket> <key>",
		Short: "Delete an object and its index records",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				obj, err := s.client.Bucket(args[0]).Get(cmd.Context(), args[1])
				if err != nil {
					return err
				}
				err = obj.Delete(cmd.Context())
				if err != nil && !errors.Is(err, index.ErrIndexDrift) {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s/%s\n", args[0], args[1])
				return err
			})
		},
	}
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "query <bucket> <prefix> <field> <op> <value> [value...]",
		Short: "Query an index",
		Long: `Query a registered index with a comparison operator.

Operators are the store's key filter predicates: eq, neq, less_than,
less_than_eq, greater_than, greater_than_eq, starts_with, ends_with,
matches, similar_to, between (two values) and set_member (one or more).`,
		Example: `  kvindex --indexes indexes.yaml query orders order total less_than 100
  kvindex --indexes indexes.yaml query orders order status set_member open held`,
		Args: cobra.MinimumNArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				def, ok := s.client.Index(args[0], args[1], args[2])
				if !ok {
					return fmt.Errorf("no index on %s %s_* field %s (see --indexes)", args[0], args[1], args[2])
				}
				value, err := parseOperand(def.FieldType(), args[3], args[4:])
				if err != nil {
					return err
				}

				matches, err := def.QueryDefault(cmd.Context(), args[3], value)
				if err != nil {
					return err
				}
				sort.Slice(matches, func(i, j int) bool { return matches[i].Key < matches[j].Key })

				if rootOpts.Format == "json" {
					return writeJSON(cmd.OutOrStdout(), matches)
				}
				rows := make([][]string, len(matches))
				for i, m := range matches {
					rows[i] = []string{m.Bucket, m.Key, formatValue(m.Value)}
				}
				return renderTable(cmd.OutOrStdout(), []string{"bucket", "key", "value"}, rows)
			})
		},
	}
}

// NewRepairCommand creates the repair command.
func NewRepairCommand(rootOpts *RootOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "repair [<bucket> <prefix> <field>]",
		Short: "Reconcile index records with their objects",
		Long: `Rebuild index records from the stored objects: missing records are
written and stale ones removed. Without arguments every registered index
is repaired.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 3 {
				return fmt.Errorf("accepts 0 or 3 arg(s), received %d", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				defs := s.client.Registry().Definitions()
				if len(args) == 3 {
					def, ok := s.client.Index(args[0], args[1], args[2])
					if !ok {
						return fmt.Errorf("no index on %s %s_* field %s (see --indexes)", args[0], args[1], args[2])
					}
					defs = []*index.Definition{def}
				}

				var reports []index.RepairReport
				for _, def := range defs {
					report, err := s.client.Repair(cmd.Context(), def, dryRun)
					if err != nil {
						return err
					}
					reports = append(reports, report)
				}

				if rootOpts.Format == "json" {
					return writeJSON(cmd.OutOrStdout(), reports)
				}
				rows := make([][]string, len(reports))
				for i, r := range reports {
					rows[i] = []string{
						r.Index,
						strconv.Itoa(r.Scanned),
						strconv.Itoa(r.Expected),
						strconv.Itoa(r.Existing),
						strconv.Itoa(len(r.Created)),
						strconv.Itoa(len(r.Removed)),
					}
				}
				return renderTable(cmd.OutOrStdout(),
					[]string{"index", "scanned", "expected", "existing", "created", "removed"}, rows)
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report changes without making them")
	return cmd
}

// NewIndexesCommand creates the indexes command.
func NewIndexesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "indexes",
		Short: "List registered index definitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				defs := s.client.Registry().Definitions()
				if rootOpts.Format == "json" {
					out := make([]index.DefinitionConfig, len(defs))
					for i, d := range defs {
						out[i] = index.DefinitionConfig{
							Bucket: d.Bucket(),
							Prefix: d.Prefix(),
							Field:  d.Field(),
							Type:   d.FieldType().String(),
						}
					}
					return writeJSON(cmd.OutOrStdout(), out)
				}

				rows := make([][]string, len(defs))
				for i, d := range defs {
					rows[i] = []string{d.IndexBucket(), d.Bucket(), d.Prefix(), d.Field(), d.FieldType().String()}
				}
				return renderTable(cmd.OutOrStdout(), []string{"index", "bucket", "prefix", "field", "type"}, rows)
			})
		},
	}
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print storage engine metrics",
		Long: `Print the storage engine's internal metrics (badger or pebble).

Index maintenance counters live in the process doing the maintenance; a
long-running program exposes them by calling index.RegisterMetrics on its
own registry.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				reg := prometheus.NewRegistry()
				if c := storage.NewCollector(s.store); c != nil {
					if err := reg.Register(c); err != nil {
						return err
					}
				}

				families, err := reg.Gather()
				if err != nil {
					return err
				}

				var rows [][]string
				for _, f := range families {
					for _, m := range f.GetMetric() {
						var labels []string
						for _, l := range m.GetLabel() {
							labels = append(labels, l.GetName()+"="+l.GetValue())
						}
						var value float64
						switch {
						case m.GetCounter() != nil:
							value = m.GetCounter().GetValue()
						case m.GetGauge() != nil:
							value = m.GetGauge().GetValue()
						case m.GetHistogram() != nil:
							value = float64(m.GetHistogram().GetSampleCount())
						}
						rows = append(rows, []string{f.GetName(), strings.Join(labels, ","), strconv.FormatFloat(value, 'f', -1, 64)})
					}
				}
				return renderTable(cmd.OutOrStdout(), []string{"metric", "labels", "value"}, rows)
			})
		},
	}
}

// parseObject decodes a JSON object argument, keeping numbers exact
func parseObject(arg string) (map[string]any, error) {
	var data map[string]any
	dec := json.NewDecoder(bytes.NewReader([]byte(arg)))
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("invalid JSON object: %w", err)
	}
	return data, nil
}

// parseOperand converts query arguments to the index's field type. between
// and set_member take a list; every other operator a single value.
func parseOperand(ft kvindex.FieldType, op string, args []string) (any, error) {
	if op != index.OpBetween && op != index.OpSetMember {
		if len(args) != 1 {
			return nil, fmt.Errorf("%s takes one value, got %d", op, len(args))
		}
		return parseValue(ft, args[0])
	}

	values := make([]any, len(args))
	for i, a := range args {
		v, err := parseValue(ft, a)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

func parseValue(ft kvindex.FieldType, s string) (any, error) {
	switch ft {
	case kvindex.TypeInt:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid int %q: %w", s, err)
		}
		return v, nil
	case kvindex.TypeFloat:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float %q: %w", s, err)
		}
		return v, nil
	case kvindex.TypeBool:
		v, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("invalid bool %q: %w", s, err)
		}
		return v, nil
	default:
		return s, nil
	}
}
