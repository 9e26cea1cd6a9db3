package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/syssam/objstore/condition"
	"github.com/syssam/objstore/store"
)

func newInstanceCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "instance",
		Aliases: []string{"instances"},
		Short:   "Create and read instances of a schema",
	}
	cmd.AddCommand(newInstanceCreateCmd(g), newInstanceQueryCmd(g), newInstanceGetCmd(g))
	return cmd
}

func newInstanceQueryCmd(g *globals) *cobra.Command {
	var (
		filter string
		sort   []string
		limit  int
		offset int
		total  bool
	)
	cmd := &cobra.Command{
		Use:   "query SCHEMA",
		Short: "Print the instances matching a condition as JSON lines",
		Long: `Print one page of the instances of SCHEMA matching the condition given
by --filter, one JSON document per line.

Sort terms are column names with an optional ":asc" or ":desc" suffix.

Examples:
  objstore instance query products --filter '{"op":"eq","field":"in_stock","value":true}'
  objstore instance query products --sort price:desc --sort name --limit 20`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := filterRequest(filter, sort, limit, offset)
			if err != nil {
				return err
			}
			st, err := g.open()
			if err != nil {
				return err
			}
			defer st.Close()
			instances, n, err := st.FilterInstances(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			if err := printInstances(cmd.OutOrStdout(), instances); err != nil {
				return err
			}
			if total {
				fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d instances\n", len(instances), n)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&filter, "filter", "", "condition as JSON")
	f.StringSliceVar(&sort, "sort", nil, "sort term COLUMN[:asc|:desc], repeatable")
	f.IntVar(&limit, "limit", condition.DefaultLimit, "page size")
	f.IntVar(&offset, "offset", 0, "number of instances to skip")
	f.BoolVar(&total, "total", false, "report the number of matching instances on stderr")
	return cmd
}

func newInstanceGetCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "get SCHEMA ID",
		Short: "Print one instance as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := g.open()
			if err != nil {
				return err
			}
			defer st.Close()
			inst, err := st.GetInstance(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printInstances(cmd.OutOrStdout(), []*store.Instance{inst})
		},
	}
}

func newInstanceCreateCmd(g *globals) *cobra.Command {
	var data, file string
	cmd := &cobra.Command{
		Use:   "create SCHEMA",
		Short: "Create instances from a JSON object or array",
		Long: `Create the instances given by --data or --file. An array creates every
element in one transaction, or none of them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := []byte(data)
			if file != "" {
				var err error
				if raw, err = os.ReadFile(file); err != nil {
					return err
				}
			}
			payloads, err := decodePayloads(raw)
			if err != nil {
				return err
			}
			st, err := g.open()
			if err != nil {
				return err
			}
			defer st.Close()
			instances, err := st.CreateInstances(cmd.Context(), args[0], payloads)
			if err != nil {
				return err
			}
			return printInstances(cmd.OutOrStdout(), instances)
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "instance payload as JSON")
	cmd.Flags().StringVarP(&file, "file", "f", "", "file holding the JSON payload")
	cmd.MarkFlagsMutuallyExclusive("data", "file")
	cmd.MarkFlagsOneRequired("data", "file")
	return cmd
}

// decodePayloads decodes a JSON object or array of objects. Numbers are
// kept as json.Number so that decimals keep their digits.
func decodePayloads(raw []byte) ([]map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if len(raw) > 0 && raw[0] == '[' {
		var payloads []map[string]any
		if err := dec.Decode(&payloads); err != nil {
			return nil, fmt.Errorf("decode payloads: %w", err)
		}
		return payloads, nil
	}
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return []map[string]any{payload}, nil
}

// filterRequest builds the request of the query command flags.
func filterRequest(filter string, sort []string, limit, offset int) (condition.FilterRequest, error) {
	req := condition.FilterRequest{Limit: limit, Offset: offset}
	if filter != "" {
		c, err := condition.Parse([]byte(filter))
		if err != nil {
			return req, fmt.Errorf("--filter: %w", err)
		}
		req.Condition = c
	}
	for _, term := range sort {
		col, order, _ := strings.Cut(term, ":")
		if col == "" {
			return req, fmt.Errorf("--sort: empty column in %q", term)
		}
		if order == "" {
			order = condition.Asc
		}
		req.SortBy = append(req.SortBy, col)
		req.SortOrder = append(req.SortOrder, order)
	}
	return req, nil
}

func printInstances(w io.Writer, instances []*store.Instance) error {
	enc := json.NewEncoder(w)
	for _, inst := range instances {
		if err := enc.Encode(inst); err != nil {
			return err
		}
	}
	return nil
}
