package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yanizio/tenantstore/internal/condition"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	File   string
	Tenant string
	Table  string
}

// compileInput is the accepted JSON document.
type compileInput struct {
	Conditions condition.Condition `json:"conditions"`
	Orders     condition.Order     `json:"orders"`
}

// CompileResult is the json output of the compile command.
type CompileResult struct {
	SQL    string `json:"sql"`
	Params []any  `json:"params"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile [json]",
		Short: "Compile a condition document to SQL",
		Long: `Compile a {"conditions": …, "orders": …} document to the SELECT the engine
would issue.  The document is read from the argument, --file, or stdin.

Example:
  tenantstore compile --tenant t-1 '{"conditions": {"age": {"$gte": 18}}}'`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "read the document from a file")
	cmd.Flags().StringVar(&opts.Tenant, "tenant", "", "prepend tenant_id = <tenant>")
	cmd.Flags().StringVar(&opts.Table, "table", "entity", "table name for the SELECT")

	return cmd
}

func runCompile(opts *CompileOptions, args []string, cmd *cobra.Command) error {
	raw, err := readDocument(opts, args, cmd.InOrStdin())
	if err != nil {
		return err
	}

	var in compileInput
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&in); err != nil {
		return fmt.Errorf("invalid document: %w", err)
	}
	if !condition.ValidIdentifier(opts.Table) {
		return fmt.Errorf("invalid --table %q", opts.Table)
	}

	var tenant *condition.Predicate
	if opts.Tenant != "" {
		p := condition.Equal("tenant_id", opts.Tenant)
		tenant = &p
	}
	cl, err := condition.Compile(in.Conditions, in.Orders, tenant)
	if err != nil {
		return err
	}

	parts := []string{"SELECT * FROM " + opts.Table}
	if w := cl.Where(); w != "" {
		parts = append(parts, w)
	}
	if o := cl.OrderBy(); o != "" {
		parts = append(parts, o)
	}
	res := CompileResult{SQL: strings.Join(parts, " "), Params: cl.Params}
	if res.Params == nil {
		res.Params = []any{}
	}

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		return json.NewEncoder(out).Encode(res)
	}
	fmt.Fprintln(out, res.SQL)
	for i, p := range res.Params {
		fmt.Fprintf(out, "  $%d = %v\n", i+1, p)
	}
	return nil
}

func readDocument(opts *CompileOptions, args []string, stdin io.Reader) (string, error) {
	switch {
	case len(args) == 1:
		return args[0], nil
	case opts.File != "":
		b, err := os.ReadFile(opts.File)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", opts.File, err)
		}
		return string(b), nil
	default:
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(b), nil
	}
}
