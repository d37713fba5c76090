package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/latchql/latch/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                        `json:"valid"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command: runs the same
// compiler pass as build but never writes a whitelist file, for fast
// feedback in editor/CI integrations.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [src]",
		Short: "Check a source tree for whitelist compile errors",
		Long: `Runs the same call-site resolution and merge pass as build, but
discards the whitelist and reports only whether compilation succeeded.

src defaults to the current directory.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			src := "."
			if len(args) == 1 {
				src = args[0]
			}
			return runValidate(rootOpts, src, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, src string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	files, err := DiscoverSourceFiles(src)
	if err != nil {
		if loadErr, ok := err.(*LoadError); ok {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message)
		}
		return outputValidateError(formatter, ErrCodeGeneric, err.Error())
	}

	formatter.VerboseLog("discovered %d source file(s) in %s", len(files), src)

	front := compiler.NewFrontEnd()
	result, err := compiler.CompileSourceTree(context.Background(), front, files)
	if err != nil {
		return outputValidateError(formatter, ErrCodeGeneric, err.Error())
	}

	for _, q := range result.Queries {
		formatter.VerboseLog("query %s: %d param(s)", q.Fingerprint, len(q.Params))
	}

	if len(result.Errors) > 0 {
		return outputValidationErrors(formatter, result.Errors)
	}

	return outputValidateSuccess(formatter, len(result.Queries))
}

func outputValidateSuccess(formatter *OutputFormatter, queryCount int) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true})
	}

	fmt.Fprintf(formatter.Writer, "valid: %d quer%s resolved\n", queryCount, pluralSuffix(queryCount))
	return nil
}

func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitFailure, fmt.Sprintf("%s: %s", code, message))
}

func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	if formatter.Format == "json" {
		result := ValidationResult{Valid: false, Errors: errs}
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error:  &CLIError{Code: errs[0].Code, Message: errs[0].Message},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, e := range errs {
		if e.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", e.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", e.Code, e.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
