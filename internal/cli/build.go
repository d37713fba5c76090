package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/latchql/latch/internal/compiler"
	"github.com/latchql/latch/internal/ir"
)

// BuildOptions holds flags for the build command.
type BuildOptions struct {
	*RootOptions
	Output string // output file path; defaults to stdout
}

// NewBuildCommand creates the build command: the single compile-time
// entry point that walks a source tree and emits the query whitelist.
func NewBuildCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BuildOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "build [src]",
		Short: "Compile a source tree into a query whitelist",
		Long: `Walks a JavaScript/TypeScript source tree looking for executeQuery,
paginateQuery, and beginTx call sites, resolves each one's query and
validator arguments, merges equivalent call sites by fingerprint, and
writes the resulting whitelist as JSON.

src defaults to the current directory.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			src := "."
			if len(args) == 1 {
				src = args[0]
			}
			return runBuild(opts, src, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path (default stdout)")

	return cmd
}

func runBuild(opts *BuildOptions, src string, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: logLevel})))

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	files, err := DiscoverSourceFiles(src)
	if err != nil {
		if loadErr, ok := err.(*LoadError); ok {
			return outputBuildError(formatter, loadErr.Code, loadErr.Message)
		}
		return outputBuildError(formatter, ErrCodeGeneric, err.Error())
	}

	slog.Info("discovered source files", "count", len(files), "src", src)
	formatter.VerboseLog("discovered %d source file(s) in %s", len(files), src)

	front := compiler.NewFrontEnd()
	result, err := compiler.CompileSourceTree(context.Background(), front, files)
	if err != nil {
		return outputBuildError(formatter, ErrCodeGeneric, err.Error())
	}
	slog.Info("compiled source tree", "queries", len(result.Queries), "errors", len(result.Errors), "warnings", len(result.Warnings))

	for _, verr := range result.Errors {
		formatter.VerboseLog("%s: %s", verr.Code, verr.Message)
	}

	if hasHardErrors(result.Errors) {
		return outputBuildValidationErrors(formatter, result.Errors)
	}

	entries := compiler.BuildWhitelist(result)
	data, err := compiler.MarshalWhitelist(entries)
	if err != nil {
		return outputBuildError(formatter, ErrCodeGeneric, err.Error())
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, data, 0644); err != nil {
			return outputBuildError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err))
		}
	}

	return outputBuildSuccess(formatter, entries, opts.Output, data)
}

// hasHardErrors reports whether any validation error should block the
// build from emitting a whitelist. E102 (an unresolved trigger) is
// reported but non-fatal - everything else is not.
func hasHardErrors(errs []compiler.ValidationError) bool {
	for _, e := range errs {
		if e.Code != compiler.ErrNoTriggerResolved {
			return true
		}
	}
	return false
}

func outputBuildSuccess(formatter *OutputFormatter, entries []ir.WhitelistEntry, outputFile string, data []byte) error {
	if formatter.Format == "json" {
		var decoded any
		if err := json.Unmarshal(data, &decoded); err != nil {
			return err
		}
		return formatter.Success(decoded)
	}

	fmt.Fprintf(formatter.Writer, "compiled %d whitelist entr%s\n", len(entries), pluralSuffix(len(entries)))
	for _, e := range entries {
		visibility := "private"
		if e.Public {
			visibility = "public"
		}
		fmt.Fprintf(formatter.Writer, "  %s (%s) %d param(s), %d validator(s)\n",
			e.Fingerprint, visibility, len(e.Params), len(e.Validators))
	}
	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "\nwrote whitelist to %s\n", outputFile)
	} else {
		formatter.Writer.Write(data)
		fmt.Fprintln(formatter.Writer)
	}

	return nil
}

func pluralSuffix(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}

func outputBuildError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitFailure, fmt.Sprintf("%s: %s", code, message))
}

func outputBuildValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	if formatter.Format == "json" {
		cliErrors := make([]CLIError, len(errs))
		for i, e := range errs {
			cliErrors[i] = CLIError{Code: e.Code, Message: e.Message}
		}
		response := CLIResponse{Status: "error", Error: &cliErrors[0], Data: cliErrors}
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("build failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "build failed")
	fmt.Fprintln(formatter.Writer)
	for _, e := range errs {
		fmt.Fprintf(formatter.Writer, "  %s: %s\n", e.Code, e.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("build failed with %d error(s)", len(errs)))
}
