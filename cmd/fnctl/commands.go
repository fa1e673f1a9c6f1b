package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/artpar/fnhost/internal/core/function"
	"github.com/artpar/fnhost/internal/core/submission"
	"github.com/artpar/fnhost/internal/shell/client"
)

func runValidate(cli CLI, out io.Writer) int {
	candidate, err := loadCandidate(cli.Validate.File)
	if err != nil {
		return exitWithError(out, err)
	}

	res := function.Validate(candidate)
	if !res.Valid() {
		writeFieldErrors(out, res.Errors)
		return 1
	}

	doc, err := toYAML(res.Config)
	if err != nil {
		return exitWithError(out, err)
	}
	writeLine(out, "✓ "+cli.Validate.File+" is valid")
	_, _ = io.WriteString(out, doc)
	return 0
}

func runSubmit(cli CLI, out io.Writer) int {
	candidate, err := loadCandidate(cli.Submit.File)
	if err != nil {
		return exitWithError(out, err)
	}
	intent, err := submission.ParseIntent(cli.Submit.Intent)
	if err != nil {
		return exitWithError(out, err)
	}

	ctrl := submission.NewController(cli.apiClient())
	outcome, err := ctrl.Submit(context.Background(), submission.Request{
		ID:        cli.Submit.ID,
		Candidate: candidate,
		Intent:    intent,
	})
	if err != nil {
		return reportSubmitError(out, err)
	}

	fn := outcome.Function
	switch outcome.Intent {
	case submission.IntentDeploy:
		writeLine(out, fmt.Sprintf("✓ %s (%s) submitted for deployment", fn.Name, fn.ID))
	default:
		writeLine(out, fmt.Sprintf("✓ %s (%s) saved as draft", fn.Name, fn.ID))
	}
	writeLine(out, "  status: "+string(fn.Status))
	return 0
}

func reportSubmitError(out io.Writer, err error) int {
	var (
		verr *submission.ValidationError
		ierr *function.InputError
	)
	switch {
	case errors.As(err, &verr):
		writeFieldErrors(out, verr.Fields)
	case errors.As(err, &ierr):
		writeFieldErrors(out, ierr.Fields)
	case errors.Is(err, function.ErrNotFound):
		writeLine(out, "✗ function not found")
	default:
		writeLine(out, "✗ "+err.Error())
	}
	return 1
}

func runList(cli CLI, out io.Writer) int {
	list, err := cli.apiClient().ListFunctions(context.Background(), client.ListOptions{
		Page:   cli.List.Page,
		Limit:  cli.List.Limit,
		Search: cli.List.Search,
	})
	if err != nil {
		return exitWithError(out, err)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tRUNTIME\tSOURCE\tSTATUS")
	for _, fn := range list.Data {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", fn.ID, fn.Name, fn.Runtime, fn.SourceType, fn.Status)
	}
	_ = tw.Flush()

	p := list.Pagination
	writeLine(out, fmt.Sprintf("page %d of %d (%d total)", p.Page, p.TotalPages, p.Total))
	return 0
}

func runGet(cli CLI, out io.Writer) int {
	fn, err := cli.apiClient().GetFunction(context.Background(), cli.Get.ID)
	if err != nil {
		return exitWithError(out, err)
	}
	doc, err := toYAML(fn)
	if err != nil {
		return exitWithError(out, err)
	}
	_, _ = io.WriteString(out, doc)
	return 0
}

func runDelete(cli CLI, out io.Writer) int {
	if err := cli.apiClient().DeleteFunction(context.Background(), cli.Delete.ID); err != nil {
		return exitWithError(out, err)
	}
	writeLine(out, "✓ deleted "+cli.Delete.ID)
	return 0
}

func runTestInput(cli CLI, out io.Writer) int {
	payload, err := os.ReadFile(cli.TestInput.File)
	if err != nil {
		return exitWithError(out, err)
	}
	if !json.Valid(payload) {
		return exitWithError(out, fmt.Errorf("%s: payload must be valid JSON", cli.TestInput.File))
	}

	report, err := cli.apiClient().TestInput(context.Background(), cli.TestInput.ID, json.RawMessage(payload))
	if err != nil {
		return exitWithError(out, err)
	}
	if report.Valid {
		writeLine(out, "✓ payload matches input schema")
		return 0
	}

	writeLine(out, "✗ payload does not match input schema")
	for _, v := range report.Violations {
		path := v.Path
		if path == "" {
			path = "(root)"
		}
		writeLine(out, fmt.Sprintf("  %s: %s", path, v.Message))
	}
	return 1
}

func writeFieldErrors(out io.Writer, errs function.FieldErrors) {
	writeLine(out, fmt.Sprintf("✗ %d field(s) invalid", len(errs)))
	for _, field := range errs.Fields() {
		writeLine(out, fmt.Sprintf("  %s: %s", field, errs[field]))
	}
	if errs.HasConfigurationError() {
		writeLine(out, "  (runtime is not supported by this installation)")
	}
}
