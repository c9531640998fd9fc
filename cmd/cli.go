package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/SanteonNL/bptrafficlight/importer"
)

// Import merges a smartwatch export into the persisted readings and writes the outcome to out.
func Import(ctx context.Context, config Config, in io.Reader, out io.Writer) error {
	application, err := NewApplication(ctx, config)
	if err != nil {
		return err
	}
	defer application.Close()
	raw, err := importer.ReadAll(ctx, in, config.Import.MaxSize)
	if err != nil {
		return err
	}
	result, err := application.Service.ImportSmartwatch(ctx, raw)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "Imported %d readings (%d skipped, %d invalid, %d total)\n", result.Imported, result.Skipped, result.Invalid, result.Total)
	return err
}

// Dashboard writes the dashboard of the persisted readings as JSON to out.
func Dashboard(ctx context.Context, config Config, out io.Writer) error {
	application, err := NewApplication(ctx, config)
	if err != nil {
		return err
	}
	defer application.Close()
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(application.Service.Dashboard())
}
