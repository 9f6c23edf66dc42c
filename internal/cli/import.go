package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/nainya/entitycore/internal/connector"
	"github.com/nainya/entitycore/pkg/graph"
	"github.com/nainya/entitycore/pkg/object"
)

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <model> <records.json>",
		Short: "Validate records through their pipelines and save them",
		Long: `import reads a JSON array of objects, runs every record through the model's
on-set pipelines and saves the batch concurrently. Nothing is saved when any
record is rejected.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e := envFrom(cmd)
			models, err := e.loadModels("")
			if err != nil {
				return err
			}
			records, err := readRecords(args[1])
			if err != nil {
				return err
			}

			backend, err := connector.Open(ctx, connector.Config{
				Provider:           e.cfg.Connector.Provider,
				URL:                e.cfg.Connector.URL,
				WALPath:            e.cfg.Connector.WALPath,
				CheckpointInterval: e.cfg.Connector.CheckpointInterval,
				Models:             models,
			}, e.log, nil)
			if err != nil {
				return err
			}
			defer backend.Close()

			g, err := graph.New(backend, models,
				graph.WithLogger(e.log.ObjectLogger(args[0])),
				graph.WithSaveConcurrency(e.cfg.Import.Concurrency))
			if err != nil {
				return err
			}
			if _, ok := g.Model(args[0]); !ok {
				return fmt.Errorf("%w: %s", graph.ErrUnknownModel, args[0])
			}

			objs := make([]*object.Object, 0, len(records))
			var rejected error
			for i, rec := range records {
				obj, err := g.CreateObject(ctx, args[0], rec)
				if err != nil {
					rejected = multierr.Append(rejected, fmt.Errorf("record %d: %w", i, err))
					continue
				}
				objs = append(objs, obj)
			}
			if rejected != nil {
				return rejected
			}
			if err := g.SaveAll(ctx, objs...); err != nil {
				return err
			}

			e.log.Info("import finished").Str("model", args[0]).Int("records", len(objs)).Send()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "imported %d %s records\n", len(objs), args[0])
			return nil
		},
	}
	cmd.Flags().Int("concurrency", 0, "concurrent saves")
	return cmd
}

// readRecords decodes a JSON array of objects keeping numbers exact
func readRecords(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var records []map[string]any
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}
