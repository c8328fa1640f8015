package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/bisq-support/review-engine/internal/review"
)

var importCmd = &cobra.Command{
	Use:   "import <file.yaml|file.json>",
	Short: "Bulk-load review candidates from a YAML or JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrap(err, "read import file")
		}
		candidates, err := parseCandidates(data, filepath.Ext(args[0]))
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		a, err := buildApp(ctx, st)
		if err != nil {
			return err
		}

		n, err := a.Reviews.Import(ctx, candidates)
		if err != nil {
			return err
		}

		zap.L().Info("import complete",
			zap.String("file", args[0]),
			zap.Int("records", len(candidates)),
			zap.Int64("inserted", n),
		)
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d of %d candidates\n", n, len(candidates))
		return nil
	},
}

// parseCandidates decodes a list of candidates. YAML is decoded generically
// and re-encoded as JSON so both formats share the json field names.
func parseCandidates(data []byte, ext string) ([]review.NewCandidate, error) {
	switch strings.ToLower(ext) {
	case ".json":
	case ".yaml", ".yml":
		var generic any
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return nil, eris.Wrap(err, "parse yaml")
		}
		raw, err := json.Marshal(generic)
		if err != nil {
			return nil, eris.Wrap(err, "parse yaml")
		}
		data = raw
	default:
		return nil, eris.Errorf("unsupported import format %q", ext)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var out []review.NewCandidate
	if err := dec.Decode(&out); err != nil {
		return nil, eris.Wrap(err, "parse candidates")
	}
	return out, nil
}

func init() {
	rootCmd.AddCommand(importCmd)
}
