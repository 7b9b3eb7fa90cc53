package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"fontinject/metrics"
	"fontinject/state"
)

// ListMetrics is the metrics subcommand action. It prints families fallback
// metrics are known for.
func ListMetrics(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)
	log := env.Logger().Named("metrics")

	if env.Cfg == nil {
		return errors.New("configuration is not loaded")
	}
	if cmd.Args().Len() > 0 {
		log.Warn("Malformed command line, arguments are not expected", zap.Strings("ignoring", cmd.Args().Slice()))
	}

	db, err := loadDatabase(env.Cfg)
	if err != nil {
		return err
	}
	return listMetrics(db, os.Stdout)
}

func listMetrics(db *metrics.Database, w io.Writer) error {
	for _, e := range db.Entries() {
		category := e.Category
		if category == "" {
			category = "-"
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\t%g/%g\n", e.Family, category, e.XWidthAvg, e.UnitsPerEm); err != nil {
			return err
		}
	}
	return nil
}
