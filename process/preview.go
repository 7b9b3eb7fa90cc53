package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"fontinject/inject"
	"fontinject/state"
)

// Preview is the preview subcommand action. It shows what would be injected
// for a font-family value without touching any files.
func Preview(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)
	log := env.Logger().Named("preview")

	value := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if len(value) == 0 {
		return errors.New("no font-family value has been specified")
	}
	if env.Cfg == nil {
		return errors.New("configuration is not loaded")
	}

	in, err := newInjector(env.Cfg, log)
	if err != nil {
		return fmt.Errorf("unable to prepare font injector: %w", err)
	}
	log.Debug("Previewing", zap.String("value", value))
	return preview(ctx, in, value, os.Stdout)
}

func preview(ctx context.Context, in *inject.Injector, value string, w io.Writer) error {
	res, err := in.Transform(ctx, "body { font-family: "+value+" }\n", "preview")
	if err != nil {
		return err
	}
	if res == nil {
		_, err = fmt.Fprintln(w, "/* nothing to inject */")
		return err
	}
	_, err = io.WriteString(w, res.Code)
	return err
}
