//
//  Copyright © Manetu Inc. All rights reserved.
//

package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/manetu/authzengine/cmd/mae/common"
	"github.com/manetu/authzengine/internal/logging"
	"github.com/manetu/authzengine/pkg/core"
	"github.com/manetu/authzengine/pkg/core/auxdata"
	"github.com/manetu/authzengine/pkg/core/opa"
	"github.com/manetu/authzengine/pkg/decisionpoint"
	"github.com/manetu/authzengine/pkg/decisionpoint/envoy"
	"github.com/manetu/authzengine/pkg/decisionpoint/generic"
	"github.com/urfave/cli/v3"
)

var logger = logging.GetLogger("mae")

const agent string = "serve"

// Execute runs the serve command: the decision point is started on --port and
// shut down gracefully on an interrupt.  The store and group backends follow
// the configuration; --bundle files are applied to them first.
func Execute(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serve(ctx, cmd)
}

func serve(ctx context.Context, cmd *cli.Command) error {
	m, err := common.NewCliManager(ctx, cmd, os.Stdout, true)
	if err != nil {
		return err
	}
	defer m.Close()

	server, err := createServer(m, cmd)
	if err != nil {
		return err
	}
	if m.Bundle != nil {
		logger.Infof(agent, "start", "serving bundle %s", m.Bundle.Metadata.Name)
	}

	<-ctx.Done()
	logger.Info(agent, "shutdown", "Shutting down server...")

	if err := server.Stop(context.WithoutCancel(ctx)); err != nil {
		return err
	}

	logger.Info(agent, "shutdown", "Server exited gracefully.")
	return nil
}

func createServer(m core.AuthorizationManager, cmd *cli.Command) (decisionpoint.Server, error) {
	port := cmd.Int("port")
	switch protocol := cmd.String("protocol"); protocol {
	case "", "generic":
		return generic.CreateServer(m, port)
	case "envoy":
		mapper, err := newMapper(cmd)
		if err != nil {
			return nil, err
		}
		aux, err := auxdata.LoadAuxData(cmd.String("auxdata"))
		if err != nil {
			return nil, err
		}
		return envoy.CreateServer(m, port, mapper, aux)
	default:
		return nil, fmt.Errorf("unsupported protocol: %s", protocol)
	}
}

func newMapper(cmd *cli.Command) (*envoy.Mapper, error) {
	path := cmd.String("mapper")
	if path == "" {
		return nil, fmt.Errorf("--mapper is required with the envoy protocol")
	}
	data, err := os.ReadFile(path) // #nosec G304 -- user-supplied mapper
	if err != nil {
		return nil, fmt.Errorf("failed to read mapper: %w", err)
	}

	pkg := cmd.String("mapper-package")
	if pkg == "" {
		pkg = envoy.DefaultMapperPackage
	}
	return envoy.NewMapper(pkg, opa.Modules{filepath.Base(path): string(data)},
		opa.WithDefaultTracing(cmd.Root().Bool("trace")))
}
