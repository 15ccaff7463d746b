//
//  Copyright © Manetu Inc. All rights reserved.
//

package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/manetu/authzengine/cmd/mae/subcommands/check"
	"github.com/manetu/authzengine/cmd/mae/subcommands/serve"
	"github.com/manetu/authzengine/cmd/mae/subcommands/test"
	"github.com/manetu/authzengine/cmd/mae/version"
	"github.com/manetu/authzengine/internal/logging"
	"github.com/urfave/cli/v3"
)

var logger = logging.GetLogger("mae")

func bundleFlag() cli.Flag {
	return &cli.StringSliceFlag{
		Name:    "bundle",
		Aliases: []string{"b"},
		Usage:   "Load AuthorizationBundle from `FILE` or from every .yml/.yaml file of a directory.  Can be specified multiple times; earlier bundles take precedence.",
	}
}

func providerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "provider",
			Usage: "Compute the authorizations granted on new tasks, deployments and memberships with the Rego policy in `FILE` instead of the default provider",
		},
		&cli.StringFlag{
			Name:  "provider-package",
			Usage: "The Rego package of the --provider policy",
			Value: "provider",
		},
	}
}

func main() {
	cmd := &cli.Command{
		Name:    "mae",
		Usage:   "A CLI application for working with the Manetu authorization engine",
		Version: version.GetVersion(),
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "trace",
				Aliases: []string{"t"},
				Usage:   "Write access records and Rego traces to stderr",
				Value:   logger.IsTraceEnabled(),
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "test",
				Usage: "Takes authorization decisions against one or more bundles, simplifying bundle authoring and verification",
				Commands: []*cli.Command{
					{
						Name:  "decision",
						Usage: "Decides a single check request",
						Flags: append([]cli.Flag{
							&cli.StringFlag{
								Name:    "input",
								Aliases: []string{"i"},
								Usage:   "Load the check request (JSON or YAML) from 'FILE', or use '-' for stdin",
							},
							bundleFlag(),
						}, providerFlags()...),
						Action: test.ExecuteDecision,
					},
					{
						Name:  "decisions",
						Usage: "Runs a suite of decision tests and reports those whose result differs from the expected one",
						Flags: append([]cli.Flag{
							&cli.StringFlag{
								Name:     "input",
								Aliases:  []string{"i"},
								Usage:    "Load the test suite from `FILE`",
								Required: true,
							},
							bundleFlag(),
							&cli.StringSliceFlag{
								Name:  "test",
								Usage: "Only run the tests whose name matches the glob `PATTERN`.  Can be specified multiple times.",
							},
						}, providerFlags()...),
						Action: test.ExecuteDecisions,
					},
				},
			},
			{
				Name:  "serve",
				Usage: "Creates a decision-point service",
				Flags: append([]cli.Flag{
					&cli.IntFlag{
						Name:  "port",
						Usage: "The TCP port to serve on.",
						Value: 9000,
					},
					&cli.StringFlag{
						Name:    "protocol",
						Aliases: []string{"p"},
						Usage:   "The protocol to serve.  Must be one of 'generic' or 'envoy'",
						Value:   "generic",
						Action: func(ctx context.Context, command *cli.Command, s string) error {
							if s != "generic" && s != "envoy" {
								return fmt.Errorf("unsupported protocol: %s", s)
							}
							return nil
						},
					},
					&cli.StringFlag{
						Name:  "mapper",
						Usage: "Map Envoy ext_authz attributes to check requests with the Rego policy in `FILE`.  Required by the envoy protocol.",
					},
					&cli.StringFlag{
						Name:  "mapper-package",
						Usage: "The Rego package of the --mapper policy",
						Value: "mapper",
					},
					&cli.StringFlag{
						Name:  "auxdata",
						Usage: "Expose the files of `DIR` to the mapper as input.auxdata",
					},
					bundleFlag(),
				}, providerFlags()...),
				Action: serve.Execute,
			},
			{
				Name:  "check",
				Usage: "Validate AuthorizationBundle files and apply them to a scratch store",
				Flags: []cli.Flag{
					bundleFlag(),
				},
				Action: check.Execute,
			},
			{
				Name:  "version",
				Usage: "Print the version",
				Action: func(_ context.Context, _ *cli.Command) error {
					fmt.Println(version.GetVersion())
					return nil
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
