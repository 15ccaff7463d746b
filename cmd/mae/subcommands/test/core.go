//
//  Copyright © Manetu Inc. All rights reserved.
//

package test

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/manetu/authzengine/cmd/mae/common"
	"github.com/urfave/cli/v3"
)

// Decision is the output of the decision command.
type Decision struct {
	Allow bool `json:"allow"`
}

// ExecuteDecision decides the check request read from --input against the
// bundles and prints the decision as JSON.
func ExecuteDecision(ctx context.Context, cmd *cli.Command) error {
	return executeDecision(ctx, cmd, os.Stdin, os.Stdout)
}

func executeDecision(ctx context.Context, cmd *cli.Command, stdin io.Reader, stdout io.Writer) error {
	data, err := readInput(cmd.String("input"), stdin)
	if err != nil {
		return err
	}
	req, err := parseRequest(data)
	if err != nil {
		return err
	}

	m, err := common.NewCliManager(ctx, cmd, accessLogWriter(cmd), false)
	if err != nil {
		return err
	}
	defer m.Close()

	allow, err := common.Decide(ctx, m, req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(Decision{Allow: allow})
}

// accessLogWriter sends access records to stderr when --trace is set and
// discards them otherwise.
func accessLogWriter(cmd *cli.Command) io.Writer {
	if cmd.Root().Bool("trace") {
		return os.Stderr
	}
	return io.Discard
}
