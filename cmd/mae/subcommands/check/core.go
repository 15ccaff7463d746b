//
//  Copyright © Manetu Inc. All rights reserved.
//

package check

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/manetu/authzengine/pkg/bundle"
	"github.com/manetu/authzengine/pkg/core/groups"
	"github.com/manetu/authzengine/pkg/core/resources"
	"github.com/manetu/authzengine/pkg/core/store"
	"github.com/manetu/authzengine/pkg/core/store/memory"
	"github.com/manetu/authzengine/pkg/engine"
	"github.com/manetu/authzengine/pkg/provider"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
)

// Result represents the outcome of checking one bundle path.
type Result struct {
	Path   string
	Bundle *bundle.Bundle
	Errors []string
}

// Valid reports whether the path passed every check.
func (r Result) Valid() bool { return len(r.Errors) == 0 }

// Execute runs the check command against the --bundle paths.
func Execute(ctx context.Context, cmd *cli.Command) error {
	return run(ctx, os.Stdout, cmd.StringSlice("bundle"))
}

func run(ctx context.Context, out io.Writer, paths []string) error {
	if len(paths) == 0 {
		return fmt.Errorf("no bundles specified, use --bundle/-b to specify bundle files")
	}

	_, _ = fmt.Fprintln(out, "Checking bundles...")
	_, _ = fmt.Fprintln(out)

	var (
		failed int
		loaded []*bundle.Bundle
	)
	for _, path := range paths {
		r := checkPath(path)
		if !r.Valid() {
			failed++
			_, _ = fmt.Fprintf(out, "✗ %s\n", path)
			for _, msg := range r.Errors {
				_, _ = fmt.Fprintf(out, "  Error: %s\n", msg)
			}
			_, _ = fmt.Fprintln(out)
			continue
		}
		loaded = append(loaded, r.Bundle)
		_, _ = fmt.Fprintf(out, "✓ %s: %d authorization(s), %d group(s), %d tenant(s)\n", path,
			len(r.Bundle.Spec.Authorizations), len(r.Bundle.Spec.Groups), len(r.Bundle.Spec.Tenants))
	}

	_, _ = fmt.Fprintln(out, "---")
	if failed > 0 {
		_, _ = fmt.Fprintf(out, "Check completed: %d path(s) with errors\n", failed)
		return fmt.Errorf("check failed: %d path(s) with errors", failed)
	}

	sum, err := dryRun(ctx, bundle.Merge(loaded...))
	if err != nil {
		_, _ = fmt.Fprintf(out, "✗ Applying the merged bundles failed: %s\n", err)
		return fmt.Errorf("check failed: %w", err)
	}

	_, _ = fmt.Fprintf(out, "All checks passed: %d path(s), %d authorization(s), %d membership(s), %d provided record(s)\n",
		len(paths), sum.Authorizations, sum.Memberships, sum.Provided)
	return nil
}

func checkPath(path string) Result {
	r := Result{Path: path}

	b, err := bundle.Load(path)
	if err == nil {
		err = b.Validate(resources.Default)
	}
	if err != nil {
		var ve *bundle.Errors
		if errors.As(err, &ve) {
			for _, e := range ve.Errors {
				r.Errors = append(r.Errors, e.Error())
			}
		} else {
			r.Errors = append(r.Errors, err.Error())
		}
		return r
	}

	r.Bundle = b
	return r
}

// dryRun applies b to throw-away memory backends.
func dryRun(ctx context.Context, b *bundle.Bundle) (bundle.Summary, error) {
	svc := store.NewService(memory.New(), resources.Default)
	p, err := provider.NewDefault(svc, "UPDATE")
	if err != nil {
		return bundle.Summary{}, err
	}
	return b.Apply(ctx, bundle.Target{
		Authorizations: svc,
		Memberships:    groups.NewStatic(nil),
		Repository:     engine.New(),
		Provider:       p,
	})
}
