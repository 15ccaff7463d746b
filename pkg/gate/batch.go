//
//  Copyright © Manetu Inc. All rights reserved.
//

package gate

import (
	"context"

	"github.com/manetu/authzengine/pkg/batch"
	"github.com/manetu/authzengine/pkg/core/check"
	"github.com/manetu/authzengine/pkg/core/model"
	"github.com/manetu/authzengine/pkg/core/resources"
	"github.com/manetu/authzengine/pkg/core/types"
	"github.com/manetu/authzengine/pkg/engine"
)

// CreateBatch records a batch of op over targets and seeds it.  It requires
// the operation's CREATE_BATCH_* permission or CREATE on Batch.  The specific
// permission is checked first, so revoking it denies even when CREATE is
// granted.
func (g *Gate) CreateBatch(ctx context.Context, auth types.Authentication, op batch.Operation, targets []string) (engine.Batch, error) {
	perm, err := batch.Permission(op)
	if err != nil {
		return engine.Batch{}, err
	}

	var b engine.Batch
	err = g.run(ctx, auth, "createBatch:"+string(op), func(tx *engine.Tx, s *step) error {
		if err := s.check(check.AnyOf(
			check.On(perm, resources.Batch, model.Any),
			check.On(resources.BatchPerms.Create, resources.Batch, model.Any),
		)); err != nil {
			return err
		}

		b = tx.AddBatch(engine.Batch{Type: string(op), CreatedBy: auth.UserID, Targets: targets})
		return g.seeder.Seed(ctx, b)
	})
	return b, err
}
