//
//  Copyright © Manetu Inc. All rights reserved.
//

package gate

import (
	"context"
	"maps"
	"strconv"

	"github.com/manetu/authzengine/pkg/common"
	"github.com/manetu/authzengine/pkg/core/check"
	"github.com/manetu/authzengine/pkg/core/model"
	"github.com/manetu/authzengine/pkg/core/resources"
	"github.com/manetu/authzengine/pkg/core/types"
	"github.com/manetu/authzengine/pkg/engine"
	"github.com/pkg/errors"
)

// TelemetryProperty holds whether telemetry reporting is enabled.
const TelemetryProperty = "telemetry.enabled"

var systemPerms = resources.SystemPerms

// system enforces p on System, reporting a denial as requiring an
// administrator.
func (s *step) system(p resources.Permission) error {
	err := s.check(check.AnyOf(on(p, resources.System, model.Any)))
	var denied *common.AuthorizationError
	if errors.As(err, &denied) {
		denied.AdminRequired = true
	}
	return err
}

// Properties returns the system properties.
func (g *Gate) Properties(ctx context.Context, auth types.Authentication) (map[string]string, error) {
	var out map[string]string
	err := g.run(ctx, auth, "getProperties", func(tx *engine.Tx, s *step) error {
		if err := s.system(systemPerms.Read); err != nil {
			return err
		}
		out = maps.Clone(tx.State().Properties)
		return nil
	})
	return out, err
}

func (g *Gate) SetProperty(ctx context.Context, auth types.Authentication, name, value string) error {
	return g.run(ctx, auth, "setProperty", func(tx *engine.Tx, s *step) error {
		if err := s.system(systemPerms.Set); err != nil {
			return err
		}
		tx.State().Properties[name] = value
		return nil
	})
}

func (g *Gate) DeleteProperty(ctx context.Context, auth types.Authentication, name string) error {
	return g.run(ctx, auth, "deleteProperty", func(tx *engine.Tx, s *step) error {
		if err := s.system(systemPerms.Delete); err != nil {
			return err
		}
		delete(tx.State().Properties, name)
		return nil
	})
}

func (g *Gate) IsTelemetryEnabled(ctx context.Context, auth types.Authentication) (bool, error) {
	var enabled bool
	err := g.run(ctx, auth, "isTelemetryEnabled", func(tx *engine.Tx, s *step) error {
		if err := s.system(systemPerms.Read); err != nil {
			return err
		}
		enabled, _ = strconv.ParseBool(tx.State().Properties[TelemetryProperty])
		return nil
	})
	return enabled, err
}

func (g *Gate) ToggleTelemetry(ctx context.Context, auth types.Authentication, enabled bool) error {
	return g.SetProperty(ctx, auth, TelemetryProperty, strconv.FormatBool(enabled))
}
