//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package decisionpoint provides interfaces and implementations for
// authorization decision point servers.
//
// A decision point exposes the authorization manager as a network service
// that enforcement points can call to check a permission or to administer
// authorization records.
//
// # Available Implementations
//
//   - [generic]: HTTP/REST server with an OpenAPI schema and /metrics
//   - [envoy]: Envoy ext_authz gRPC server backed by a Rego request mapper
//
// # Usage
//
//	m, _ := core.NewAuthorizationManagerFromConfig(ctx)
//	server, _ := generic.CreateServer(m, 8080)
//	defer server.Stop(ctx)
package decisionpoint

import "context"

// Server is the interface for decision point servers that can be gracefully
// stopped.
//
// Implementations must ensure that [Stop] completes any in-flight requests
// before returning.
type Server interface {
	// Stop gracefully shuts down the server, waiting for active requests
	// to complete or until the context is cancelled.
	Stop(context.Context) error
}
