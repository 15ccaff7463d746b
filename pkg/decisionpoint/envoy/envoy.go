//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package envoy serves decisions over the Envoy ext_authz v3 gRPC API.
//
// Envoy describes the HTTP request it wants checked; a Rego [Mapper] turns
// that description into a check request which is decided like POST /authorize
// of the generic decision point.
package envoy

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	corev3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	authv3 "github.com/envoyproxy/go-control-plane/envoy/service/auth/v3"
	typev3 "github.com/envoyproxy/go-control-plane/envoy/type/v3"
	"github.com/manetu/authzengine/internal/logging"
	"github.com/manetu/authzengine/pkg/common"
	"github.com/manetu/authzengine/pkg/core"
	"github.com/manetu/authzengine/pkg/core/auxdata"
	"github.com/manetu/authzengine/pkg/core/types"
	"github.com/manetu/authzengine/pkg/decisionpoint"
	"google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
)

var logger = logging.GetLogger("authz.decisionpoint")

const agent string = "envoy"

const (
	resultHeader  = "x-ext-authz-check-result"
	resultAllowed = "allowed"
	resultDenied  = "denied"
)

// ExtAuthzServer implements the ext_authz v3 gRPC check request API.
type ExtAuthzServer struct {
	grpcServer *grpc.Server
	listener   net.Listener
	m          core.AuthorizationManager
	mapper     *Mapper
	auxdata    map[string]interface{}
}

var _ authv3.AuthorizationServer = (*ExtAuthzServer)(nil)

func header(key, value string) *corev3.HeaderValueOption {
	return &corev3.HeaderValueOption{Header: &corev3.HeaderValue{Key: key, Value: value}}
}

func allow() *authv3.CheckResponse {
	return &authv3.CheckResponse{
		HttpResponse: &authv3.CheckResponse_OkResponse{
			OkResponse: &authv3.OkHttpResponse{
				Headers: []*corev3.HeaderValueOption{header(resultHeader, resultAllowed)},
			},
		},
		Status: &status.Status{Code: int32(codes.OK)},
	}
}

func deny() *authv3.CheckResponse {
	return &authv3.CheckResponse{
		HttpResponse: &authv3.CheckResponse_DeniedResponse{
			DeniedResponse: &authv3.DeniedHttpResponse{
				Status:  &typev3.HttpStatus{Code: typev3.StatusCode_Forbidden},
				Body:    "permission denied",
				Headers: []*corev3.HeaderValueOption{header(resultHeader, resultDenied)},
			},
		},
		Status: &status.Status{Code: int32(codes.PermissionDenied)},
	}
}

// code maps an error kind to its gRPC code.
func code(err error) codes.Code {
	switch common.KindOf(err) {
	case common.KindBadRequest, common.KindInvalidArgument:
		return codes.InvalidArgument
	case common.KindNotFound:
		return codes.NotFound
	case common.KindAuthorizationDenied:
		return codes.PermissionDenied
	default:
		return codes.Internal
	}
}

// input renders the request attributes as the mapper input, adding auxdata.
func (s *ExtAuthzServer) input(request *authv3.CheckRequest) (map[string]interface{}, error) {
	data, err := protojson.Marshal(request.GetAttributes())
	if err != nil {
		return nil, err
	}
	input := make(map[string]interface{})
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, err
	}
	return auxdata.MergeAuxData(input, s.auxdata), nil
}

// Check implements gRPC v3 check request.  The groups of the user, as
// resolved by the manager, are joined with those the mapper reports.
// Requests the mapper cannot translate fail with InvalidArgument rather than
// being denied.
func (s *ExtAuthzServer) Check(ctx context.Context, request *authv3.CheckRequest) (*authv3.CheckResponse, error) {
	input, err := s.input(request)
	if err != nil {
		return nil, grpcstatus.Error(codes.Internal, err.Error())
	}

	req, err := s.mapper.Map(ctx, input)
	if err != nil {
		return nil, grpcstatus.Error(code(err), err.Error())
	}

	r, p, err := s.m.Registry().Resolve(req.Resource, req.Permission)
	if err != nil {
		return nil, grpcstatus.Error(code(err), err.Error())
	}

	auth, err := s.m.Authenticate(ctx, req.UserID)
	if err != nil {
		return nil, grpcstatus.Error(code(err), err.Error())
	}

	groupIDs := types.NormalizeIDs(append(auth.GroupIDs, req.GroupIDs...))
	ok, err := s.m.IsUserAuthorized(ctx, req.UserID, groupIDs, p, r, req.ResourceID)
	if err != nil {
		return nil, grpcstatus.Error(code(err), err.Error())
	}

	http := request.GetAttributes().GetRequest().GetHttp()
	logger.Tracef(agent, "check", "%s %s%s as %s: %s %s/%s allow=%t", http.GetMethod(), http.GetHost(), http.GetPath(),
		req.UserID, req.Permission, req.Resource, req.ResourceID, ok)
	if ok {
		return allow(), nil
	}
	return deny(), nil
}

// Addr returns the address the server listens on.
func (s *ExtAuthzServer) Addr() net.Addr {
	return s.listener.Addr()
}

// CreateServer creates and starts a new Envoy External Authorization server.
// A port of 0 picks a free port; see [ExtAuthzServer.Addr].  The auxdata
// parameter, if non-nil, is merged into the mapper input under the "auxdata"
// key.
func CreateServer(m core.AuthorizationManager, port int, mapper *Mapper, aux map[string]interface{}) (decisionpoint.Server, error) {
	if mapper == nil {
		return nil, common.NewError(common.KindBadConfiguration, "the envoy decision point needs a request mapper")
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, err
	}

	s := &ExtAuthzServer{
		grpcServer: grpc.NewServer(),
		listener:   listener,
		m:          m,
		mapper:     mapper,
		auxdata:    aux,
	}
	authv3.RegisterAuthorizationServer(s.grpcServer, s)

	go func() {
		if err := s.grpcServer.Serve(listener); err != nil {
			logger.Errorf(agent, "serve", "gRPC server stopped: %v", err)
		}
	}()

	logger.Infof(agent, "start", "Envoy External Authorization gRPC server listening on %s", listener.Addr())
	return s, nil
}

// Stop drains in-flight checks, or stops immediately once ctx is done.
func (s *ExtAuthzServer) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}
	logger.SysInfof("GRPC server stopped")
	return nil
}
