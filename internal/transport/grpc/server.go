package grpcx

import (
	"context"
	"encoding/json"

	"github.com/prernadh/yolo-model-tuner-runner/internal/domain"
	"github.com/prernadh/yolo-model-tuner-runner/internal/rpccontract"
	"github.com/prernadh/yolo-model-tuner-runner/internal/service"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

type HubRPCServer interface {
	GetHealth(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetTagCounts(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	CountSamples(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListTargets(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	SubmitJob(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetJob(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListJobs(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	ListJobEvents(context.Context, *structpb.Struct) (*structpb.ListValue, error)
	AddSamples(context.Context, *structpb.Struct) (*structpb.ListValue, error)
	TagSamples(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type HubHandler struct {
	hub *service.HubService
}

func NewHubHandler(hub *service.HubService) *HubHandler {
	return &HubHandler{hub: hub}
}

func RegisterHubServer(server *grpc.Server, handler HubRPCServer) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: rpccontract.ServiceName,
		HandlerType: (*HubRPCServer)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "GetHealth", Handler: getHealthHandler},
			{MethodName: "GetTagCounts", Handler: getTagCountsHandler},
			{MethodName: "CountSamples", Handler: countSamplesHandler},
			{MethodName: "ListTargets", Handler: listTargetsHandler},
			{MethodName: "SubmitJob", Handler: submitJobHandler},
			{MethodName: "GetJob", Handler: getJobHandler},
			{MethodName: "ListJobs", Handler: listJobsHandler},
			{MethodName: "ListJobEvents", Handler: listJobEventsHandler},
			{MethodName: "AddSamples", Handler: addSamplesHandler},
			{MethodName: "TagSamples", Handler: tagSamplesHandler},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "proto/yolotuner/v1/hub.proto",
	}, handler)
}

func (h *HubHandler) GetHealth(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(h.hub.Health())
}

func (h *HubHandler) GetTagCounts(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	counts, err := h.hub.GetTagCounts()
	if err != nil {
		return nil, err
	}
	total, err := h.hub.CountSamples()
	if err != nil {
		return nil, err
	}
	return toStruct(map[string]any{
		"counts": counts,
		"total":  total,
	})
}

func (h *HubHandler) CountSamples(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	count, err := h.hub.CountSamples()
	if err != nil {
		return nil, err
	}
	return toStruct(map[string]any{"count": count})
}

func (h *HubHandler) ListTargets(_ context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	return toList(h.hub.ListTargets())
}

func (h *HubHandler) SubmitJob(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	decoded, err := decodeStruct[service.SubmitJobRequest](request)
	if err != nil {
		return nil, err
	}
	response, err := h.hub.SubmitJob(ctx, decoded)
	if err != nil {
		return nil, err
	}
	return toStruct(response)
}

func (h *HubHandler) GetJob(_ context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	decoded, err := decodeStruct[jobRefRequest](request)
	if err != nil {
		return nil, err
	}
	job, err := h.hub.GetJob(decoded.ID)
	if err != nil {
		return nil, err
	}
	return toStruct(job)
}

func (h *HubHandler) ListJobs(_ context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	jobs, err := h.hub.ListJobs()
	if err != nil {
		return nil, err
	}
	return toList(jobs)
}

func (h *HubHandler) ListJobEvents(_ context.Context, request *structpb.Struct) (*structpb.ListValue, error) {
	decoded, err := decodeStruct[jobRefRequest](request)
	if err != nil {
		return nil, err
	}
	events, err := h.hub.ListJobEvents(decoded.ID)
	if err != nil {
		return nil, err
	}
	return toList(events)
}

func (h *HubHandler) AddSamples(_ context.Context, request *structpb.Struct) (*structpb.ListValue, error) {
	decoded, err := decodeStruct[service.AddSamplesRequest](request)
	if err != nil {
		return nil, err
	}
	added, err := h.hub.AddSamples(decoded)
	if err != nil {
		return nil, err
	}
	return toList(added)
}

func (h *HubHandler) TagSamples(_ context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	decoded, err := decodeStruct[service.TagSamplesRequest](request)
	if err != nil {
		return nil, err
	}
	updated, err := h.hub.TagSamples(decoded)
	if err != nil {
		return nil, err
	}
	return toStruct(map[string]any{"updated": updated})
}

type jobRefRequest struct {
	ID string `json:"id"`
}

func toStruct(value any) (*structpb.Struct, error) {
	serialized, err := json.Marshal(value)
	if err != nil {
		return nil, domain.Internal("failed to encode response", err)
	}

	decoded := map[string]any{}
	if err := json.Unmarshal(serialized, &decoded); err != nil {
		return nil, domain.Internal("failed to shape response object", err)
	}
	result, err := structpb.NewStruct(decoded)
	if err != nil {
		return nil, domain.Internal("failed to convert response to protobuf struct", err)
	}
	return result, nil
}

func toList(value any) (*structpb.ListValue, error) {
	serialized, err := json.Marshal(value)
	if err != nil {
		return nil, domain.Internal("failed to encode response list", err)
	}

	decoded := []any{}
	if err := json.Unmarshal(serialized, &decoded); err != nil {
		return nil, domain.Internal("failed to shape response list", err)
	}
	result, err := structpb.NewList(decoded)
	if err != nil {
		return nil, domain.Internal("failed to convert response to protobuf list", err)
	}
	return result, nil
}

func decodeStruct[T any](input *structpb.Struct) (T, error) {
	var out T
	serialized, err := json.Marshal(input.AsMap())
	if err != nil {
		return out, domain.InvalidArgument("request payload could not be encoded")
	}
	if err := json.Unmarshal(serialized, &out); err != nil {
		return out, domain.InvalidArgument("request payload shape is invalid")
	}
	return out, nil
}

func getHealthHandler(
	srv any,
	ctx context.Context,
	decoder func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	request := new(emptypb.Empty)
	if err := decoder(request); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HubRPCServer).GetHealth(ctx, request)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: rpccontract.MethodGetHealth}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(HubRPCServer).GetHealth(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, request, info, handler)
}

func getTagCountsHandler(
	srv any,
	ctx context.Context,
	decoder func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	request := new(emptypb.Empty)
	if err := decoder(request); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HubRPCServer).GetTagCounts(ctx, request)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: rpccontract.MethodGetTagCounts}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(HubRPCServer).GetTagCounts(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, request, info, handler)
}

func countSamplesHandler(
	srv any,
	ctx context.Context,
	decoder func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	request := new(emptypb.Empty)
	if err := decoder(request); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HubRPCServer).CountSamples(ctx, request)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: rpccontract.MethodCountSamples}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(HubRPCServer).CountSamples(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, request, info, handler)
}

func listTargetsHandler(
	srv any,
	ctx context.Context,
	decoder func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	request := new(emptypb.Empty)
	if err := decoder(request); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HubRPCServer).ListTargets(ctx, request)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: rpccontract.MethodListTargets}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(HubRPCServer).ListTargets(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, request, info, handler)
}

func submitJobHandler(
	srv any,
	ctx context.Context,
	decoder func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	request := new(structpb.Struct)
	if err := decoder(request); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HubRPCServer).SubmitJob(ctx, request)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: rpccontract.MethodSubmitJob}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(HubRPCServer).SubmitJob(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, request, info, handler)
}

func getJobHandler(
	srv any,
	ctx context.Context,
	decoder func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	request := new(structpb.Struct)
	if err := decoder(request); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HubRPCServer).GetJob(ctx, request)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: rpccontract.MethodGetJob}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(HubRPCServer).GetJob(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, request, info, handler)
}

func listJobsHandler(
	srv any,
	ctx context.Context,
	decoder func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	request := new(emptypb.Empty)
	if err := decoder(request); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HubRPCServer).ListJobs(ctx, request)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: rpccontract.MethodListJobs}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(HubRPCServer).ListJobs(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, request, info, handler)
}

func listJobEventsHandler(
	srv any,
	ctx context.Context,
	decoder func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	request := new(structpb.Struct)
	if err := decoder(request); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HubRPCServer).ListJobEvents(ctx, request)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: rpccontract.MethodListJobEvents}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(HubRPCServer).ListJobEvents(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, request, info, handler)
}

func addSamplesHandler(
	srv any,
	ctx context.Context,
	decoder func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	request := new(structpb.Struct)
	if err := decoder(request); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HubRPCServer).AddSamples(ctx, request)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: rpccontract.MethodAddSamples}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(HubRPCServer).AddSamples(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, request, info, handler)
}

func tagSamplesHandler(
	srv any,
	ctx context.Context,
	decoder func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	request := new(structpb.Struct)
	if err := decoder(request); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HubRPCServer).TagSamples(ctx, request)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: rpccontract.MethodTagSamples}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(HubRPCServer).TagSamples(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, request, info, handler)
}
