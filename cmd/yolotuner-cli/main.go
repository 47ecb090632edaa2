// Raw gRPC debugging client for the tuner hub. It speaks the wire contract
// directly, without the higher-level client retry and config layers, which
// makes it handy for poking a server during development.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/prernadh/yolo-model-tuner-runner/internal/rpccontract"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	base := flag.NewFlagSet("yolotuner-cli", flag.ExitOnError)
	addr := base.String("addr", "127.0.0.1:50051", "gRPC address")
	token := base.String("token", os.Getenv("AUTH_TOKEN"), "optional auth token")
	_ = base.Parse(os.Args[1:])

	args := base.Args()
	if len(args) == 0 {
		usage()
		return
	}

	command := args[0]
	commandArgs := args[1:]

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 7*time.Second)
	defer cancel()
	if *token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "x-yolotuner-token", *token)
	}

	switch command {
	case "health":
		callStruct(ctx, conn, rpccontract.MethodGetHealth, &emptypb.Empty{})
	case "tag-counts":
		callStruct(ctx, conn, rpccontract.MethodGetTagCounts, &emptypb.Empty{})
	case "count-samples":
		callStruct(ctx, conn, rpccontract.MethodCountSamples, &emptypb.Empty{})
	case "list-targets":
		callList(ctx, conn, rpccontract.MethodListTargets, &emptypb.Empty{})
	case "list-jobs":
		callList(ctx, conn, rpccontract.MethodListJobs, &emptypb.Empty{})
	case "get-job":
		runGetJob(ctx, conn, commandArgs)
	case "list-job-events":
		runListJobEvents(ctx, conn, commandArgs)
	case "submit-job":
		runSubmitJob(ctx, conn, commandArgs)
	case "add-samples":
		runAddSamples(ctx, conn, commandArgs)
	case "tag-samples":
		runTagSamples(ctx, conn, commandArgs)
	default:
		usage()
	}
}

func runGetJob(ctx context.Context, conn grpc.ClientConnInterface, args []string) {
	flags := flag.NewFlagSet("get-job", flag.ExitOnError)
	id := flags.String("id", "", "required")
	_ = flags.Parse(args)

	if *id == "" {
		log.Fatalf("get-job requires --id")
	}
	request, err := structpb.NewStruct(map[string]any{"id": *id})
	if err != nil {
		log.Fatalf("request build error: %v", err)
	}
	callStruct(ctx, conn, rpccontract.MethodGetJob, request)
}

func runListJobEvents(ctx context.Context, conn grpc.ClientConnInterface, args []string) {
	flags := flag.NewFlagSet("list-job-events", flag.ExitOnError)
	id := flags.String("id", "", "required")
	_ = flags.Parse(args)

	if *id == "" {
		log.Fatalf("list-job-events requires --id")
	}
	request, err := structpb.NewStruct(map[string]any{"id": *id})
	if err != nil {
		log.Fatalf("request build error: %v", err)
	}
	callList(ctx, conn, rpccontract.MethodListJobEvents, request)
}

func runSubmitJob(ctx context.Context, conn grpc.ClientConnInterface, args []string) {
	flags := flag.NewFlagSet("submit-job", flag.ExitOnError)
	operator := flags.String("operator", "", "required")
	target := flags.String("target", "", "optional (defaults to local)")
	paramsJSON := flags.String("params", "{}", "operator params as JSON")
	_ = flags.Parse(args)

	if *operator == "" {
		log.Fatalf("submit-job requires --operator")
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(*paramsJSON), &params); err != nil {
		log.Fatalf("invalid --params JSON: %v", err)
	}
	request, err := structpb.NewStruct(map[string]any{
		"operator": *operator,
		"target":   *target,
		"params":   params,
	})
	if err != nil {
		log.Fatalf("request build error: %v", err)
	}
	callStruct(ctx, conn, rpccontract.MethodSubmitJob, request)
}

func runAddSamples(ctx context.Context, conn grpc.ClientConnInterface, args []string) {
	flags := flag.NewFlagSet("add-samples", flag.ExitOnError)
	tags := flags.String("tags", "", "comma-separated tags for every sample")
	_ = flags.Parse(args)

	paths := flags.Args()
	if len(paths) == 0 {
		log.Fatalf("add-samples requires at least one filepath argument")
	}
	samples := make([]any, 0, len(paths))
	for _, path := range paths {
		sample := map[string]any{"filepath": path}
		if *tags != "" {
			sample["tags"] = toAnySlice(strings.Split(*tags, ","))
		}
		samples = append(samples, sample)
	}
	request, err := structpb.NewStruct(map[string]any{"samples": samples})
	if err != nil {
		log.Fatalf("request build error: %v", err)
	}
	callList(ctx, conn, rpccontract.MethodAddSamples, request)
}

func runTagSamples(ctx context.Context, conn grpc.ClientConnInterface, args []string) {
	flags := flag.NewFlagSet("tag-samples", flag.ExitOnError)
	tags := flags.String("tags", "", "comma-separated tags to apply (required)")
	_ = flags.Parse(args)

	ids := flags.Args()
	if *tags == "" || len(ids) == 0 {
		log.Fatalf("tag-samples requires --tags and at least one sample id")
	}
	request, err := structpb.NewStruct(map[string]any{
		"sample_ids": toAnySlice(ids),
		"tags":       toAnySlice(strings.Split(*tags, ",")),
	})
	if err != nil {
		log.Fatalf("request build error: %v", err)
	}
	callStruct(ctx, conn, rpccontract.MethodTagSamples, request)
}

func toAnySlice(items []string) []any {
	out := make([]any, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}

func callStruct(ctx context.Context, conn grpc.ClientConnInterface, method string, request any) {
	response := &structpb.Struct{}
	if err := conn.Invoke(ctx, method, request, response); err != nil {
		log.Fatalf("rpc error %s: %v", method, err)
	}
	printJSON(response.AsMap())
}

func callList(ctx context.Context, conn grpc.ClientConnInterface, method string, request any) {
	response := &structpb.ListValue{}
	if err := conn.Invoke(ctx, method, request, response); err != nil {
		log.Fatalf("rpc error %s: %v", method, err)
	}
	printJSON(response.AsSlice())
}

func printJSON(value any) {
	serialized, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		log.Fatalf("encode error: %v", err)
	}
	fmt.Println(string(serialized))
}

func usage() {
	fmt.Print(`Tuner hub gRPC CLI

Usage:
  yolotuner-cli [--addr 127.0.0.1:50051] [--token ...] <command> [flags]

Commands:
  health
  tag-counts
  count-samples
  list-targets
  list-jobs
  get-job --id "job_..."
  list-job-events --id "job_..."
  submit-job --operator model_fine_tuner|apply_remote_model [--target NAME] [--params '{"det_field":"ground_truth"}']
  add-samples [--tags train,val] FILEPATH ...
  tag-samples --tags train SAMPLE_ID ...
`)
}
