// Package hubclient is the gRPC client for the tuner hub. It implements
// exec.Provider so the panel's submission coordinator can run against it.
package hubclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/prernadh/yolo-model-tuner-runner/internal/domain"
	"github.com/prernadh/yolo-model-tuner-runner/internal/exec"
	"github.com/prernadh/yolo-model-tuner-runner/internal/rpccontract"
	tunerconfig "github.com/prernadh/yolo-model-tuner-runner/internal/tuner/config"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

type Client struct {
	conn          *grpc.ClientConn
	token         string
	requestTO     time.Duration
	retryAttempts int
}

func New(cfg tunerconfig.Config, token string) (*Client, error) {
	cred := grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12}))
	if cfg.GRPCInsecure || strings.HasPrefix(cfg.GRPCAddr, "127.0.0.1:") || strings.HasPrefix(cfg.GRPCAddr, "localhost:") {
		cred = grpc.WithTransportCredentials(insecure.NewCredentials())
	}

	conn, err := grpc.NewClient(
		cfg.GRPCAddr,
		cred,
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                25 * time.Second,
			Timeout:             6 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.GRPCAddr, err)
	}

	// Trigger initial connect attempt on startup.
	conn.Connect()

	return &Client{
		conn:          conn,
		token:         strings.TrimSpace(token),
		requestTO:     cfg.RequestTimeout,
		retryAttempts: cfg.RetryAttempts,
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) GetHealth(ctx context.Context) (map[string]any, error) {
	return c.invokeEmptyStruct(ctx, rpccontract.MethodGetHealth)
}

// TagCounts describes the dataset split sizes as the hub sees them.
type TagCounts struct {
	Counts map[string]int
	Total  int
}

func (c *Client) GetTagCounts(ctx context.Context) (TagCounts, error) {
	response, err := c.invokeEmptyStruct(ctx, rpccontract.MethodGetTagCounts)
	if err != nil {
		return TagCounts{}, err
	}
	out := TagCounts{Counts: map[string]int{}}
	if raw, ok := response["counts"].(map[string]any); ok {
		for tag, value := range raw {
			if number, ok := value.(float64); ok {
				out.Counts[tag] = int(number)
			}
		}
	}
	if number, ok := response["total"].(float64); ok {
		out.Total = int(number)
	}
	return out, nil
}

func (c *Client) CountSamples(ctx context.Context) (int, error) {
	response, err := c.invokeEmptyStruct(ctx, rpccontract.MethodCountSamples)
	if err != nil {
		return 0, err
	}
	number, _ := response["count"].(float64)
	return int(number), nil
}

// ListTargets satisfies exec.Provider.
func (c *Client) ListTargets(ctx context.Context) ([]exec.Target, error) {
	items, err := c.invokeEmptyList(ctx, rpccontract.MethodListTargets)
	if err != nil {
		return nil, err
	}
	targets := make([]exec.Target, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, _ := entry["name"].(string)
		delegated, _ := entry["delegated"].(bool)
		if strings.TrimSpace(name) == "" {
			continue
		}
		targets = append(targets, exec.Target{Name: name, Delegated: delegated})
	}
	return targets, nil
}

// Execute satisfies exec.Provider: it submits the job and reports whether the
// hub ran it inline or queued it.
func (c *Client) Execute(ctx context.Context, request exec.Request) exec.Outcome {
	response, err := c.invokeStruct(ctx, rpccontract.MethodSubmitJob, map[string]any{
		"operator": request.Operator,
		"target":   request.Target,
		"params":   request.Params,
	})
	if err != nil {
		return exec.Failed(err)
	}
	if jobRef, ok := response["job_id"].(string); ok && strings.TrimSpace(jobRef) != "" {
		return exec.Delegated(jobRef)
	}
	result, _ := response["result"].(map[string]any)
	return exec.Immediate(result)
}

func (c *Client) GetJob(ctx context.Context, id string) (domain.Job, error) {
	response, err := c.invokeStruct(ctx, rpccontract.MethodGetJob, map[string]any{"id": id})
	if err != nil {
		return domain.Job{}, err
	}
	return decodeJob(response), nil
}

func (c *Client) ListJobs(ctx context.Context) ([]domain.Job, error) {
	items, err := c.invokeEmptyList(ctx, rpccontract.MethodListJobs)
	if err != nil {
		return nil, err
	}
	jobs := make([]domain.Job, 0, len(items))
	for _, item := range items {
		if entry, ok := item.(map[string]any); ok {
			jobs = append(jobs, decodeJob(entry))
		}
	}
	return jobs, nil
}

func (c *Client) ListJobEvents(ctx context.Context, jobID string) ([]domain.JobEvent, error) {
	request, err := structpb.NewStruct(map[string]any{"id": jobID})
	if err != nil {
		return nil, err
	}
	items, err := c.invokeList(ctx, rpccontract.MethodListJobEvents, request)
	if err != nil {
		return nil, err
	}
	events := make([]domain.JobEvent, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		event := domain.JobEvent{}
		event.ID, _ = entry["id"].(string)
		event.JobID, _ = entry["job_id"].(string)
		event.Type, _ = entry["type"].(string)
		event.Message, _ = entry["message"].(string)
		event.Data, _ = entry["data"].(map[string]any)
		event.CreatedAt, _ = entry["created_at"].(string)
		events = append(events, event)
	}
	return events, nil
}

func (c *Client) AddSamples(ctx context.Context, samples []map[string]any) (int, error) {
	payload := make([]any, 0, len(samples))
	for _, sample := range samples {
		payload = append(payload, sample)
	}
	request, err := structpb.NewStruct(map[string]any{"samples": payload})
	if err != nil {
		return 0, err
	}
	items, err := c.invokeList(ctx, rpccontract.MethodAddSamples, request)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

func (c *Client) TagSamples(ctx context.Context, sampleIDs, tags []string) (int, error) {
	response, err := c.invokeStruct(ctx, rpccontract.MethodTagSamples, map[string]any{
		"sample_ids": toAnySlice(sampleIDs),
		"tags":       toAnySlice(tags),
	})
	if err != nil {
		return 0, err
	}
	updated, _ := response["updated"].(float64)
	return int(updated), nil
}

func decodeJob(entry map[string]any) domain.Job {
	job := domain.Job{}
	job.ID, _ = entry["id"].(string)
	job.Operator, _ = entry["operator"].(string)
	job.Target, _ = entry["target"].(string)
	job.Params, _ = entry["params"].(map[string]any)
	job.Status, _ = entry["status"].(string)
	job.Result, _ = entry["result"].(map[string]any)
	job.LastError, _ = entry["last_error"].(string)
	job.CreatedAt, _ = entry["created_at"].(string)
	job.UpdatedAt, _ = entry["updated_at"].(string)
	return job
}

func toAnySlice(items []string) []any {
	out := make([]any, 0, len(items))
	for _, item := range items {
		out = append(out, item)
	}
	return out
}

func (c *Client) invokeStruct(ctx context.Context, method string, payload map[string]any) (map[string]any, error) {
	request, err := structpb.NewStruct(payload)
	if err != nil {
		return nil, err
	}

	var response map[string]any
	err = c.invoke(ctx, method, request, func() (any, func() error) {
		out := &structpb.Struct{}
		return out, func() error {
			response = out.AsMap()
			return nil
		}
	})
	return response, err
}

func (c *Client) invokeEmptyStruct(ctx context.Context, method string) (map[string]any, error) {
	var response map[string]any
	err := c.invoke(ctx, method, &emptypb.Empty{}, func() (any, func() error) {
		out := &structpb.Struct{}
		return out, func() error {
			response = out.AsMap()
			return nil
		}
	})
	return response, err
}

func (c *Client) invokeEmptyList(ctx context.Context, method string) ([]any, error) {
	return c.invokeList(ctx, method, &emptypb.Empty{})
}

func (c *Client) invokeList(ctx context.Context, method string, request any) ([]any, error) {
	var response []any
	err := c.invoke(ctx, method, request, func() (any, func() error) {
		out := &structpb.ListValue{}
		return out, func() error {
			response = out.AsSlice()
			return nil
		}
	})
	return response, err
}

// invoke runs one unary call with auth metadata, per-call timeout, and
// bounded retries on transient codes.
func (c *Client) invoke(ctx context.Context, method string, request any, newResponse func() (any, func() error)) error {
	attempts := c.retryAttempts
	if attempts < 1 {
		attempts = 1
	}
	// Writes are not idempotent; a retried SubmitJob could queue twice.
	if _, isWrite := rpccontract.WriteMethods[method]; isWrite {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.requestTO)
		callCtx = c.withAuth(callCtx)

		response, capture := newResponse()
		invokeErr := c.conn.Invoke(callCtx, method, request, response)
		cancel()
		if invokeErr == nil {
			return capture()
		}
		lastErr = invokeErr
		if !isRetryable(invokeErr) || attempt == attempts {
			break
		}
		time.Sleep(time.Duration(attempt) * 250 * time.Millisecond)
	}
	return lastErr
}

func (c *Client) withAuth(ctx context.Context) context.Context {
	if strings.TrimSpace(c.token) == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "x-yolotuner-token", c.token)
}

func isRetryable(err error) bool {
	code := status.Code(err)
	switch code {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return true
	default:
		return false
	}
}
