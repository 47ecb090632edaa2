// Package cli implements the yolotuner command surface: the interactive
// panel plus one-shot subcommands that talk to the hub directly.
package cli

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/prernadh/yolo-model-tuner-runner/internal/domain"
	"github.com/prernadh/yolo-model-tuner-runner/internal/exec"
	tunerconfig "github.com/prernadh/yolo-model-tuner-runner/internal/tuner/config"
	"github.com/prernadh/yolo-model-tuner-runner/internal/tuner/hubclient"
	"github.com/prernadh/yolo-model-tuner-runner/internal/tuner/ui"
	"github.com/prernadh/yolo-model-tuner-runner/internal/viewfilter"
)

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}

func Run(args []string, commandName string) error {
	log.SetFlags(0)

	cfg, cfgPath, err := tunerconfig.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	if len(args) < 1 {
		return panelCommand(cfg)
	}

	switch args[0] {
	case "panel", "tui":
		return panelCommand(cfg)
	case "train":
		return trainCommand(cfg, args[1:])
	case "apply":
		return applyCommand(cfg, args[1:])
	case "tags":
		return tagsCommand(cfg)
	case "targets":
		return targetsCommand(cfg)
	case "jobs":
		return jobsCommand(cfg, args[1:])
	case "add":
		return addCommand(cfg, args[1:])
	case "tag":
		return tagCommand(cfg, args[1:])
	case "health":
		return healthCommand(cfg)
	default:
		usage(commandName, cfgPath)
		return nil
	}
}

func connect(cfg tunerconfig.Config) (*hubclient.Client, error) {
	return hubclient.New(cfg, tunerconfig.ResolveToken(cfg))
}

// stageLogger is the default filter sink outside an embedding host: it just
// logs the active stages so a panel session leaves a trace of what was viewed.
type stageLogger struct{}

func (stageLogger) SetStages(stages []viewfilter.Stage) {
	if len(stages) == 0 {
		log.Printf("view filter cleared")
		return
	}
	parts := make([]string, 0, len(stages))
	for _, stage := range stages {
		parts = append(parts, fmt.Sprintf("%s(%s)", stage.Kind, strings.Join(stage.Tags, ",")))
	}
	log.Printf("view filter: %s", strings.Join(parts, " -> "))
}

func panelCommand(cfg tunerconfig.Config) error {
	client, err := connect(cfg)
	if err != nil {
		return err
	}
	return ui.Run(ui.Options{
		Config: cfg,
		Client: client,
		Sink:   stageLogger{},
	})
}

func trainCommand(cfg tunerconfig.Config, args []string) error {
	flags := flag.NewFlagSet("train", flag.ContinueOnError)
	flags.SetOutput(os.Stderr)
	detField := flags.String("det-field", cfg.DetField, "detections field to train against")
	weights := flags.String("weights", "", "starting weights path")
	exportURI := flags.String("export", "", "optional export destination for best weights")
	epochs := flags.Int("epochs", 0, "training epochs")
	device := flags.Int("device", 0, "GPU device index")
	target := flags.String("target", "", "execution target (defaults to the hub's choice)")
	follow := flags.Bool("follow", false, "poll a delegated job until it finishes")
	if err := flags.Parse(args); err != nil {
		return err
	}

	params := map[string]any{
		"det_field": strings.TrimSpace(*detField),
		"dataset":   cfg.Dataset,
	}
	if len(cfg.Classes) > 0 {
		params["classes"] = cfg.Classes
	}
	if strings.TrimSpace(*weights) != "" {
		params["weights_path"] = strings.TrimSpace(*weights)
	}
	if strings.TrimSpace(*exportURI) != "" {
		params["export_uri"] = strings.TrimSpace(*exportURI)
	}
	if *epochs > 0 {
		params["epochs"] = *epochs
	}
	if *device > 0 {
		params["target_device_index"] = *device
	}

	return execute(cfg, exec.Request{
		Operator: domain.OperatorFineTune,
		Params:   params,
		Target:   strings.TrimSpace(*target),
	}, *follow)
}

func applyCommand(cfg tunerconfig.Config, args []string) error {
	flags := flag.NewFlagSet("apply", flag.ContinueOnError)
	flags.SetOutput(os.Stderr)
	detField := flags.String("det-field", cfg.DetField, "field to write predictions into")
	weights := flags.String("weights", "", "model weights path (required)")
	conf := flags.Float64("conf", 0, "confidence threshold")
	device := flags.Int("device", 0, "GPU device index")
	target := flags.String("target", "", "execution target (defaults to the hub's choice)")
	follow := flags.Bool("follow", false, "poll a delegated job until it finishes")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*weights) == "" {
		return fmt.Errorf("--weights is required (example: yolotuner apply --weights /models/best.pt)")
	}

	params := map[string]any{
		"det_field":    strings.TrimSpace(*detField),
		"dataset":      cfg.Dataset,
		"weights_path": strings.TrimSpace(*weights),
	}
	if *conf > 0 {
		params["confidence"] = *conf
	}
	if *device > 0 {
		params["target_device_index"] = *device
	}

	return execute(cfg, exec.Request{
		Operator: domain.OperatorApplyModel,
		Params:   params,
		Target:   strings.TrimSpace(*target),
	}, *follow)
}

func execute(cfg tunerconfig.Config, request exec.Request, follow bool) error {
	client, err := connect(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	ctx := context.Background()
	outcome := client.Execute(ctx, request)
	switch outcome.Kind {
	case exec.OutcomeImmediate:
		printResult(outcome.Result)
		return nil
	case exec.OutcomeDelegated:
		fmt.Printf("job queued: %s\n", outcome.JobRef)
		if follow {
			return followJob(ctx, client, outcome.JobRef)
		}
		return nil
	default:
		return outcome.Err
	}
}

func followJob(ctx context.Context, client *hubclient.Client, jobID string) error {
	seen := 0
	for {
		job, err := client.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		events, err := client.ListJobEvents(ctx, jobID)
		if err == nil {
			for _, event := range events[seen:] {
				fmt.Printf("  [%s] %s\n", event.Type, event.Message)
			}
			seen = len(events)
		}
		switch job.Status {
		case domain.JobSucceeded:
			printResult(job.Result)
			return nil
		case domain.JobFailed:
			return fmt.Errorf("job %s failed: %s", jobID, job.LastError)
		}
		time.Sleep(2 * time.Second)
	}
}

func printResult(result map[string]any) {
	if len(result) == 0 {
		fmt.Println("done")
		return
	}
	keys := make([]string, 0, len(result))
	for key := range result {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Printf("%s=%v\n", key, result[key])
	}
}

func tagsCommand(cfg tunerconfig.Config) error {
	client, err := connect(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	counts, err := client.GetTagCounts(context.Background())
	if err != nil {
		return err
	}
	tags := make([]string, 0, len(counts.Counts))
	for tag := range counts.Counts {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	for _, tag := range tags {
		fmt.Printf("%-20s %d\n", tag, counts.Counts[tag])
	}
	fmt.Printf("%-20s %d\n", "total samples", counts.Total)
	return nil
}

func targetsCommand(cfg tunerconfig.Config) error {
	client, err := connect(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	targets, err := client.ListTargets(context.Background())
	if err != nil {
		return err
	}
	for _, target := range targets {
		kind := "immediate"
		if target.Delegated {
			kind = "delegated"
		}
		fmt.Printf("%-20s %s\n", target.Name, kind)
	}
	return nil
}

func jobsCommand(cfg tunerconfig.Config, args []string) error {
	client, err := connect(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	ctx := context.Background()
	if len(args) > 0 {
		job, err := client.GetJob(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("id=%s operator=%s target=%s status=%s\n", job.ID, job.Operator, job.Target, job.Status)
		if job.LastError != "" {
			fmt.Printf("error: %s\n", job.LastError)
		}
		if len(job.Result) > 0 {
			printResult(job.Result)
		}
		events, err := client.ListJobEvents(ctx, job.ID)
		if err != nil {
			return err
		}
		for _, event := range events {
			fmt.Printf("  %s [%s] %s\n", event.CreatedAt, event.Type, event.Message)
		}
		return nil
	}

	jobs, err := client.ListJobs(ctx)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Println("no jobs")
		return nil
	}
	for _, job := range jobs {
		fmt.Printf("%-32s %-20s %-12s %s\n", job.ID, job.Operator, job.Status, job.CreatedAt)
	}
	return nil
}

func addCommand(cfg tunerconfig.Config, args []string) error {
	flags := flag.NewFlagSet("add", flag.ContinueOnError)
	flags.SetOutput(os.Stderr)
	var tags stringList
	flags.Var(&tags, "tag", "tag to attach to every added sample")
	if err := flags.Parse(args); err != nil {
		return err
	}
	paths, err := expandPaths(flags.Args())
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("usage: yolotuner add [--tag TAG ...] FILEPATH|GLOB ...")
	}

	client, err := connect(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	samples := make([]map[string]any, 0, len(paths))
	for _, path := range paths {
		sample := map[string]any{"filepath": path}
		if len(tags) > 0 {
			sample["tags"] = []string(tags)
		}
		samples = append(samples, sample)
	}
	added, err := client.AddSamples(context.Background(), samples)
	if err != nil {
		return err
	}
	fmt.Printf("added %d samples\n", added)
	return nil
}

// expandPaths resolves glob arguments against the filesystem. A literal path
// with no matches passes through untouched; the hub records the filepath as
// given, it does not need the file to exist locally.
func expandPaths(args []string) ([]string, error) {
	paths := make([]string, 0, len(args))
	for _, arg := range args {
		if !strings.ContainsAny(arg, "*?[") {
			paths = append(paths, arg)
			continue
		}
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("bad glob %q: %w", arg, err)
		}
		paths = append(paths, matches...)
	}
	return paths, nil
}

func tagCommand(cfg tunerconfig.Config, args []string) error {
	flags := flag.NewFlagSet("tag", flag.ContinueOnError)
	flags.SetOutput(os.Stderr)
	var tags stringList
	flags.Var(&tags, "tag", "tag to apply (repeatable)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	ids := flags.Args()
	if len(tags) == 0 || len(ids) == 0 {
		return fmt.Errorf("usage: yolotuner tag --tag train SAMPLE_ID ...")
	}

	client, err := connect(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	updated, err := client.TagSamples(context.Background(), ids, []string(tags))
	if err != nil {
		return err
	}
	fmt.Printf("updated %d samples\n", updated)
	return nil
}

func healthCommand(cfg tunerconfig.Config) error {
	client, err := connect(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	health, err := client.GetHealth(context.Background())
	if err != nil {
		return err
	}
	printResult(health)
	return nil
}

func usage(commandName, configPath string) {
	fmt.Printf(`%s - YOLO dataset tuner

Usage:
  %s [panel|tui]
  %s train [--det-field NAME] [--weights PATH] [--export URI] [--epochs N] [--device N] [--target NAME] [--follow]
  %s apply --weights PATH [--det-field NAME] [--conf 0.25] [--device N] [--target NAME] [--follow]
  %s tags
  %s targets
  %s jobs [JOB_ID]
  %s add [--tag TAG ...] FILEPATH|GLOB ...
  %s tag --tag TAG [--tag TAG ...] SAMPLE_ID ...
  %s health

Config file:
  %s
`, commandName, commandName, commandName, commandName, commandName, commandName,
		commandName, commandName, commandName, commandName, configPath)
}
