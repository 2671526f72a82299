package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/zapr"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	ctrl "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/deployforge/engine/internal/archive"
	"github.com/deployforge/engine/internal/builder"
	"github.com/deployforge/engine/internal/command"
	"github.com/deployforge/engine/internal/deployment"
	"github.com/deployforge/engine/internal/engineerr"
	"github.com/deployforge/engine/internal/event"
	"github.com/deployforge/engine/internal/gcprun"
	"github.com/deployforge/engine/internal/metrics"
	"github.com/deployforge/engine/internal/mirror"
	"github.com/deployforge/engine/internal/registry"
	"github.com/deployforge/engine/internal/service"
	"github.com/deployforge/engine/internal/task"
	"github.com/deployforge/engine/internal/terraform"
	apiv1 "github.com/deployforge/engine/pkg/apiv1"
)

var (
	requestPath    string
	registryKind   string
	terraformRoot  string
	buildTimeoutMn int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Drive one EnvironmentEngineRequest to completion",
	Long: `Reads a JSON-encoded EnvironmentEngineRequest from -f, builds and
mirrors any services with a buildable source, applies every service in
spec.md §4.8's ordering (Databases, then Applications/Containers/
HelmCharts, then Jobs, then Routers), and exits with:

  0  every service reached its terminal success state
  1  a user-caused failure (invalid payload, build/job failure)
  2  an infrastructure failure (cluster/cloud API, terraform)
  3  the run was cancelled (SIGINT/SIGTERM)`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&requestPath, "file", "f", "", "Path to the EnvironmentEngineRequest JSON file (required)")
	runCmd.Flags().StringVar(&registryKind, "registry", string(registry.KindGeneric), "Destination container registry kind (DockerHub|AwsEcr|GcpArtifactRegistry|ScalewayCr|GithubCr|Generic)")
	runCmd.Flags().StringVar(&terraformRoot, "terraform-root", "/etc/enginectl/terraform", "Directory holding one Terraform module per managed database kind")
	runCmd.Flags().IntVar(&buildTimeoutMn, "build-timeout-minutes", 30, "Per-service build deadline")
	runCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	if err := requireFile(requestPath, "request file"); err != nil {
		return err
	}

	raw, err := os.ReadFile(requestPath)
	if err != nil {
		return err
	}
	var req apiv1.EnvironmentEngineRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return engineerr.Wrap(engineerr.KindUser, event.Details{}, "parsing request file", err)
	}
	if req.ExecutionID == "" {
		req.ExecutionID = uuid.New().String()
	}
	for _, d := range req.Environment.Databases {
		if service.DatabaseMode(d.Mode) != service.DatabaseModeManaged {
			continue
		}
		if err := service.ValidateManagedDatabase(service.CloudProvider(req.Provider), service.DatabaseKind(d.Kind)); err != nil {
			return engineerr.Wrap(engineerr.KindUser, event.Details{}, err.Error(), err)
		}
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()
	ctrl.SetLogger(zapr.NewLogger(logger))

	details := event.Details{
		OrganizationID: req.OrganizationID,
		ClusterID:      req.ClusterID,
		ExecutionID:    req.ExecutionID,
		Region:         req.Region,
	}
	emitter := event.Emitter{Sink: event.NewZapSink(logger), Details: details}

	target, err := newKubeTarget(kubeconfigOrDefault(kubeconfigPath), kubeContext, req.Environment.Namespace)
	if err != nil {
		return err
	}

	serviceAccount := os.Getenv("ENGINE_REGISTRY_SERVICE_ACCOUNT")
	var credReloader *registry.CredentialReloader
	if credFile := os.Getenv("ENGINE_REGISTRY_SERVICE_ACCOUNT_FILE"); credFile != "" {
		credReloader, err = registry.WatchCredentialFile(credFile)
		if err != nil {
			return engineerr.Wrap(engineerr.KindUser, event.Details{}, "watching registry credentials file", err)
		}
		defer credReloader.Close()
		serviceAccount = string(credReloader.Current())
	}

	regCfg := registry.Config{
		AccessKeyID:     os.Getenv("ENGINE_REGISTRY_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("ENGINE_REGISTRY_SECRET_ACCESS_KEY"),
		Region:          req.Region,
		ProjectID:       req.ProjectID,
		ServiceAccount:  serviceAccount,
		Organization:    os.Getenv("ENGINE_REGISTRY_ORGANIZATION"),
		Username:        os.Getenv("ENGINE_REGISTRY_USERNAME"),
		Token:           os.Getenv("ENGINE_REGISTRY_TOKEN"),
		Endpoint:        os.Getenv("ENGINE_REGISTRY_ENDPOINT"),
	}
	destRegistry, err := registry.New(registry.Kind(registryKind), regCfg)
	if err != nil {
		return engineerr.Wrap(engineerr.KindUser, event.Details{}, "resolving destination registry", err)
	}

	cmdRunner := command.NewRunner()
	mirrorClient := mirror.New(destRegistry, cmdRunner, emitter)
	tfRunner := terraform.New(cmdRunner, terraformRoot, emitter)
	cloudRunRunner := gcprun.New(cmdRunner, emitter)

	bc := buildContext{
		Target:       target,
		ChartsRoot:   chartsRoot,
		Namespace:    req.Environment.Namespace,
		Action:       service.Action(req.Environment.Action),
		Provider:     service.CloudProvider(req.Provider),
		Emitter:      emitter,
		Terraform:    tfRunner,
		CloudRun:     cloudRunRunner,
		DestRegistry: destRegistry,
		SourceImageOf: func(logical string) registry.Image {
			return registry.Image{Name: logical, Tag: "latest"}
		},
		LongID: req.ExecutionID,
	}

	items, buildAndMirror := buildItems(req.Environment, bc)

	builderPool := builder.NewPool(
		builder.Size(buildablesOf(buildAndMirror), req.Environment.MaxParallelBuild, func(msg string) { emitter.Info(event.StageEnvironmentBuild, msg) }),
		destRegistry, cmdRunner, emitter,
	)

	var arc *task.Archive
	if req.Archive != nil {
		arc = &task.Archive{
			Uploader: uploaderFor(*req.Archive),
			Bucket:   req.Archive.Bucket,
			Key:      req.Archive.Key,
		}
	}

	depReq := deployment.Request{
		EnvironmentID:  req.Environment.ID,
		Action:         service.Action(req.Environment.Action),
		Items:          items,
		BuildAndMirror: buildAndMirror,
		BuilderPool:    builderPool,
		Mirror:         mirrorClient,
		SourceUsername: os.Getenv("ENGINE_SOURCE_REGISTRY_USERNAME"),
		SourcePassword: os.Getenv("ENGINE_SOURCE_REGISTRY_PASSWORD"),
		KillerFor:      killerFor,
		Emitter:        emitter,
		Report:         metrics.NewReport(nil),
	}

	runner := task.NewRunner(emitter)
	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		<-ctx.Done()
		runner.Cancel()
	}()

	runner.Start(context.Background(), depReq, req.WorkspaceRoot, arc)
	if err := runner.AwaitTerminated(context.Background()); err != nil {
		return err
	}

	result := runner.Result()
	if result.Err != nil {
		return result.Err
	}
	if result.Deployment.Verdict == deployment.VerdictCancelled {
		return engineerr.New(engineerr.KindCancelled, event.Details{}, "run cancelled before every service reached a terminal state", nil)
	}
	return nil
}

// buildablesOf extracts the builder.Buildable half of each
// BuildAndMirror pair, the shape builder.Size needs.
func buildablesOf(bm []deployment.BuildAndMirror) []builder.Buildable {
	out := make([]builder.Buildable, 0, len(bm))
	for _, b := range bm {
		out = append(out, b.Build)
	}
	return out
}

// killerFor bounds every build at buildTimeoutMn from the moment the
// pool starts running it; the builder pool itself owns cancellation
// propagation via ctx, this only adds the hard wall-clock deadline.
func killerFor(b builder.Buildable) command.Killer {
	return command.Killer{Deadline: time.Now().Add(time.Duration(buildTimeoutMn) * time.Minute)}
}

func uploaderFor(at apiv1.ArchiveTarget) archive.Uploader {
	if at.Provider == "do-spaces" {
		return archive.NewDOSpacesUploader(at.Region, at.AccessKeyID, at.SecretAccessKey)
	}
	return archive.NewS3Uploader(at.Region, at.AccessKeyID, at.SecretAccessKey, at.Endpoint)
}

// signalContext is cancelled on SIGINT/SIGTERM, the trigger for this
// engine's cooperative cancellation path (spec.md §5 "Cancellation").
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

