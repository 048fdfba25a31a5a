package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/batch"
)

// BatchConfig configures the AWS Batch gateway.
type BatchConfig struct {
	Region        string
	JobQueue      string
	JobDefinition string
}

// batchAPI is the subset of the AWS Batch client used by BatchExecutor.
type batchAPI interface {
	SubmitJob(ctx context.Context, in *batch.SubmitJobInput, opts ...func(*batch.Options)) (*batch.SubmitJobOutput, error)
	DescribeJobs(ctx context.Context, in *batch.DescribeJobsInput, opts ...func(*batch.Options)) (*batch.DescribeJobsOutput, error)
	TerminateJob(ctx context.Context, in *batch.TerminateJobInput, opts ...func(*batch.Options)) (*batch.TerminateJobOutput, error)
}

// BatchExecutor submits runs as AWS Batch jobs. The Batch job id is the
// external reference.
type BatchExecutor struct {
	client batchAPI
	cfg    BatchConfig
	logger *slog.Logger
}

// NewBatchExecutor builds a Batch executor using the default AWS credential
// chain for the configured region.
func NewBatchExecutor(ctx context.Context, cfg BatchConfig, logger *slog.Logger) (*BatchExecutor, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &BatchExecutor{
		client: batch.NewFromConfig(awsCfg),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Name implements Executor.
func (b *BatchExecutor) Name() string { return "awsbatch" }

// Launch submits a Batch job. Workflow parameters are flattened to the
// string map Batch expects; the work and output locations ride along as
// parameters so the job definition can substitute them.
func (b *BatchExecutor) Launch(ctx context.Context, spec LaunchSpec) (string, error) {
	params := make(map[string]string, len(spec.Params)+3)
	for k, v := range spec.Params {
		params[k] = fmt.Sprint(v)
	}
	params["workflow"] = spec.WorkflowName
	params["workdir"] = spec.WorkDir
	params["outdir"] = spec.OutputDir

	out, err := b.client.SubmitJob(ctx, &batch.SubmitJobInput{
		JobName:       aws.String(spec.RunName),
		JobQueue:      aws.String(b.cfg.JobQueue),
		JobDefinition: aws.String(b.cfg.JobDefinition),
		Parameters:    params,
	})
	if err != nil {
		return "", &LaunchError{Executor: b.Name(), Err: err}
	}

	ref := aws.ToString(out.JobId)
	b.logger.Info("batch job submitted", "run_name", spec.RunName, "job_id", ref, "queue", b.cfg.JobQueue)
	return ref, nil
}

// Query describes the Batch job and maps its status onto the canonical enum.
func (b *BatchExecutor) Query(ctx context.Context, externalRef string) (QueryResult, error) {
	out, err := b.client.DescribeJobs(ctx, &batch.DescribeJobsInput{
		Jobs: []string{externalRef},
	})
	if err != nil {
		return QueryResult{}, &QueryError{Executor: b.Name(), Ref: externalRef, Err: err}
	}
	if len(out.Jobs) == 0 {
		return QueryResult{}, &QueryError{
			Executor: b.Name(),
			Ref:      externalRef,
			Err:      fmt.Errorf("batch job %q not found", externalRef),
		}
	}

	detail := out.Jobs[0]
	res := mapResult(string(detail.Status))
	if res.Message == "" && detail.StatusReason != nil {
		res.Message = aws.ToString(detail.StatusReason)
	}
	return res, nil
}

// Cancel terminates the Batch job. Termination also kills a job that is
// still queued, so cancellation works from any non-terminal state.
func (b *BatchExecutor) Cancel(ctx context.Context, externalRef string) error {
	_, err := b.client.TerminateJob(ctx, &batch.TerminateJobInput{
		JobId:  aws.String(externalRef),
		Reason: aws.String("cancelled by requester"),
	})
	if err != nil {
		return &CancelError{Executor: b.Name(), Ref: externalRef, Err: err}
	}
	b.logger.Info("batch job terminated", "job_id", externalRef)
	return nil
}
