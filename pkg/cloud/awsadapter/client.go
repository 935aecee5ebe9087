// Package awsadapter implements cloud.Adapter against the real AWS EC2,
// ELBv2, CloudWatch and KMS APIs, grounded on the teacher's
// pkg/provider/s3.Provider: config.LoadDefaultConfig plus per-service
// NewFromConfig clients, with a wrapError step that classifies smithy API
// errors into this package's sentinel kinds.
package awsadapter

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"golang.org/x/time/rate"
)

// Config configures the AWS adapter's credential chain and per-resource
// rate limiting. Most fields are optional; the SDK's own default chain
// resolves region/credentials when left empty.
type Config struct {
	Region          string
	Profile         string
	AccessKeyID     string
	SecretAccessKey string

	// TagRateLimit bounds the adapter-side rate of per-resource fan-out
	// calls (tag/untag, alarm rewrite), independent of the SDK's own retry
	// middleware, which only covers a single call's transient failures.
	// Grounded on pkg/crawler.Crawler's use of golang.org/x/time/rate.
	TagRateLimit float64
}

// Adapter is the AWS-backed cloud.Adapter implementation.
type Adapter struct {
	ec2    *ec2.Client
	elbv2  *elasticloadbalancingv2.Client
	cw     *cloudwatch.Client
	kms    *kms.Client
	imds   *imds.Client
	limiter *rate.Limiter
}

// New builds an Adapter from the AWS default credential chain, optionally
// overridden by cfg.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	limit := cfg.TagRateLimit
	if limit <= 0 {
		limit = 10
	}

	return &Adapter{
		ec2:     ec2.NewFromConfig(awsCfg),
		elbv2:   elasticloadbalancingv2.NewFromConfig(awsCfg),
		cw:      cloudwatch.NewFromConfig(awsCfg),
		kms:     kms.NewFromConfig(awsCfg),
		imds:    imds.NewFromConfig(awsCfg),
		limiter: rate.NewLimiter(rate.Limit(limit), 1),
	}, nil
}

// wait blocks until the adapter-side rate limiter admits the next call, or
// ctx is cancelled. Used before bulk per-resource fan-out calls only; the
// SDK's own retry middleware already governs single-call backoff.
func (a *Adapter) wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}
