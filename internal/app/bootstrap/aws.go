package bootstrap

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// AWSLoader loads the AWS SDK configuration on first use, so deployments
// that never touch SQS, DynamoDB, Bedrock or SES need no credentials.
type AWSLoader struct {
	load func(context.Context) (aws.Config, error)

	once sync.Once
	cfg  aws.Config
	err  error
}

// NewAWSLoader wraps a config loader such as mainconfig.LoadAWSConfig.
func NewAWSLoader(load func(context.Context) (aws.Config, error)) *AWSLoader {
	return &AWSLoader{load: load}
}

// Load returns the memoized configuration.
func (l *AWSLoader) Load(ctx context.Context) (aws.Config, error) {
	if l == nil || l.load == nil {
		return aws.Config{}, fmt.Errorf("bootstrap: aws config loader not configured")
	}
	l.once.Do(func() {
		l.cfg, l.err = l.load(ctx)
		if l.err != nil {
			l.err = fmt.Errorf("bootstrap: load aws config: %w", l.err)
		}
	})
	return l.cfg, l.err
}
