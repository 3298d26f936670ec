package bootstrap

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/wolfman30/whatsapp-concierge/internal/config"
	"github.com/wolfman30/whatsapp-concierge/internal/tenant"
)

// BuildTenantLoader returns an S3 loader for s3://bucket/key locations and
// a file loader otherwise.
func BuildTenantLoader(ctx context.Context, cfg *appconfig.Config, awsLoader *AWSLoader) (tenant.Loader, error) {
	bucket, key, ok := tenant.ParseS3URI(cfg.TenantsFile)
	if !ok {
		return tenant.FileLoader{Path: cfg.TenantsFile}, nil
	}
	awsCfg, err := awsLoader.Load(ctx)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// LocalStack serves buckets path-style.
		o.UsePathStyle = cfg.AWSEndpointOverride != ""
	})
	return tenant.NewS3Loader(client, bucket, key), nil
}
