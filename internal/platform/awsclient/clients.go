package awsclient

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	rdsutils "github.com/aws/aws-sdk-go-v2/feature/rds/auth"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "github.com/lib/pq"
)

// Config for the platform clients. The DB connection authenticates with an
// IAM token, not a static password, so only endpoint/user/name are needed.
type Config struct {
	Profile string // primarily for dev purposes
	Region  string

	S3BucketName string

	DBEndpoint string // e.g. liftingbook.abc123xyz.eu-central-1.rds.amazonaws.com
	DBUser     string // IAM-enabled database user
	DBName     string
	DBPort     int // e.g. 5432
}

// Clients bundles the platform-level AWS resources the lifting book uses:
// the RDS Postgres connection for plan persistence and the S3 client for
// authority-approval letters.
type Clients struct {
	RDS    *RDSClient
	S3     *S3Client
	Config *Config
}

type S3Client struct {
	Client     *s3.Client
	BucketName string
}

// RDSClient encapsulates the PostgreSQL RDS connection with IAM authentication.
type RDSClient struct {
	Client *sql.DB
}

func (c *Config) LoadAWSConfig(ctx context.Context) (*aws.Config, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(c.Region),
		awsconfig.WithSharedConfigProfile(c.Profile),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	return &cfg, nil
}

// NewS3Client creates a new S3 client bound to the approval-letter bucket.
func NewS3Client(ctx context.Context, cfg *Config) (*S3Client, error) {
	awsCfg, err := cfg.LoadAWSConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for S3 client: %w", err)
	}

	return &S3Client{
		Client:     s3.NewFromConfig(*awsCfg),
		BucketName: cfg.S3BucketName,
	}, nil
}

// NewRDSClient opens the PostgreSQL connection using an RDS IAM auth token
// as the password.
func (c *Config) NewRDSClient(ctx context.Context) (*RDSClient, error) {
	awsCfg, err := c.LoadAWSConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for RDS: %w", err)
	}

	endpointWithPort := fmt.Sprintf("%s:%d", c.DBEndpoint, c.DBPort)

	// Token generation is performed locally, not an API call.
	authToken, err := rdsutils.BuildAuthToken(
		ctx,
		endpointWithPort,
		c.Region,
		c.DBUser,
		awsCfg.Credentials,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create authentication token: %w", err)
	}

	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s/%s?sslmode=require",
		url.QueryEscape(c.DBUser),
		url.QueryEscape(authToken),
		endpointWithPort,
		url.QueryEscape(c.DBName),
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open DB connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping RDS PostgreSQL database: %w", err)
	}

	return &RDSClient{Client: db}, nil
}

// NewClients creates the RDS and S3 clients together. The S3 client is
// optional: with no bucket configured, approval letters are simply not
// archived.
func NewClients(ctx context.Context, cfg *Config) (*Clients, error) {
	clients := &Clients{Config: cfg}

	if cfg.S3BucketName != "" {
		s3Client, err := NewS3Client(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("error creating S3 client: %w", err)
		}
		clients.S3 = s3Client
	}

	rdsClient, err := cfg.NewRDSClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("error creating RDS client: %w", err)
	}
	clients.RDS = rdsClient

	return clients, nil
}
