//go:build integration

package datastore

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/marmos91/dapper/pkg/directory/directorytest"
)

// Run with: go test -tags=integration ./pkg/datastore/...

func startPostgres(t *testing.T) PostgresConfig {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("dapper_test"),
		postgres.WithUsername("dapper"),
		postgres.WithPassword("dapper"),
		testcontainers.WithWaitStrategyAndDeadline(5*time.Minute,
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return PostgresConfig{
		Host:     host,
		Port:     port.Int(),
		Database: "dapper_test",
		User:     "dapper",
		Password: "dapper",
	}
}

func TestPostgres(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQL(SQLConfig{Type: SQLTypePostgres, Postgres: startPostgres(t)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Import(ctx, directorytest.MFADocument()))
	tree := checkProviderWrites(t, s)

	bar, ok := tree.User("bar")
	require.True(t, ok)
	assert.Equal(t, directorytest.MFASecret, bar.MFA)
	assert.Equal(t, []string{"Dev", "VPN"}, bar.Organizations)
}

func TestS3Localstack(t *testing.T) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "localstack/localstack:3.0",
			ExposedPorts: []string{"4566/tcp"},
			Env: map[string]string{
				"SERVICES":       "s3",
				"GATEWAY_LISTEN": "0.0.0.0:4566",
			},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("4566/tcp"),
				wait.ForHTTP("/_localstack/health").WithPort("4566/tcp"),
			).WithDeadline(3 * time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err, "start localstack container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "4566")
	require.NoError(t, err)

	cfg := S3Config{
		Bucket:          "dapper",
		Key:             "directory.yaml",
		Region:          "us-east-1",
		Endpoint:        fmt.Sprintf("http://%s:%s", host, port.Port()),
		ForcePathStyle:  true,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	}
	p, err := NewS3(ctx, cfg)
	require.NoError(t, err)

	client := p.client.(*s3.Client)
	_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(cfg.Bucket)})
	require.NoError(t, err)
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(cfg.Bucket),
		Key:    aws.String(cfg.Key),
		Body:   bytes.NewReader([]byte(yamlDocument)),
	})
	require.NoError(t, err)

	tree := checkTree(t, p)
	assert.True(t, tree.Config().PosixAccounts)
}
