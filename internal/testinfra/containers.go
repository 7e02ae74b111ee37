// Package testinfra starts throwaway infrastructure containers for integration tests.
//
// Integration tests run only when FERN_INTEGRATION_TESTS is set and -short is not.
package testinfra

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const EnvIntegration = "FERN_INTEGRATION_TESTS"

// RequireIntegration skips the test unless integration tests are enabled.
func RequireIntegration(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if os.Getenv(EnvIntegration) == "" {
		t.Skipf("set %s to run integration tests", EnvIntegration)
	}
}

type Postgres struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
}

type Endpoint struct {
	Host string
	Port string
}

func (e Endpoint) Addr() string {
	return fmt.Sprintf("%s:%s", e.Host, e.Port)
}

// StartPostgres starts PostgreSQL and terminates it when the test ends.
func StartPostgres(t *testing.T) Postgres {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "fern",
			"POSTGRES_PASSWORD": "fern",
			"POSTGRES_DB":       "fern",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	endpoint := start(t, req, "5432")
	return Postgres{
		Host:     endpoint.Host,
		Port:     endpoint.Port,
		User:     "fern",
		Password: "fern",
		Database: "fern",
	}
}

// StartMemgraph starts Memgraph with its Bolt port exposed.
func StartMemgraph(t *testing.T) Endpoint {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "memgraph/memgraph:latest",
		ExposedPorts: []string{"7687/tcp"},
		WaitingFor: wait.ForLog("Server is fully armed and operational").
			WithStartupTimeout(60 * time.Second),
	}

	return start(t, req, "7687")
}

// StartRedis starts Redis.
func StartRedis(t *testing.T) Endpoint {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor: wait.ForLog("Ready to accept connections").
			WithStartupTimeout(30 * time.Second),
	}

	return start(t, req, "6379")
}

func start(t *testing.T, req testcontainers.ContainerRequest, port string) Endpoint {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start %s: %v", req.Image, err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate %s: %v", req.Image, err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to resolve %s host: %v", req.Image, err)
	}

	mapped, err := container.MappedPort(ctx, nat.Port(port))
	if err != nil {
		t.Fatalf("failed to resolve %s port: %v", req.Image, err)
	}

	return Endpoint{Host: host, Port: mapped.Port()}
}
