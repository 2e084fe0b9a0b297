package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	postgresImage = "postgres:17-alpine"
	mailpitImage  = "axllent/mailpit:latest"

	mailpitSMTP nat.Port = "1025/tcp"
	mailpitAPI  nat.Port = "8025/tcp"
)

// PostgresContainer is a throwaway database for integration tests.
type PostgresContainer struct {
	*postgres.PostgresContainer
	ConnectionString string
}

// NewPostgresContainer starts PostgreSQL and waits until it accepts connections.
func NewPostgresContainer(ctx context.Context) (*PostgresContainer, error) {
	c, err := postgres.Run(ctx, postgresImage,
		postgres.WithDatabase("subtrack"),
		postgres.WithUsername("subtrack"),
		postgres.WithPassword("subtrack"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, fmt.Errorf("start postgres: %w", err)
	}

	dsn, err := c.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = testcontainers.TerminateContainer(c)
		return nil, fmt.Errorf("postgres dsn: %w", err)
	}
	return &PostgresContainer{PostgresContainer: c, ConnectionString: dsn}, nil
}

// MailpitContainer is a fake SMTP server whose inbox is readable over HTTP.
type MailpitContainer struct {
	testcontainers.Container
	SMTPHost string
	SMTPPort int
	APIHost  string
	APIPort  int
}

// NewMailpitContainer starts Mailpit with SMTP and API ports mapped.
func NewMailpitContainer(ctx context.Context) (*MailpitContainer, error) {
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        mailpitImage,
			ExposedPorts: []string{string(mailpitSMTP), string(mailpitAPI)},
			Env:          map[string]string{"MP_MAX_MESSAGES": "5000"},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort(mailpitSMTP),
				wait.ForHTTP("/api/v1/info").WithPort(mailpitAPI),
			).WithDeadline(45 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("start mailpit: %w", err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		_ = testcontainers.TerminateContainer(c)
		return nil, fmt.Errorf("mailpit host: %w", err)
	}

	ports := make(map[nat.Port]int, 2)
	for _, p := range []nat.Port{mailpitSMTP, mailpitAPI} {
		mapped, err := c.MappedPort(ctx, p)
		if err != nil {
			_ = testcontainers.TerminateContainer(c)
			return nil, fmt.Errorf("mailpit port %s: %w", p, err)
		}
		ports[p] = mapped.Int()
	}

	return &MailpitContainer{
		Container: c,
		SMTPHost:  host,
		SMTPPort:  ports[mailpitSMTP],
		APIHost:   host,
		APIPort:   ports[mailpitAPI],
	}, nil
}
