//go:build integration

package integration

import (
	"context"
	"errors"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

type Env struct {
	PG        *postgres.PostgresContainer
	Kafka     *kafka.KafkaContainer
	Redis     *tcredis.RedisContainer
	PGURL     string
	KAddr     []string
	RedisAddr string
}

// Setup starts postgres, kafka and redis. Containers already started are terminated when
// a later one fails.
func Setup(ctx context.Context) (env *Env, err error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	env = &Env{}
	defer func() {
		if err != nil {
			env.Teardown(context.Background())
			env = nil
		}
	}()

	env.PG, err = postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("stock"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return env, err
	}
	if env.PGURL, err = env.PG.ConnectionString(ctx, "sslmode=disable"); err != nil {
		return env, err
	}

	env.Kafka, err = kafka.Run(ctx,
		"confluentinc/confluent-local:7.5.0",
		kafka.WithClusterID("stock-it"),
	)
	if err != nil {
		return env, err
	}
	if env.KAddr, err = env.Kafka.Brokers(ctx); err != nil {
		return env, err
	}

	env.Redis, err = tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return env, err
	}
	if env.RedisAddr, err = env.Redis.ConnectionString(ctx); err != nil {
		return env, err
	}
	return env, nil
}

func (e *Env) Teardown(ctx context.Context) error {
	var running []testcontainers.Container
	if e.Redis != nil {
		running = append(running, e.Redis)
	}
	if e.Kafka != nil {
		running = append(running, e.Kafka)
	}
	if e.PG != nil {
		running = append(running, e.PG)
	}
	var errs []error
	for _, c := range running {
		errs = append(errs, c.Terminate(ctx))
	}
	return errors.Join(errs...)
}
