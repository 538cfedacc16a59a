//go:build integration

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"credtrust/pkg/testutil/containers"
)

func TestPostgresStoreSuite(t *testing.T) {
	pg := containers.GetManager().GetPostgres(t)
	suite.Run(t, &StoreSuite{newStore: func(t *testing.T) Store {
		pg.Reset(t)
		return NewPostgres(pg.DB, WithSealer(testSealer(t)))
	}})
}

func TestRedisStoreSuite(t *testing.T) {
	rc := containers.GetManager().GetRedis(t)
	suite.Run(t, &StoreSuite{newStore: func(t *testing.T) Store {
		if err := rc.FlushAll(context.Background()); err != nil {
			t.Fatalf("flush: %v", err)
		}
		return NewRedis(rc.Client, WithSealer(testSealer(t)))
	}})
}
