//go:build integration

package revocation_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"tenantguard/internal/identity/revocation"
	"tenantguard/internal/platform/config"
	redisclient "tenantguard/internal/platform/redis"
	"tenantguard/pkg/testutil/containers"
)

// RedisRevocationSuite exercises the shared revocation list on a real Redis.
//
// Justification: revocations must be visible to every instance and must
// expire with their TTL. Both are Redis behaviors a fake would only assert.
type RedisRevocationSuite struct {
	suite.Suite
	ctx    context.Context
	client *redisclient.Client
	list   *revocation.Redis
}

func TestRedisRevocationSuite(t *testing.T) {
	suite.Run(t, new(RedisRevocationSuite))
}

func (s *RedisRevocationSuite) SetupSuite() {
	s.ctx = context.Background()
	rc := containers.GetManager().GetRedis(s.T())
	client, err := redisclient.New(config.RedisConfig{
		URL:          rc.URL,
		PoolSize:     4,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	s.Require().NoError(err)
	s.client = client
	s.list = revocation.NewRedis(client.Client, "test:revoked:"+uuid.NewString()+":")
}

func (s *RedisRevocationSuite) TearDownSuite() {
	_ = s.client.Close()
}

func (s *RedisRevocationSuite) TestRevokeIsSharedAcrossInstances() {
	sessionID := uuid.NewString()
	s.Require().NoError(s.list.Revoke(s.ctx, sessionID, time.Minute))

	mirrorA := revocation.NewResilient(s.list, revocation.NewInMemory())
	mirrorB := revocation.NewResilient(s.list, revocation.NewInMemory())

	revoked, err := mirrorA.IsRevoked(s.ctx, sessionID)
	s.Require().NoError(err)
	s.True(revoked)

	revoked, err = mirrorB.IsRevoked(s.ctx, uuid.NewString())
	s.Require().NoError(err)
	s.False(revoked)
}

func (s *RedisRevocationSuite) TestRevocationExpires() {
	sessionID := uuid.NewString()
	s.Require().NoError(s.list.Revoke(s.ctx, sessionID, time.Second))

	s.Eventually(func() bool {
		revoked, err := s.list.IsRevoked(s.ctx, sessionID)
		return err == nil && !revoked
	}, 5*time.Second, 100*time.Millisecond)
}

func (s *RedisRevocationSuite) TestZeroTTLIsIgnored() {
	sessionID := uuid.NewString()
	s.Require().NoError(s.list.Revoke(s.ctx, sessionID, 0))

	revoked, err := s.list.IsRevoked(s.ctx, sessionID)
	s.Require().NoError(err)
	s.False(revoked)
}
