package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/openmedi/medirec/internal/infrastructure/monitoring/logging"
)

type CacheTestSuite struct {
	suite.Suite
	client *Client
	mock   redismock.ClientMock
	cache  Cache
}

func (s *CacheTestSuite) SetupTest() {
	db, mock := redismock.NewClientMock()
	s.mock = mock
	s.client = &Client{rdb: db, logger: logging.NewNopLogger()}
	s.cache = NewCache(s.client, logging.NewNopLogger(), WithPrefix("test:"))
}

func (s *CacheTestSuite) TearDownTest() {
	assert.NoError(s.T(), s.mock.ExpectationsWereMet())
}

type verdict struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

func (s *CacheTestSuite) TestGet_Hit() {
	want := verdict{ID: "CHEBI:15365", Label: "aspirin"}
	data, _ := json.Marshal(want)
	s.mock.ExpectGet("test:resolve:aspirin").SetVal(string(data))

	var got verdict
	err := s.cache.Get(context.Background(), "resolve:aspirin", &got)
	s.Require().NoError(err)
	s.Equal(want, got)
}

func (s *CacheTestSuite) TestGet_Miss() {
	s.mock.ExpectGet("test:resolve:unknown").RedisNil()

	var got verdict
	err := s.cache.Get(context.Background(), "resolve:unknown", &got)
	s.ErrorIs(err, ErrCacheMiss)
}

func (s *CacheTestSuite) TestGetOrSet_LoadsOnMiss() {
	s.mock.ExpectGet("test:resolve:ibuprofen").RedisNil()

	loaded := 0
	var got verdict
	err := s.cache.GetOrSet(context.Background(), "resolve:ibuprofen", &got, time.Hour,
		func(context.Context) (interface{}, error) {
			loaded++
			return verdict{ID: "CHEBI:5855", Label: "ibuprofen"}, nil
		})
	s.Require().NoError(err)
	s.Equal(1, loaded)
	s.Equal("CHEBI:5855", got.ID)
}

func (s *CacheTestSuite) TestDelete_NoKeysIsNoop() {
	s.NoError(s.cache.Delete(context.Background()))
}

func TestCacheTestSuite(t *testing.T) {
	suite.Run(t, new(CacheTestSuite))
}
