package storage

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"
)

// cqlSession is the slice of a gocql session the adapter needs.
type cqlSession interface {
	Exec(ctx context.Context, stmt string, values ...interface{}) error
	ExecBatch(ctx context.Context, cons gocql.Consistency, stmt string, rows [][]interface{}) error
	Scan(ctx context.Context, stmt string, values []interface{}, dest ...interface{}) error
	Close()
}

type gocqlSession struct {
	session *gocql.Session
	cons    gocql.Consistency
}

func dialScylla(cfg ScyllaConfig) (cqlSession, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.ProtoVersion = 4
	cluster.Consistency = cfg.Consistency
	cluster.Timeout = cfg.Timeout
	cluster.ConnectTimeout = cfg.Timeout
	cluster.PoolConfig.HostSelectionPolicy = gocql.RoundRobinHostPolicy()
	if cfg.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("create scylla session: %w", err)
	}
	return &gocqlSession{session: session, cons: cfg.Consistency}, nil
}

func (s *gocqlSession) Exec(ctx context.Context, stmt string, values ...interface{}) error {
	return s.session.Query(stmt, values...).WithContext(ctx).Consistency(s.cons).Exec()
}

func (s *gocqlSession) ExecBatch(ctx context.Context, cons gocql.Consistency, stmt string, rows [][]interface{}) error {
	batch := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.SetConsistency(cons)
	for _, row := range rows {
		batch.Query(stmt, row...)
	}
	return s.session.ExecuteBatch(batch)
}

func (s *gocqlSession) Scan(ctx context.Context, stmt string, values []interface{}, dest ...interface{}) error {
	return s.session.Query(stmt, values...).WithContext(ctx).Consistency(s.cons).Scan(dest...)
}

func (s *gocqlSession) Close() {
	s.session.Close()
}
