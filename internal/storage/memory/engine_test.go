package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	"tenantguard/internal/sentinel"
	"tenantguard/internal/storage"
)

// EngineSuite tests the in-memory storage engine.
//
// Justification: The in-memory engine backs every gateway and auditor unit test.
// Filter semantics (SQL-style NULL handling, in, ordering) must match what the
// Postgres adapter does or those tests prove nothing.
type EngineSuite struct {
	suite.Suite
	engine *Engine
	ctx    context.Context
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.engine = New()
	s.ctx = context.Background()
	for _, row := range []storage.Row{
		{"id": "s1", "tenant_id": "A", "full_name": "Ada", "grade": 3},
		{"id": "s2", "tenant_id": "A", "full_name": "Bo", "grade": 5},
		{"id": "s3", "tenant_id": "B", "full_name": "Cy", "grade": 4},
		{"id": "s4", "tenant_id": nil, "full_name": "Di", "grade": 1},
	} {
		_, err := s.engine.Insert(s.ctx, "students", row)
		s.Require().NoError(err)
	}
}

func (s *EngineSuite) ids(rows []storage.Row) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ID())
	}
	return out
}

func (s *EngineSuite) TestQuery() {
	s.Run("eq filter", func() {
		rows, err := s.engine.Query(s.ctx, storage.Query{Table: "students", Filter: storage.Filter{storage.Eq("tenant_id", "A")}})
		s.Require().NoError(err)
		s.Equal([]string{"s1", "s2"}, s.ids(rows))
	})

	s.Run("neq never matches null", func() {
		rows, err := s.engine.Query(s.ctx, storage.Query{Table: "students", Filter: storage.Filter{{Column: "tenant_id", Op: storage.OpNeq, Value: "A"}}})
		s.Require().NoError(err)
		s.Equal([]string{"s3"}, s.ids(rows))
	})

	s.Run("is_null", func() {
		rows, err := s.engine.Query(s.ctx, storage.Query{Table: "students", Filter: storage.Filter{storage.IsNull("tenant_id")}})
		s.Require().NoError(err)
		s.Equal([]string{"s4"}, s.ids(rows))
	})

	s.Run("in and range comparisons", func() {
		rows, err := s.engine.Query(s.ctx, storage.Query{Table: "students", Filter: storage.Filter{
			storage.In("id", "s1", "s2", "s3"),
			{Column: "grade", Op: storage.OpGte, Value: 4},
		}})
		s.Require().NoError(err)
		s.Equal([]string{"s2", "s3"}, s.ids(rows))
	})

	s.Run("order limit offset", func() {
		rows, err := s.engine.Query(s.ctx, storage.Query{
			Table:   "students",
			OrderBy: []storage.Order{{Column: "grade", Descending: true}},
			Offset:  1,
			Limit:   2,
		})
		s.Require().NoError(err)
		s.Equal([]string{"s3", "s1"}, s.ids(rows))
	})

	s.Run("returned rows are copies", func() {
		rows, err := s.engine.Query(s.ctx, storage.Query{Table: "students", Filter: storage.Filter{storage.Eq("id", "s1")}})
		s.Require().NoError(err)
		rows[0]["full_name"] = "mutated"

		again, err := s.engine.Query(s.ctx, storage.Query{Table: "students", Filter: storage.Filter{storage.Eq("id", "s1")}})
		s.Require().NoError(err)
		s.Equal("Ada", again[0]["full_name"])
	})

	s.Run("invalid filter", func() {
		_, err := s.engine.Query(s.ctx, storage.Query{Table: "students", Filter: storage.Filter{{Column: "x", Op: "like"}}})
		s.ErrorIs(err, sentinel.ErrInvalidInput)
	})
}

func (s *EngineSuite) TestInsert() {
	s.Run("generates id", func() {
		row, err := s.engine.Insert(s.ctx, "classes", storage.Row{"name": "7B"})
		s.Require().NoError(err)
		s.NotEmpty(row.ID())
		s.NotNil(row["created_at"])
	})

	s.Run("duplicate id", func() {
		_, err := s.engine.Insert(s.ctx, "students", storage.Row{"id": "s1"})
		s.ErrorIs(err, sentinel.ErrAlreadyUsed)
	})
}

func (s *EngineSuite) TestUpdateDeleteCount() {
	updated, err := s.engine.Update(s.ctx, "students", storage.Filter{storage.Eq("tenant_id", "A")}, storage.Row{"grade": 9})
	s.Require().NoError(err)
	s.Len(updated, 2)
	s.Equal(9, updated[0]["grade"])

	n, err := s.engine.Count(s.ctx, "students", storage.Filter{{Column: "grade", Op: storage.OpEq, Value: 9}})
	s.Require().NoError(err)
	s.Equal(2, n)

	removed, err := s.engine.Delete(s.ctx, "students", storage.Filter{storage.Eq("id", "s3")})
	s.Require().NoError(err)
	s.Equal(1, removed)

	n, err = s.engine.Count(s.ctx, "students", nil)
	s.Require().NoError(err)
	s.Equal(3, n)
}

func (s *EngineSuite) TestRunInTx() {
	s.Run("rollback restores state", func() {
		boom := errors.New("boom")
		err := s.engine.RunInTx(s.ctx, func(ctx context.Context) error {
			if _, err := s.engine.Insert(ctx, "notifications", storage.Row{"id": "n1"}); err != nil {
				return err
			}
			return boom
		})
		s.ErrorIs(err, boom)

		n, err := s.engine.Count(s.ctx, "notifications", nil)
		s.Require().NoError(err)
		s.Zero(n)
	})

	s.Run("commit keeps writes", func() {
		err := s.engine.RunInTx(s.ctx, func(ctx context.Context) error {
			_, err := s.engine.Insert(ctx, "notifications", storage.Row{"id": "n2"})
			return err
		})
		s.Require().NoError(err)

		n, err := s.engine.Count(s.ctx, "notifications", nil)
		s.Require().NoError(err)
		s.Equal(1, n)
	})

	s.Run("nested calls join the outer transaction", func() {
		boom := errors.New("boom")
		err := s.engine.RunInTx(s.ctx, func(ctx context.Context) error {
			inner := s.engine.RunInTx(ctx, func(ctx context.Context) error {
				_, err := s.engine.Insert(ctx, "notifications", storage.Row{"id": "n3"})
				return err
			})
			s.Require().NoError(inner)
			return boom
		})
		s.ErrorIs(err, boom)

		n, err := s.engine.Count(s.ctx, "notifications", storage.Filter{storage.Eq("id", "n3")})
		s.Require().NoError(err)
		s.Zero(n)
	})
}
