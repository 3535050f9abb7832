package connector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileOne(t *testing.T, f Filter) RowPredicate {
	t.Helper()
	preds, err := CompileFilters([]Filter{f})
	require.NoError(t, err)
	require.Len(t, preds, 1)
	return preds[0]
}

func TestCompileFilters(t *testing.T) {
	t.Run("eq matches across numeric types", func(t *testing.T) {
		pred := compileOne(t, Filter{Column: "age", Op: "eq", Value: 30})

		assert.True(t, pred(Row{"age": 30}))
		assert.True(t, pred(Row{"age": float64(30)}))
		assert.True(t, pred(Row{"age": "30"}))
		assert.False(t, pred(Row{"age": 31}))
	})

	t.Run("ne", func(t *testing.T) {
		pred := compileOne(t, Filter{Column: "status", Op: "ne", Value: "inactive"})

		assert.True(t, pred(Row{"status": "active"}))
		assert.False(t, pred(Row{"status": "inactive"}))
	})

	t.Run("ordered ops reject missing and nil values", func(t *testing.T) {
		pred := compileOne(t, Filter{Column: "score", Op: "gt", Value: 10})

		assert.True(t, pred(Row{"score": 11}))
		assert.False(t, pred(Row{"score": 10}))
		assert.False(t, pred(Row{"score": nil}))
		assert.False(t, pred(Row{}))
	})

	t.Run("gte lte lt", func(t *testing.T) {
		gte := compileOne(t, Filter{Column: "n", Op: "gte", Value: 5})
		lte := compileOne(t, Filter{Column: "n", Op: "lte", Value: 5})
		lt := compileOne(t, Filter{Column: "n", Op: "lt", Value: 5})

		assert.True(t, gte(Row{"n": 5}))
		assert.True(t, lte(Row{"n": 5}))
		assert.False(t, lt(Row{"n": 5}))
		assert.True(t, lt(Row{"n": 4}))
	})

	t.Run("string ordering", func(t *testing.T) {
		pred := compileOne(t, Filter{Column: "name", Op: "lt", Value: "m"})

		assert.True(t, pred(Row{"name": "alice"}))
		assert.False(t, pred(Row{"name": "zoe"}))
	})

	t.Run("in and not_in", func(t *testing.T) {
		in := compileOne(t, Filter{Column: "region", Op: "in", Value: []interface{}{"eu", "us"}})
		notIn := compileOne(t, Filter{Column: "region", Op: "not_in", Value: []interface{}{"eu", "us"}})

		assert.True(t, in(Row{"region": "eu"}))
		assert.False(t, in(Row{"region": "apac"}))
		assert.False(t, notIn(Row{"region": "us"}))
		assert.True(t, notIn(Row{"region": "apac"}))
	})

	t.Run("unknown op rejected", func(t *testing.T) {
		_, err := CompileFilters([]Filter{{Column: "x", Op: "like", Value: "%a%"}})

		require.Error(t, err)
		assert.True(t, IsConfigError(err))
	})
}

type sliceSource struct {
	batches []Batch
}

func (s *sliceSource) Read(ctx context.Context, sink Sink) error {
	for _, b := range s.batches {
		if err := sink(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

func (s *sliceSource) Close() error { return nil }

func TestApplyFilters(t *testing.T) {
	src := &sliceSource{batches: []Batch{
		{Table: "users", Rows: []Row{
			{"id": 1, "age": 20},
			{"id": 2, "age": 40},
			{"id": 3, "age": 60},
		}},
		{Table: "users", Rows: []Row{
			{"id": 4, "age": 10},
		}},
	}}
	preds, err := CompileFilters([]Filter{{Column: "age", Op: "gte", Value: 40}})
	require.NoError(t, err)

	var got []Row
	err = ApplyFilters(src, preds).Read(context.Background(), func(ctx context.Context, b Batch) error {
		got = append(got, b.Rows...)
		return nil
	})
	require.NoError(t, err)

	// One batch became empty and was skipped entirely.
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0]["id"])
	assert.Equal(t, 3, got[1]["id"])
}
