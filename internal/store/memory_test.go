package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/air-quality-collector/internal/airquality"
)

var base = time.Date(2025, 4, 1, 1, 30, 0, 0, time.UTC)

func report(id string, startedAt time.Time) airquality.Report {
	return airquality.Report{ID: id, StartedAt: startedAt}
}

func ids(reports []airquality.Report) []string {
	out := make([]string, len(reports))
	for i, r := range reports {
		out[i] = r.ID
	}
	return out
}

func TestMemoryStore_Empty(t *testing.T) {
	s := NewMemoryStore(0, 0)

	_, err := s.Latest()
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Get("x")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Range(base, base.Add(time.Hour))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_KeepsStartOrder(t *testing.T) {
	s := NewMemoryStore(0, 0)
	s.Save(report("b", base.Add(2*time.Hour)))
	s.Save(report("a", base))
	s.Save(report("c", base.Add(3*time.Hour)))

	latest, err := s.Latest()
	require.NoError(t, err)
	assert.Equal(t, "c", latest.ID)

	all, err := s.Range(base, base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(all))
}

func TestMemoryStore_Get(t *testing.T) {
	s := NewMemoryStore(0, 0)
	s.Save(report("a", base))
	s.Save(report("b", base.Add(time.Hour)))

	got, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, base, got.StartedAt)
}

func TestMemoryStore_RangeIsInclusive(t *testing.T) {
	s := NewMemoryStore(0, 0)
	for i, id := range []string{"a", "b", "c", "d"} {
		s.Save(report(id, base.Add(time.Duration(i)*time.Hour)))
	}

	got, err := s.Range(base.Add(time.Hour), base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, ids(got))
}

func TestMemoryStore_MaxHistory(t *testing.T) {
	s := NewMemoryStore(2, 0)
	for i, id := range []string{"a", "b", "c"} {
		s.Save(report(id, base.Add(time.Duration(i)*time.Hour)))
	}

	_, err := s.Get("a")
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := s.Range(base, base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, ids(all))
}

func TestMemoryStore_MaxAge(t *testing.T) {
	s := NewMemoryStore(0, 48*time.Hour)
	s.now = func() time.Time { return base.Add(72 * time.Hour) }

	s.Save(report("old", base))
	s.Save(report("recent", base.Add(48*time.Hour)))

	_, err := s.Get("old")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get("recent")
	assert.NoError(t, err)
}

func TestMemoryStore_MaxAgeKeepsNewest(t *testing.T) {
	s := NewMemoryStore(0, time.Hour)
	s.now = func() time.Time { return base.Add(30 * 24 * time.Hour) }

	s.Save(report("a", base))
	s.Save(report("b", base.Add(time.Hour)))

	latest, err := s.Latest()
	require.NoError(t, err)
	assert.Equal(t, "b", latest.ID)

	_, err = s.Get("a")
	assert.ErrorIs(t, err, ErrNotFound)
}
