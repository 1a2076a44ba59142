package publisher

import (
	"context"
	stderrors "errors"
	"sort"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"personrelay/internal/broker"
	"personrelay/internal/config"
	"personrelay/internal/logger"
	"personrelay/internal/person"
)

func TestPartition(t *testing.T) {
	tests := []struct {
		name    string
		total   int
		workers int
		want    []Range
	}{
		{name: "even", total: 10, workers: 10, want: []Range{
			{0, 1}, {1, 2}, {2, 3}, {3, 4}, {4, 5}, {5, 6}, {6, 7}, {7, 8}, {8, 9}, {9, 10},
		}},
		{name: "remainder to last", total: 10, workers: 3, want: []Range{{0, 3}, {3, 6}, {6, 10}}},
		{name: "more workers than ids", total: 7, workers: 10, want: []Range{
			{0, 0}, {0, 0}, {0, 0}, {0, 0}, {0, 0}, {0, 0}, {0, 0}, {0, 0}, {0, 0}, {0, 7},
		}},
		{name: "zero total", total: 0, workers: 2, want: []Range{{0, 0}, {0, 0}}},
		{name: "single worker", total: 5, workers: 1, want: []Range{{0, 5}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Partition(tt.total, tt.workers)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPartition_CoversRangeExactly(t *testing.T) {
	for total := 0; total <= 40; total++ {
		for workers := 1; workers <= 12; workers++ {
			ranges, err := Partition(total, workers)
			require.NoError(t, err)

			seen := make([]int, total)
			for _, r := range ranges {
				for id := r.Start; id < r.End; id++ {
					seen[id]++
				}
			}
			for id, n := range seen {
				assert.Equal(t, 1, n, "total=%d workers=%d id=%d", total, workers, id)
			}
		}
	}
}

func TestPartition_RejectsNonPositiveWorkers(t *testing.T) {
	_, err := Partition(10, 0)
	assert.Error(t, err)
	_, err = Partition(10, -1)
	assert.Error(t, err)
}

func publishedIDs(t *testing.T, q *broker.MemoryQueue) []int {
	t.Helper()
	ids := make([]int, 0)
	for _, body := range q.Bodies() {
		p, err := person.Parse(body)
		require.NoError(t, err)
		id, err := strconv.Atoi(p.PersonID)
		require.NoError(t, err)
		require.NotNil(t, p.Email)
		assert.Equal(t, "user"+p.PersonID+"@example.com", *p.Email)
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func TestPublishRange_EachIDOnce(t *testing.T) {
	for _, tc := range []struct{ total, workers int }{{10, 10}, {7, 10}, {100, 7}} {
		q := broker.NewMemoryQueue()
		pub := NewPublisher(q, config.PublisherConfig{}, logger.NopLogger())

		report, err := pub.PublishRange(context.Background(), tc.total, tc.workers)
		require.NoError(t, err)
		assert.Equal(t, Report{Sent: tc.total}, report)

		want := make([]int, tc.total)
		for i := range want {
			want[i] = i
		}
		assert.Equal(t, want, publishedIDs(t, q), "total=%d workers=%d", tc.total, tc.workers)
	}
}

func TestPublishRange_SendFailureContinues(t *testing.T) {
	q := broker.NewMemoryQueue()
	q.OnSend(func(body []byte) error {
		p, err := person.Parse(body)
		if err == nil && p.PersonID == "3" {
			return stderrors.New("throttled")
		}
		return nil
	})
	pub := NewPublisher(q, config.PublisherConfig{}, logger.NopLogger())

	report, err := pub.PublishRange(context.Background(), 10, 2)

	require.NoError(t, err)
	assert.Equal(t, Report{Sent: 9, Failed: 1}, report)
	assert.Equal(t, []int{0, 1, 2, 4, 5, 6, 7, 8, 9}, publishedIDs(t, q))
}

func TestPublishRange_InvalidWorkers(t *testing.T) {
	pub := NewPublisher(broker.NewMemoryQueue(), config.PublisherConfig{}, logger.NopLogger())
	_, err := pub.PublishRange(context.Background(), 10, 0)
	assert.Error(t, err)
}

func TestPayload_CustomDomain(t *testing.T) {
	pub := NewPublisher(broker.NewMemoryQueue(), config.PublisherConfig{EmailDomain: "test.local"}, logger.NopLogger())

	body, err := pub.Payload(42)
	require.NoError(t, err)
	assert.JSONEq(t, `{"PersonID":"42","Email":"user42@test.local"}`, string(body))
}
