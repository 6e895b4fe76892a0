package controlbus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeStation struct {
	hashId string
	fail   bool
}

func (f *fakeStation) HashId() string { return f.hashId }
func (f *fakeStation) Handle(procedure string, payload interface{}) (interface{}, error) {
	if f.fail {
		return nil, errors.New("simulated failure")
	}
	return "ok", nil
}

func TestCallFansOutToAllWhenHashIdsEmpty(t *testing.T) {
	b := New()
	b.Register(&fakeStation{hashId: "a"})
	b.Register(&fakeStation{hashId: "b"})

	result := b.Call(ProcHeartbeat, nil, nil)

	assert.ElementsMatch(t, []string{"a", "b"}, result.HashIdsSucceeded)
	assert.Empty(t, result.HashIdsFailed)
}

func TestCallFansOutOnlyToRequestedHashIds(t *testing.T) {
	b := New()
	b.Register(&fakeStation{hashId: "a"})
	b.Register(&fakeStation{hashId: "b"})

	result := b.Call(ProcHeartbeat, nil, []string{"a"})

	assert.Equal(t, []string{"a"}, result.HashIdsSucceeded)
}

func TestCallAggregatesFailures(t *testing.T) {
	b := New()
	b.Register(&fakeStation{hashId: "a", fail: true})
	b.Register(&fakeStation{hashId: "b"})

	result := b.Call(ProcHeartbeat, nil, nil)

	assert.Equal(t, []string{"b"}, result.HashIdsSucceeded)
	assert.Equal(t, []string{"a"}, result.HashIdsFailed)
	assert.Len(t, result.ResponsesFailed, 1)
	assert.Equal(t, "simulated failure", result.ResponsesFailed[0].ErrorMessage)
}

func TestCallReportsUnregisteredHashIdAsFailure(t *testing.T) {
	b := New()
	b.Register(&fakeStation{hashId: "h-A"})

	result := b.Call(ProcHeartbeat, nil, []string{"h-A", "h-B"})

	assert.Equal(t, []string{"h-A"}, result.HashIdsSucceeded)
	assert.Equal(t, []string{"h-B"}, result.HashIdsFailed)
	assert.Len(t, result.ResponsesFailed, 1)
	assert.Contains(t, result.ResponsesFailed[0].ErrorMessage, "h-B")
}

func TestFanOutPayloadTargetsPrefersHashIds(t *testing.T) {
	p := FanOutPayload{HashIds: []string{"x", "y"}, HashId: "z"}
	assert.Equal(t, []string{"x", "y"}, p.Targets())

	p2 := FanOutPayload{HashId: "z"}
	assert.Equal(t, []string{"z"}, p2.Targets())
}
