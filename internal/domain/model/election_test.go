package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestElectionIsOpen(t *testing.T) {
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	end := start.Add(8 * time.Hour)
	e := Election{ID: "agm", Status: ElectionStatusPublished, StartsAt: start, EndsAt: end}

	tests := []struct {
		name   string
		status ElectionStatus
		at     time.Time
		want   bool
	}{
		{name: "before start", status: ElectionStatusPublished, at: start.Add(-time.Second), want: false},
		{name: "at start", status: ElectionStatusPublished, at: start, want: true},
		{name: "mid window", status: ElectionStatusPublished, at: start.Add(time.Hour), want: true},
		{name: "at end", status: ElectionStatusPublished, at: end, want: false},
		{name: "draft", status: ElectionStatusDraft, at: start.Add(time.Hour), want: false},
		{name: "closed", status: ElectionStatusClosed, at: start.Add(time.Hour), want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e.Status = tc.status
			assert.Equal(t, tc.want, e.IsOpen(tc.at))
		})
	}
}

func TestElectionValidate(t *testing.T) {
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	valid := Election{ID: "agm", Status: ElectionStatusPublished, StartsAt: start, EndsAt: start.Add(time.Hour)}
	assert.NoError(t, valid.Validate())

	noID := valid
	noID.ID = ""
	assert.Error(t, noID.Validate())

	badStatus := valid
	badStatus.Status = "archived"
	assert.Error(t, badStatus.Validate())

	inverted := valid
	inverted.EndsAt = start
	assert.Error(t, inverted.Validate())
}

func TestElectionIsClosed(t *testing.T) {
	assert.True(t, Election{Status: ElectionStatusClosed}.IsClosed())
	assert.False(t, Election{Status: ElectionStatusPublished}.IsClosed())
}

func TestAnswerValid(t *testing.T) {
	for _, a := range Answers {
		assert.True(t, a.Valid(), a)
	}
	assert.False(t, Answer("maybe").Valid())
	assert.False(t, Answer("YES").Valid())
	assert.False(t, Answer("").Valid())
}
