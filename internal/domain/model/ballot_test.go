package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCoarseTime(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	in := time.Date(2026, 3, 14, 14, 30, 59, 999, loc)

	got := CoarseTime(in)
	assert.Equal(t, time.Date(2026, 3, 14, 12, 30, 0, 0, time.UTC), got)
	assert.Equal(t, time.UTC, got.Location())
}

func TestNewTally(t *testing.T) {
	tally := NewTally("agm")

	assert.Equal(t, "agm", tally.ElectionID)
	assert.Zero(t, tally.Total)
	assert.Equal(t, map[Answer]int{AnswerYes: 0, AnswerNo: 0, AnswerAbstain: 0}, tally.Counts)
}
