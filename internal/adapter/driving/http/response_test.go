package httphandler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ericfisherdev/ballotbox/internal/domain/model"
)

func TestToTallyResponse(t *testing.T) {
	tests := []struct {
		name  string
		tally model.Tally
		want  map[string]int
	}{
		{
			name:  "missing answers read as zero",
			tally: model.Tally{ElectionID: "agm-2026", Total: 2, Counts: map[model.Answer]int{model.AnswerYes: 2}},
			want:  map[string]int{"yes": 2, "no": 0, "abstain": 0},
		},
		{
			name: "unknown answers are dropped",
			tally: model.Tally{ElectionID: "agm-2026", Total: 4, Counts: map[model.Answer]int{
				model.AnswerYes: 1, model.AnswerNo: 1, model.AnswerAbstain: 1, "maybe": 1,
			}},
			want: map[string]int{"yes": 1, "no": 1, "abstain": 1},
		},
		{
			name:  "nil counts",
			tally: model.Tally{ElectionID: "agm-2026"},
			want:  map[string]int{"yes": 0, "no": 0, "abstain": 0},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := toTallyResponse(tc.tally)
			assert.Equal(t, "agm-2026", got.ElectionID)
			assert.Equal(t, tc.tally.Total, got.Total)
			assert.Equal(t, tc.want, got.CountsByAnswer)
		})
	}
}
