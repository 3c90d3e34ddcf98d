package model

import "time"

// BallotTimeGranularity is the precision at which ballot and usage
// timestamps are persisted.
const BallotTimeGranularity = time.Minute

// Ballot is a single recorded vote, keyed by credential hash and never by identity.
type Ballot struct {
	ID             string
	ElectionID     string
	CredentialHash string
	Answer         Answer
	SubmittedAt    time.Time // truncated to BallotTimeGranularity
}

// CoarseTime truncates t to BallotTimeGranularity in UTC.
func CoarseTime(t time.Time) time.Time {
	return t.UTC().Truncate(BallotTimeGranularity)
}

// Tally is the aggregate count of ballots per answer for one election.
type Tally struct {
	ElectionID string
	Total      int
	Counts     map[Answer]int
}

// NewTally returns a Tally with every allowed answer present at zero.
func NewTally(electionID string) Tally {
	counts := make(map[Answer]int, len(Answers))
	for _, a := range Answers {
		counts[a] = 0
	}
	return Tally{ElectionID: electionID, Counts: counts}
}
