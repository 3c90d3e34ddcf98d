package model

// ElectionStatus is the lifecycle state of an election.
type ElectionStatus string

const (
	ElectionStatusDraft     ElectionStatus = "draft"
	ElectionStatusPublished ElectionStatus = "published"
	ElectionStatusClosed    ElectionStatus = "closed"
)

// Valid reports whether s is a known lifecycle state.
func (s ElectionStatus) Valid() bool {
	switch s {
	case ElectionStatusDraft, ElectionStatusPublished, ElectionStatusClosed:
		return true
	}
	return false
}

// Answer is a ballot choice. Only the single-question yes/no/abstain form is
// supported.
type Answer string

const (
	AnswerYes     Answer = "yes"
	AnswerNo      Answer = "no"
	AnswerAbstain Answer = "abstain"
)

// Answers lists the allowed answers in display order.
var Answers = []Answer{AnswerYes, AnswerNo, AnswerAbstain}

// Valid reports whether a is a member of the allowed-answer set.
func (a Answer) Valid() bool {
	switch a {
	case AnswerYes, AnswerNo, AnswerAbstain:
		return true
	}
	return false
}

// AuditAction names an audited operation.
type AuditAction string

const (
	AuditCredentialIssued   AuditAction = "credential_issued"
	AuditCredentialReturned AuditAction = "credential_returned"
	AuditCredentialDenied   AuditAction = "credential_denied"
	AuditRegistrationFailed AuditAction = "registration_failed"
	AuditStatusSynced       AuditAction = "status_synced"
	AuditResultsFetched     AuditAction = "results_fetched"

	AuditHashRegistered AuditAction = "hash_registered"
	AuditBallotCast     AuditAction = "ballot_cast"
	AuditElectionReset  AuditAction = "election_reset"
)
