// Package application contains the use-case services of the credential
// issuer and the ballot recorder.
package application

import "errors"

// Issuer errors.
var (
	ErrNotEligible             = errors.New("caller is not eligible to vote")
	ErrElectionNotFound        = errors.New("election not found")
	ErrElectionNotOpen         = errors.New("election is not open for voting")
	ErrAlreadyVoted            = errors.New("you have already voted in this election")
	ErrCredentialAlreadyIssued = errors.New("a credential has already been issued for this election")
	ErrRegistrationFailed      = errors.New("credential registration failed, please try again")
	ErrRateLimited             = errors.New("too many credential requests, please try again later")
	ErrResultsNotAvailable     = errors.New("results are available once the election is closed")
)

// Recorder errors.
var (
	ErrInvalidHashFormat = errors.New("credential hash must be 64 lowercase hex characters")
	ErrInvalidElection   = errors.New("election id is required")
	ErrInvalidAnswer     = errors.New("answer must be one of yes, no, abstain")
	ErrMissingCredential = errors.New("voting credential is required")
)
