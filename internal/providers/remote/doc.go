// Package remote implements the metered strategy backed by an external
// task-based solve API: submit a task, poll for the result, settle credential
// health and cost on the outcome.
//
// One Strategy instance serves one provider endpoint. Credentials rotate per
// attempt through the shared pool; transport retries and rate limiting live
// in the package client, while failure isolation stays with the dispatcher's
// circuit breaker.
package remote
