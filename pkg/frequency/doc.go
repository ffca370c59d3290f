/*
Package frequency implements admission control for the agent's periodic
workflows.

A Controller answers one question: may this workflow do meaningful work now?
The protocol has two phases. CallIfAllowed either rejects without side
effects or records the attempt time and admits the caller; the caller then
reports the outcome with ReportSuccess or ReportFailure (or Report(err)).

# Admission Rules

  - MinInterval must have elapsed since the last admitted attempt, always.
  - After a success, SuccessInterval must have elapsed since that success.
  - After N consecutive failures, FailureIntervalBase*2^(N-1), capped at
    MaxFailureInterval, must have elapsed since the last attempt.
  - One success resets the backoff to FailureIntervalBase.

# Persistence

State and Restore expose the bookkeeping so that it can be stored across
restarts (see pkg/storage). A controller belongs to exactly one workflow
loop and is never shared.
*/
package frequency
