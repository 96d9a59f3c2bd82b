/*
Package controlplane is the client for the platform admin API.

It exposes the read and mutate operations the executor needs: fetch a
service object (revisions, traffic split, scaling bounds), replace the
traffic split, overwrite scaling bounds, and poll a long-running
operation to completion.

Errors form a small taxonomy checked with errors.Is: ErrNotFound,
ErrInvalidArgument, ErrTransient, and ErrTimeout. A timed-out operation
is wrapped in *OperationError so the in-flight operation id survives up
the stack.

FakeClient is the in-memory implementation used by tests and local
wiring; mutations apply synchronously.
*/
package controlplane
