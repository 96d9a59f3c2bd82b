/*
Package executor applies remediation actions to the platform control
plane.

Two mutations are supported, both read-modify-write with a field mask and
idempotent: re-applying a rollback leaves traffic at {target: 100},
re-applying a scaling update leaves the same bounds.

ROLLBACK routes 100% of traffic to a specific prior revision. The target
must be among the service's revisions (InvalidArgument otherwise); the
update is awaited up to the operation deadline and a timeout surfaces the
in-flight operation id.

UPDATE_SCALING overwrites only the supplied instance bounds. Safety
clamps run in-process before any remote write:

	min ∈ [MIN_INSTANCES_FLOOR, MIN_INSTANCES_CEILING]   (defaults 0, 5)
	max ∈ [MAX_INSTANCES_FLOOR, MAX_INSTANCES_CEILING]   (defaults 10, 100)

After clamping, min must not exceed max.

NONE succeeds without touching the platform. REDEPLOY is not wired to a
build system and is rejected as InvalidArgument.

Dry-run mode short-circuits both mutations before any control-plane write
and returns a synthesized success tagged dry_run recording what would
have been applied. The flag is read at process start; changing it
requires a restart.
*/
package executor
