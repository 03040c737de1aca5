// Package sync reconciles a destination tree with a source tree.
//
// A run has three stages:
//
//   - Prepare validates both roots, catalogs them, resolves same-named
//     variants and builds a plan.Plan.
//   - An optional confirmation hook may inspect the plan and decline it.
//   - Execute applies the plan in two phases separated by a barrier.
//
// # Phases
//
// Phase one removes everything on the destination that has no place in the
// mirrored tree: file deletions run in a bounded worker pool, then directory
// removals run one by one, deepest first. Phase two starts only once phase
// one has finished completely: directory creations run top-down, then file
// writes run in the worker pool.
//
// # Writes
//
// Plain copies and transcoded outputs are written to a hidden temporary file
// next to their destination and renamed into place. A write that fails
// leaves nothing at the destination path, so the next run sees the file as
// missing and retries it.
//
// # Dry run
//
// With Options.DryRun set nothing is mutated; every action is reported with
// StatusPlanned. The reported actions are exactly those a commit run over
// the same trees would perform.
//
//	eng := sync.New(afero.NewOsFs(), opts, sync.WithReporter(log))
//	result, err := eng.Run(ctx)
//	if err != nil {
//	    // structural: nothing was touched
//	}
//	fmt.Print(result.Summary())
package sync
