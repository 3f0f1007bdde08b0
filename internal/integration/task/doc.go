// Package task turns cargo definitions into executable tasks and runs them.
//
// A Definition says what to run (cargo subcommand, arguments, directory,
// environment). A Builder resolves the cargo executable, or a configured
// runner that wraps it, and produces a Task carrying the concrete process
// execution, problem matchers and presentation options.
//
// The Executor spawns the task in its own process group, streams output line
// by line to listeners and an optional writer, and extracts compiler
// diagnostics with the $rustc and $rust-panic matchers.
//
// # Usage
//
//	builder := task.NewBuilder(task.BuilderConfig{})
//	t, err := builder.BuildCargoTask(root, def, "test foo", args, "", true)
//	if err != nil {
//	    return err
//	}
//
//	executor := task.NewExecutor(task.DefaultExecutorConfig())
//	exec, err := executor.ExecuteSync(ctx, t)
package task
