// Package debug saves runnables as debugger launch configurations.
//
// MakeLaunchConfig turns a cargo runnable into a CodeLLDB "launch"
// configuration: cargo builds the debuggee without running it ("run" becomes
// "build", tests get "--no-run") and the executable arguments are passed to
// the program.
//
// LaunchWriter merges such configurations into a launch.json file. It edits
// the file in place with gjson and sjson, so unrelated keys and
// configurations survive untouched. A configuration whose name is already
// present is rejected with ErrLaunchConfigExists unless the writer was
// created WithOverwrite(true).
package debug
