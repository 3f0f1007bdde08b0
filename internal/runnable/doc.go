// Package runnable turns rust-analyzer runnables into something the user can
// pick and run.
//
// Selector asks a Source for the runnables at a cursor, builds the list to
// present (see BuildItems) and drives one quick-pick session until the user
// accepts an item, dismisses the quick-pick or presses the save button.
//
// CreateTask converts the chosen cargo runnable into a task.Task through a
// TaskFactory, normally a *task.Builder.
//
// LastStore remembers the previous choice per workspace.
package runnable
