// Package palette provides the single-choice quick-pick used to select a
// runnable.
//
// A Picker opens a Session over a list of items. The session reports what
// the user does as a stream of events:
//
//   - EventChangeActive when the highlighted item changes (also once on open)
//   - EventAccept when the user confirms the highlighted item
//   - EventHide when the quick-pick is dismissed
//   - EventTriggerButton when the optional side button is pressed
//
// Events carry the index of the active item in the slice given to Open.
// Dispose stops delivery; no event is observed after it returns.
//
// Two pickers are provided. ScreenPicker draws on the terminal with tcell and
// supports fuzzy filtering as the user types. LinePicker prints a numbered
// list and reads commands line by line, for pipes and dumb terminals.
//
// # Usage
//
//	session, err := palette.NewScreenPicker().Open(palette.Options{
//	    Title:         "Select Runnable",
//	    Button:        "Save as a launch.json configuration",
//	    ButtonVisible: true,
//	}, items)
//	if err != nil {
//	    return err
//	}
//	defer session.Dispose()
//
//	for ev := range session.Events() {
//	    ...
//	}
package palette
