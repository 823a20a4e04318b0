// Package logging builds the slog loggers used across conveyor. The console
// handler renders compact single-line output with the component and item
// subject pulled out of the attribute list; the json format delegates to
// slog's JSON handler for machine consumption.
package logging
