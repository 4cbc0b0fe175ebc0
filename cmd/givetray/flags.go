package main

import "time"

// Flag structs to decouple cobra from logic for testing.

// RunFlags configures the serving instance.
type RunFlags struct {
	Profile  string
	Listen   string
	LogLevel string
	NoColor  bool
	NoServe  bool
}

// ClientFlags configures commands that talk to a running instance.
type ClientFlags struct {
	Profile    string
	APIUrl     string
	APITimeout time.Duration
}

// DesktopFileFlags configures the desktop-file command.
type DesktopFileFlags struct {
	Profile   string
	OutputDir string
	Autostart bool
}
