package main

import "time"

// GlobalFlags are shared by every command.
type GlobalFlags struct {
	ConfigPath string
	// Remote daemon connection
	APIUrl     string
	APITimeout time.Duration
	Token      string
}

// ServeFlags hold the serve command options.
type ServeFlags struct {
	Start []string
}

type ControlFlags struct {
	Role string
}

type LogsFlags struct {
	Source string
}

type LoginFlags struct {
	Username string
	Password string
}
