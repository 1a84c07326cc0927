package main

import "time"

// Flag structs decouple cobra from command logic for testing.

type StartFlags struct {
	PublicAddress string
}

type APIFlags struct {
	APIUrl     string
	APITimeout time.Duration
	Username   string
	Password   string
	Insecure   bool
}

type StopFlags struct {
	APIFlags
	Force bool
}

type ConfigGenerateFlags struct {
	Output string
	Force  bool
}

type HashPasswordFlags struct {
	Password string
}
