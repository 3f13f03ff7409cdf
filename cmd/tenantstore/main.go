// cmd/tenantstore/main.go
//
// tenantstore entry point.
//
// Start-up
// --------
//
//  1. Load env vars (host-wide file → .env fallback).
//
//  2. Hand off to the cobra command tree in internal/cli:
//
//     • serve    – config, logger, datasources, entities, REST, /metrics
//     • id       – generate or decode snowflake ids
//     • compile  – print the SQL a condition document compiles to
//
// Large comment blocks are framed by blank “//” lines; inline comments use
// a single “//”.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/yanizio/tenantstore/internal/cli"
)

const serverEnvPath = "/usr/local/etc/tenantstore/global.env"

// loadEnv prefers the host-wide env file; on dev it falls back to .env.
func loadEnv() {
	if _, err := os.Stat(serverEnvPath); err == nil {
		_ = godotenv.Load(serverEnvPath)
		return
	}
	_ = godotenv.Load()
}

func init() { loadEnv() }

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tenantstore:", err)
		os.Exit(1)
	}
}
