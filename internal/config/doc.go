// Package config handles configuration loading and validation from
// environment variables and an optional config file. It provides type-safe
// access to the server, database, redis, LLM, scheduler and retry settings
// while keeping configuration details separate from pipeline logic.
package config
