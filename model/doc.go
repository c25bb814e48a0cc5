// Package model defines the provider-agnostic payloads exchanged with
// generation executors and a deterministic MockExecutor.
//
// Core goals:
//   - One request and one output type per generation kind
//   - Keep shapes minimal and transport independent
//   - Facilitate lightweight mocking for tests (MockExecutor)
//
// Providers (e.g. OpenAI, Anthropic) implement core.Executor against these
// payloads so queues and contexts remain decoupled from vendor SDKs.
package model
