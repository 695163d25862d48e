// Package llm provides the durable batching and caching layer between
// analysis components and language model providers. It supports multiple
// providers including Anthropic and OpenAI, with token-aware batch planning,
// a run-scoped response cache, asynchronous batch submission and polling,
// rate limiting, and retry logic.
package llm
