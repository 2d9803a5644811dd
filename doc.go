// Package acontext is the core of a context-memory service. It observes
// conversational sessions produced by an external agent, segments them into
// ordered tasks, abstracts successful tasks into reusable SOPs, and files
// those SOPs into a searchable block tree (folders and pages with vector
// embeddings). The stages are chained by a durable message bus and each
// stage runs a bounded tool-calling loop against an LLM provider.
//
// The root package holds the domain model, the provider and store
// interfaces, the tool registry, and the shared agent loop engine.
// Backends live in subpackages: store/postgres (pgvector), store/memory,
// provider/openaicompat, bus (AMQP), and agent (the four pipeline agents).
package acontext
