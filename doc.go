// Package multitool is a conversational assistant that routes each question
// to one of several tools through a bounded ReAct loop.
//
// # Quick Start
//
// Install the CLI:
//
//	go install github.com/positive-doo/multitool/cmd/multitool@latest
//
// Create a configuration:
//
//	llm:
//	  model: gpt-4o
//	  api_key: ${OPENAI_API_KEY}
//	vector:
//	  type: pinecone
//	  api_key: ${PINECONE_API_KEY}
//	  index_name: embedings1
//	  hybrid_index_name: bis
//	search:
//	  api_key: ${SERPER_API_KEY}
//
// Chat, or serve the HTTP API:
//
//	multitool chat --config multitool.yaml
//	multitool serve --config multitool.yaml
//
// # Tools
//
//   - search: Serper web search
//   - Semantic search: dense retrieval over one namespace
//   - Hybrid search: BM25 sparse + dense retrieval weighted by alpha
//   - Self search: the LLM writes a metadata filter, then dense retrieval
//   - CSV search: SQL over an uploaded CSV or XLSX file
//
// Retrieval and CSV tools may return their output directly as the answer;
// the router then stops without a second LLM call.
//
// # Packages
//
//	pkg/agent      ReAct router, prompt and output parser
//	pkg/session    per-user settings, memory, dataset and transcript
//	pkg/retrieval  semantic, hybrid and self-query retrieval
//	pkg/tabular    dataset loading and SQL question answering
//	pkg/server     HTTP/JSON and SSE API
//	cmd/multitool  CLI
package multitool
