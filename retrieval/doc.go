// Package retrieval provides the similarity lookup used for context queries.
//
// Handbook is an in-memory hybrid retriever over the HR policy handbook:
// a BM25 ranker and a title/bigram ranker fused by reciprocal rank.
package retrieval
