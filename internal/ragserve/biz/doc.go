// Package biz implements the business logic of the ragserve service: the
// asynchronous document-processing pipeline with its job registry, the
// retrieval and ranking engine behind the chat endpoint, and the Redis
// answer cache in front of it.
package biz
