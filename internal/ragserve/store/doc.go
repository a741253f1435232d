// Package store provides the data access layer of the ragserve service.
//
// It defines the contracts for the two external collaborators, the GridFS
// document store holding raw and processed blobs and the Milvus search
// index holding embedded chunks, together with their implementations.
package store
