// Package embedding produces the vectors that images, video frames and text
// queries are compared by.
//
// Embedder is the model abstraction; the clip subpackage implements it with
// onnxruntime and a HuggingFace tokenizer. Every caller in the process shares
// one Serialized wrapper, which serializes access to the model and checks its
// output. The image and token preprocessing helpers live here so they can be
// tested without the native libraries.
package embedding
