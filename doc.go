// Package mimetree parses MIME/RFC 822 message byte streams into trees of
// typed entities, tolerating the malformed input found in real-world mail.
//
// The interesting machinery lives in the entity package: a boundary-aware
// line reader, a recursive multipart/message dispatch engine, and a deferred
// task queue that re-parses encoded containers breadth-first so that
// indefinitely nested base64-wrapped multiparts never grow the call stack
// beyond the literal nesting of the input.
//
// Collaborating concerns are kept behind narrow seams: the header package
// provides the few header facts the engine needs, the decode package maps
// transfer-encoding names to codecs, the filer package decides where
// disk-backed bodies land, and the redo package contributes content sniffers
// (such as uuencode extraction) that may replace a parsed entity after the
// fact.
package mimetree
