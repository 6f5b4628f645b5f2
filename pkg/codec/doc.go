// Package codec converts invocation payloads and results to and from their
// transport form.
//
// The wire format is a protobuf-encoded google.protobuf.Value: a self-describing
// tagged union of null, number, string, bool, struct and list. The bytes are
// carried as standard padded base64 so they survive a process argument and a
// line of stdout.
//
// Go values are normalized before encoding: values structpb understands are
// used directly, proto messages go through protojson, and everything else is
// rendered through its encoding/json representation. Numbers travel as
// IEEE-754 doubles.
package codec
