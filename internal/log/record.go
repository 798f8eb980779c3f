package log

// Record is one message stored in the log: an absolute offset assigned on append, and an
// opaque payload. It replaces a protobuf-generated wire type now that there is no gRPC
// service to share a schema with; store already treats the payload as opaque bytes.
type Record struct {
	Offset uint64
	Value  []byte
}
