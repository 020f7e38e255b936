package payload

// Payload is a serialized workflow input, activity input or result.
type Payload []byte
