// Package features reads and writes raw feature shards.
//
// A shard is three framed artifacts sharing a name prefix:
//
//	<shard>_keys.bin    float32 matrix, one hidden state per row
//	<shard>_values.bin  int32 target-token ids
//	<shard>_inputs.bin  int32 input-token ids
//
// Shards are discovered by their values file and concatenated in sorted name
// order.
package features
