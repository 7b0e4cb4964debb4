package engine

// BlockResult is what the blockwise engine decides to do with an
// incoming Block2 response (spec §4.4).
type BlockResult int

const (
	// BlockDeliverFinal: offset advanced to 0 (transfer complete);
	// deliver the final block with GetNext == nil.
	BlockDeliverFinal BlockResult = iota
	// BlockDeliverContinue: deliver the block; GetNext re-arms
	// retransmission and requests the next one.
	BlockDeliverContinue
	// BlockDropDuplicate: the server's reported offset was less than the
	// one requested; restore current to the requested offset and drop.
	BlockDropDuplicate
)

// AdvanceBlock implements spec §4.4 steps 3-4: given the offset the
// engine requested and the offset the server actually reported back
// (both Block2 NUM*size), decide how to proceed and what the new
// current offset should be.
func AdvanceBlock(b *blockCtx, requestedOffset, reportedOffset, blockSize int, more bool) (BlockResult, int) {
	if reportedOffset < requestedOffset {
		// Duplicate/out-of-order block: restore to the requested offset.
		b.current = requestedOffset
		return BlockDropDuplicate, requestedOffset
	}
	newOffset := reportedOffset + blockSize
	b.current = newOffset
	if !more {
		// Server said this is the last block outright.
		b.current = 0
		return BlockDeliverFinal, reportedOffset
	}
	if newOffset == 0 {
		// Offset wrapped back to zero: transfer complete (spec §4.4 step 4).
		return BlockDeliverFinal, reportedOffset
	}
	return BlockDeliverContinue, reportedOffset
}

// SnapshotPrefix records buf's length the first time a Block2 option is
// appended to an outgoing request, so later continuations can truncate
// back to this point before re-appending a fresh Block2 option (spec §3
// "saved_prefix_before_block2", §4.4 step 1).
func SnapshotPrefix(b *blockCtx, buf []byte) {
	if b.havePrefix {
		return
	}
	b.prefixLen = len(buf)
	b.havePrefix = true
}

// RestorePrefix truncates buf back to the snapshotted pre-Block2 length,
// ready for a fresh Block2 option to be appended.
func RestorePrefix(b *blockCtx, buf []byte) []byte {
	if !b.havePrefix || b.prefixLen > len(buf) {
		return buf
	}
	return buf[:b.prefixLen]
}
