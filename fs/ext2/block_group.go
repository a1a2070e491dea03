package ext2

import "encoding/binary"

// blockGroupDescriptorSize is sizeof(ext2_group_desc) in the base (32-byte)
// layout, per "3.2 Block Group Descriptors". Fields beyond the ones parsed
// here are reserved padding this driver never reads.
const blockGroupDescriptorSize = 32

const (
	offBlockBitmap    = 0
	offInodeBitmap    = 4
	offInodeTable     = 8
	offFreeBlocks     = 12
	offFreeInodes     = 14
	offUsedDirsCount  = 16
)

// BlockGroupDescriptor locates the bitmaps and inode table for one block
// group.
type BlockGroupDescriptor struct {
	BlockBitmap   uint32
	InodeBitmap   uint32
	InodeTable    uint32
	FreeBlocks    uint16
	FreeInodes    uint16
	UsedDirsCount uint16
}

func parseBlockGroupDescriptor(buf []byte) BlockGroupDescriptor {
	return BlockGroupDescriptor{
		BlockBitmap:   binary.LittleEndian.Uint32(buf[offBlockBitmap:]),
		InodeBitmap:   binary.LittleEndian.Uint32(buf[offInodeBitmap:]),
		InodeTable:    binary.LittleEndian.Uint32(buf[offInodeTable:]),
		FreeBlocks:    binary.LittleEndian.Uint16(buf[offFreeBlocks:]),
		FreeInodes:    binary.LittleEndian.Uint16(buf[offFreeInodes:]),
		UsedDirsCount: binary.LittleEndian.Uint16(buf[offUsedDirsCount:]),
	}
}

// blockGroupDescriptorTableOffset returns the byte offset of the block
// group descriptor table: it occupies the block immediately after the
// superblock's own block, per "3.2 Block Group Descriptors".
func blockGroupDescriptorTableOffset(sb *Superblock, blockSize uint32) uint64 {
	return uint64(sb.FirstDataBlock+1) * uint64(blockSize)
}
