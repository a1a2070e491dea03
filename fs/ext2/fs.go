package ext2

import (
	"encoding/binary"

	"novaos/kernel"
)

// BlockReader reads len(buf) bytes starting at byte offset offset from the
// backing device.
type BlockReader interface {
	ReadAt(offset uint64, buf []byte) *kernel.Error
}

// BlockWriter writes buf to the backing device starting at byte offset
// offset.
type BlockWriter interface {
	WriteAt(offset uint64, buf []byte) *kernel.Error
}

// BlockReadWriter is the device a Filesystem is mounted over; production
// code backs it with drivers/virtio/blk.Device (by block, not by byte —
// the adapter is the caller's responsibility), tests back it with an
// in-memory image.
type BlockReadWriter interface {
	BlockReader
	BlockWriter
}

// Filesystem is a mounted ext2 volume.
type Filesystem struct {
	dev       BlockReadWriter
	sb        *Superblock
	blockSize uint32
}

// Mount reads and validates dev's superblock and returns a ready-to-use
// Filesystem.
func Mount(dev BlockReadWriter) (*Filesystem, *kernel.Error) {
	buf := make([]byte, superblockSize)
	if err := dev.ReadAt(offsetBytes, buf); err != nil {
		return nil, err
	}

	sb, err := ParseSuperblock(buf)
	if err != nil {
		return nil, err
	}
	blockSize, err := sb.BlockSize()
	if err != nil {
		return nil, err
	}

	return &Filesystem{dev: dev, sb: sb, blockSize: blockSize}, nil
}

// Superblock returns the filesystem's parsed superblock.
func (fs *Filesystem) Superblock() *Superblock { return fs.sb }

// BlockSize returns the filesystem's block size in bytes.
func (fs *Filesystem) BlockSize() uint32 { return fs.blockSize }

func (fs *Filesystem) readBlock(block uint32) ([]byte, *kernel.Error) {
	buf := make([]byte, fs.blockSize)
	if err := fs.dev.ReadAt(uint64(block)*uint64(fs.blockSize), buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (fs *Filesystem) writeBlock(block uint32, buf []byte) *kernel.Error {
	return fs.dev.WriteAt(uint64(block)*uint64(fs.blockSize), buf)
}

func (fs *Filesystem) blockGroupDescriptor(inode uint32) (BlockGroupDescriptor, *kernel.Error) {
	if inode == 0 || inode > fs.sb.InodesCount {
		return BlockGroupDescriptor{}, errInodeOutOfRange
	}

	group := (inode - 1) / fs.sb.InodesPerGroup
	tableOff := blockGroupDescriptorTableOffset(fs.sb, fs.blockSize)
	entryOff := tableOff + uint64(group)*blockGroupDescriptorSize

	buf := make([]byte, blockGroupDescriptorSize)
	if err := fs.dev.ReadAt(entryOff, buf); err != nil {
		return BlockGroupDescriptor{}, err
	}
	return parseBlockGroupDescriptor(buf), nil
}

// ReadInode reads and parses inode number n.
func (fs *Filesystem) ReadInode(n uint32) (Inode, *kernel.Error) {
	bg, err := fs.blockGroupDescriptor(n)
	if err != nil {
		return Inode{}, err
	}

	local := (n - 1) % fs.sb.InodesPerGroup
	byteOff := uint64(bg.InodeTable)*uint64(fs.blockSize) + uint64(local)*uint64(fs.sb.InodeSize)

	buf := make([]byte, inodeSize)
	if err := fs.dev.ReadAt(byteOff, buf); err != nil {
		return Inode{}, err
	}
	return parseInode(buf), nil
}

// dataBlock resolves the i'th (0-indexed) data block number of in. Singly
// indirect blocks are followed transparently; doubly and triply indirect
// blocks are rejected outright rather than silently truncating a large
// file's readable range.
func (fs *Filesystem) dataBlock(in Inode, i uint32) (uint32, *kernel.Error) {
	if i < directBlockCount {
		return in.DirectBlocks[i], nil
	}
	i -= directBlockCount

	pointersPerBlock := fs.blockSize / 4
	if i < pointersPerBlock {
		if in.SinglyIndirect == 0 {
			return 0, nil
		}
		block, err := fs.readBlock(in.SinglyIndirect)
		if err != nil {
			return 0, err
		}
		return u32At(block, int(i)*4), nil
	}

	return 0, errDeepIndirection
}

func u32At(buf []byte, off int) uint32 {
	return uint32(buf[off]) | uint32(buf[off+1])<<8 | uint32(buf[off+2])<<16 | uint32(buf[off+3])<<24
}

// ReadFile reads in's data into buf, up to min(len(buf), in.Size()) bytes,
// and returns how many bytes were read. A data block number of 0 within the
// range of a sparse file is treated as a hole and filled with zeros.
func (fs *Filesystem) ReadFile(in Inode, buf []byte) (int, *kernel.Error) {
	size := in.Size(fs.sb)
	if uint64(len(buf)) > size {
		buf = buf[:size]
	}

	read := 0
	for i := uint32(0); read < len(buf); i++ {
		block, err := fs.dataBlock(in, i)
		if err != nil {
			return read, err
		}

		n := len(buf) - read
		if n > int(fs.blockSize) {
			n = int(fs.blockSize)
		}

		if block == 0 {
			for j := 0; j < n; j++ {
				buf[read+j] = 0
			}
		} else {
			data, err := fs.readBlock(block)
			if err != nil {
				return read, err
			}
			copy(buf[read:read+n], data)
		}
		read += n
	}
	return read, nil
}

// ListDirectory invokes f once for every live entry in dir's direct data
// blocks. It stops at the first unallocated direct block, per ext2's
// convention that a directory's blocks are always contiguously allocated
// from the start.
func (fs *Filesystem) ListDirectory(dir Inode, f func(DirectoryEntry)) *kernel.Error {
	if !dir.IsDir() {
		return errNotDirectory
	}

	for _, block := range dir.DirectBlocks {
		if block == 0 {
			break
		}
		data, err := fs.readBlock(block)
		if err != nil {
			return err
		}
		iterDirectoryBlock(data, f)
	}
	return nil
}

// Lookup returns the inode number of the entry named name within dir.
func (fs *Filesystem) Lookup(dir Inode, name string) (uint32, *kernel.Error) {
	var found uint32
	err := fs.ListDirectory(dir, func(e DirectoryEntry) {
		if found == 0 && e.Name == name {
			found = e.Inode
		}
	})
	if err != nil {
		return 0, err
	}
	if found == 0 {
		return 0, errNoSuchEntry
	}
	return found, nil
}

// AddDirectoryEntry inserts a new entry (childInode, name, fileType) into
// one of dir's existing direct data blocks. It never allocates a new block:
// if no existing block has room, it reports errNoRoomForEntry rather than
// silently dropping the entry or growing the directory.
func (fs *Filesystem) AddDirectoryEntry(dir Inode, childInode uint32, name string, fileType FileType) *kernel.Error {
	if !dir.IsDir() {
		return errNotDirectory
	}
	if len(name) > 255 {
		return errNameTooLong
	}

	need := requiredSpace(len(name))
	for _, block := range dir.DirectBlocks {
		if block == 0 {
			break
		}
		data, err := fs.readBlock(block)
		if err != nil {
			return err
		}
		if insertIntoBlock(data, need, childInode, name, fileType) {
			return fs.writeBlock(block, data)
		}
	}
	return errNoRoomForEntry
}

// insertIntoBlock tries to fit a new need-byte entry into block, either by
// reusing a deleted (inode-0) entry whose whole record is large enough, or
// by splitting the trailing slack off a live entry whose declared rec_len
// exceeds what it actually needs. It reports whether it succeeded.
func insertIntoBlock(block []byte, need int, childInode uint32, name string, fileType FileType) bool {
	offset := 0
	for offset+dirEntryHeaderSize <= len(block) {
		inode := u32At(block, offset)
		recLen := int(uint16(block[offset+4]) | uint16(block[offset+5])<<8)
		nameLen := int(block[offset+6])

		if recLen < dirEntryHeaderSize || offset+recLen > len(block) {
			return false
		}

		if inode == 0 {
			if recLen >= need {
				writeDirEntry(block, offset, childInode, uint16(recLen), fileType, name)
				return true
			}
		} else {
			used := requiredSpace(nameLen)
			slack := recLen - used
			if slack >= need {
				binary.LittleEndian.PutUint16(block[offset+4:], uint16(used))
				writeDirEntry(block, offset+used, childInode, uint16(slack), fileType, name)
				return true
			}
		}

		offset += recLen
	}
	return false
}
