package sftp

import "github.com/gonzalop/xfer"

// Packet type constants, verbatim from the SSH_FXP_* enum in
// original_source/src/SFtp.h.
const (
	packetInit    byte = 1
	packetVersion byte = 2
	packetOpen    byte = 3
	packetClose   byte = 4
	packetRead    byte = 5
	packetWrite   byte = 6
	packetLstat   byte = 7
	packetFstat   byte = 8
	packetSetstat byte = 9
	packetFsetstat byte = 10
	packetOpendir byte = 11
	packetReaddir byte = 12
	packetRemove  byte = 13
	packetMkdir   byte = 14
	packetRmdir   byte = 15
	packetRealpath byte = 16
	packetStat    byte = 17
	packetRename  byte = 18
	packetReadlink byte = 19
	packetSymlink byte = 20
	packetLink    byte = 21 // v6
	packetBlock   byte = 22 // v6
	packetUnblock byte = 23 // v6

	packetStatus byte = 101
	packetHandle byte = 102
	packetData   byte = 103
	packetName   byte = 104
	packetAttrs  byte = 105

	packetExtended      byte = 200
	packetExtendedReply byte = 201
)

// Status codes, SSH_FX_* from original_source/src/SFtp.h.
const (
	statusOK               uint32 = 0
	statusEOF              uint32 = 1
	statusNoSuchFile       uint32 = 2
	statusPermissionDenied uint32 = 3
	statusFailure          uint32 = 4
	statusBadMessage       uint32 = 5
	statusNoConnection     uint32 = 6
	statusConnectionLost   uint32 = 7
	statusOpUnsupported    uint32 = 8
	// v4+
	statusInvalidHandle    uint32 = 9
	statusNoSuchPath       uint32 = 10
	statusFileAlreadyExists uint32 = 11
	statusWriteProtect     uint32 = 12
	statusNoMedia          uint32 = 13
)

// Open pflags, SSH_FXF_* (v3 semantics; v5+ uses a desired-access/flags pair
// instead, which this client does not negotiate — see DESIGN.md).
const (
	pflagRead   uint32 = 0x00000001
	pflagWrite  uint32 = 0x00000002
	pflagAppend uint32 = 0x00000004
	pflagCreat  uint32 = 0x00000008
	pflagTrunc  uint32 = 0x00000010
	pflagExcl   uint32 = 0x00000020
)

// Attribute presence flags, SSH_FILEXFER_ATTR_*. The v3 bitset packs uid/gid
// and atime/mtime together; v4+ splits them and adds create/access/modify
// independently plus ACLs and subsecond precision.
const (
	attrSize        uint32 = 0x00000001
	attrUIDGID      uint32 = 0x00000002 // v3 only
	attrPermissions uint32 = 0x00000004
	attrACmodTime   uint32 = 0x00000008 // v3 only: atime+mtime together
	attrAccessTime  uint32 = 0x00000008 // v4+: atime alone
	attrCreateTime  uint32 = 0x00000010 // v4+
	attrModifyTime  uint32 = 0x00000020 // v4+
	attrACL         uint32 = 0x00000040 // v5+
	attrOwnerGroup  uint32 = 0x00000080 // v4+: string owner/group
	attrSubseconds  uint32 = 0x00000100 // v4+
	attrBits        uint32 = 0x00000200 // v5+
	attrAllocSize   uint32 = 0x00000400 // v5+
	attrTextHint    uint32 = 0x00000800 // v5+
	attrMimeType    uint32 = 0x00001000 // v5+
	attrLinkCount   uint32 = 0x00002000 // v5+
	attrUntranslatedName uint32 = 0x00004000 // v5+
	attrCTime       uint32 = 0x00008000 // v6
	attrExtended    uint32 = 0x80000000
)

// File-type byte, SSH_FILEXFER_TYPE_*, present explicitly at v4+ (below v4
// the type is inferred from permission mode bits).
const (
	fileTypeRegular   byte = 1
	fileTypeDirectory byte = 2
	fileTypeSymlink   byte = 3
	fileTypeSpecial   byte = 4
	fileTypeUnknown   byte = 5
	fileTypeSocket    byte = 6 // v5+
	fileTypeCharDev   byte = 7
	fileTypeBlockDev  byte = 8
	fileTypeFifo      byte = 9
)

const (
	minVersion = 3
	maxVersion = 6
)

// statusToKind classifies an SSH_FX_* status code into the shared error
// taxonomy, mirroring the table SFtp.cc uses when it turns a Reply_STATUS
// into a user-visible failure.
func statusToKind(code uint32) xfer.Kind {
	switch code {
	case statusNoSuchFile, statusNoSuchPath, statusInvalidHandle, statusPermissionDenied:
		return xfer.NoFile
	case statusOpUnsupported:
		return xfer.NotSupported
	case statusConnectionLost, statusNoConnection:
		return xfer.SeeErrno
	default:
		return xfer.Fatal
	}
}
