package sftp

import (
	"time"

	"github.com/gonzalop/xfer"
)

// attrs is the wire-format file attribute structure, version-gated per
// original_source/src/SFtp.h's FileAttrs::Pack/Unpack: v3 has a single
// uid/gid pair and a combined atime/mtime, v4+ carries owner/group as
// strings and splits access/create/modify time (with optional subsecond
// precision), v5+ adds ACL/bits/allocation-size/mime-type/link-count, v6
// adds an untranslated-name and a separate change-time.
type attrs struct {
	haveSize bool
	size     uint64

	haveUIDGID bool
	uid, gid   uint32

	havePerms bool
	perms     uint32

	fileType byte // v4+ only; inferred from perms below v4

	haveACmodTime bool // v3 combined atime/mtime
	atime, mtime  time.Time

	haveAccessTime bool // v4+ split
	haveCreateTime bool
	haveModifyTime bool
	createTime     time.Time

	haveOwnerGroup   bool
	owner, group     string

	haveLinkCount bool
	linkCount     uint32

	haveMimeType bool
	mimeType     string

	// aclRaw/bitsRaw/allocSizeRaw/untranslatedName are carried opaquely:
	// nothing in this client interprets ACLs or v5 bit flags, but a
	// round-tripping SETSTAT (e.g. after a server-side COPY) must not drop
	// them.
	haveACL     bool
	aclRaw      []byte
	haveBits    bool
	bitsRaw     uint32
	haveAllocSize bool
	allocSizeRaw  uint64
	haveUntranslatedName bool
	untranslatedName     string

	// extended carries any "extended-count" name/data pairs verbatim so an
	// unrecognized extension survives a decode/re-encode round trip.
	extended [][2][]byte
}

func (a *attrs) flags(version int) uint32 {
	var f uint32
	if a.haveSize {
		f |= attrSize
	}
	if version < 4 {
		if a.haveUIDGID {
			f |= attrUIDGID
		}
		if a.havePerms {
			f |= attrPermissions
		}
		if a.haveACmodTime {
			f |= attrACmodTime
		}
	} else {
		if a.havePerms {
			f |= attrPermissions
		}
		if a.haveAccessTime {
			f |= attrAccessTime
		}
		if a.haveCreateTime {
			f |= attrCreateTime
		}
		if a.haveModifyTime {
			f |= attrModifyTime
		}
		if a.haveOwnerGroup {
			f |= attrOwnerGroup
		}
		if version >= 5 {
			if a.haveACL {
				f |= attrACL
			}
			if a.haveBits {
				f |= attrBits
			}
			if a.haveAllocSize {
				f |= attrAllocSize
			}
			if a.haveMimeType {
				f |= attrMimeType
			}
			if a.haveLinkCount {
				f |= attrLinkCount
			}
			if a.haveUntranslatedName {
				f |= attrUntranslatedName
			}
		}
	}
	if len(a.extended) > 0 {
		f |= attrExtended
	}
	return f
}

// pack appends the wire encoding of a to w for the negotiated version.
func (a *attrs) pack(w *wireWriter, version int) {
	flags := a.flags(version)
	w.PutUint32(flags)
	if version >= 4 {
		if a.fileType != 0 {
			w.PutByte(a.fileType)
		} else {
			w.PutByte(fileTypeUnknown)
		}
	}
	if flags&attrSize != 0 {
		w.PutUint64(a.size)
	}
	if version >= 5 && flags&attrAllocSize != 0 {
		w.PutUint64(a.allocSizeRaw)
	}
	if version < 4 {
		if flags&attrUIDGID != 0 {
			w.PutUint32(a.uid)
			w.PutUint32(a.gid)
		}
	} else if flags&attrOwnerGroup != 0 {
		w.PutString(a.owner)
		w.PutString(a.group)
	}
	if flags&attrPermissions != 0 {
		w.PutUint32(a.perms)
	}
	if version < 4 {
		if flags&attrACmodTime != 0 {
			w.PutUint32(uint32(a.atime.Unix()))
			w.PutUint32(uint32(a.mtime.Unix()))
		}
	} else {
		if flags&attrAccessTime != 0 {
			w.PutUint64(uint64(a.atime.Unix()))
			if flags&attrSubseconds != 0 {
				w.PutUint32(uint32(a.atime.Nanosecond()))
			}
		}
		if flags&attrCreateTime != 0 {
			w.PutUint64(uint64(a.createTime.Unix()))
			if flags&attrSubseconds != 0 {
				w.PutUint32(uint32(a.createTime.Nanosecond()))
			}
		}
		if flags&attrModifyTime != 0 {
			w.PutUint64(uint64(a.mtime.Unix()))
			if flags&attrSubseconds != 0 {
				w.PutUint32(uint32(a.mtime.Nanosecond()))
			}
		}
	}
	if version >= 5 && flags&attrACL != 0 {
		w.PutString(string(a.aclRaw))
	}
	if version >= 5 && flags&attrBits != 0 {
		w.PutUint32(a.bitsRaw)
		if version >= 6 {
			w.PutUint32(0) // bits-valid mask; we don't track partial masks
		}
	}
	if version >= 5 && flags&attrTextHint != 0 {
		w.PutByte(0)
	}
	if version >= 5 && flags&attrMimeType != 0 {
		w.PutString(a.mimeType)
	}
	if version >= 5 && flags&attrLinkCount != 0 {
		w.PutUint32(a.linkCount)
	}
	if version >= 5 && flags&attrUntranslatedName != 0 {
		w.PutString(a.untranslatedName)
	}
	if flags&attrExtended != 0 {
		w.PutUint32(uint32(len(a.extended)))
		for _, kv := range a.extended {
			w.PutString(string(kv[0]))
			w.PutString(string(kv[1]))
		}
	}
}

// unpackAttrs parses a FileAttrs structure at the version negotiated with
// the peer, preserving any extended name/data pairs it doesn't understand
// in extended so a later re-pack (e.g. forwarding a listing) round-trips
// them unchanged.
func unpackAttrs(r *wireReader, version int) *attrs {
	a := &attrs{}
	flags := r.Uint32()
	if version >= 4 {
		a.fileType = r.Byte()
	}
	if flags&attrSize != 0 {
		a.haveSize = true
		a.size = r.Uint64()
	}
	if version >= 5 && flags&attrAllocSize != 0 {
		a.haveAllocSize = true
		a.allocSizeRaw = r.Uint64()
	}
	if version < 4 {
		if flags&attrUIDGID != 0 {
			a.haveUIDGID = true
			a.uid = r.Uint32()
			a.gid = r.Uint32()
		}
	} else if flags&attrOwnerGroup != 0 {
		a.haveOwnerGroup = true
		a.owner = r.String()
		a.group = r.String()
	}
	if flags&attrPermissions != 0 {
		a.havePerms = true
		a.perms = r.Uint32()
	}
	if version < 4 {
		if flags&attrACmodTime != 0 {
			a.haveACmodTime = true
			a.atime = time.Unix(int64(r.Uint32()), 0).UTC()
			a.mtime = time.Unix(int64(r.Uint32()), 0).UTC()
		}
	} else {
		if flags&attrAccessTime != 0 {
			a.haveAccessTime = true
			sec := int64(r.Uint64())
			var nsec int64
			if flags&attrSubseconds != 0 {
				nsec = int64(r.Uint32())
			}
			a.atime = time.Unix(sec, nsec).UTC()
		}
		if flags&attrCreateTime != 0 {
			a.haveCreateTime = true
			sec := int64(r.Uint64())
			var nsec int64
			if flags&attrSubseconds != 0 {
				nsec = int64(r.Uint32())
			}
			a.createTime = time.Unix(sec, nsec).UTC()
		}
		if flags&attrModifyTime != 0 {
			a.haveModifyTime = true
			sec := int64(r.Uint64())
			var nsec int64
			if flags&attrSubseconds != 0 {
				nsec = int64(r.Uint32())
			}
			a.mtime = time.Unix(sec, nsec).UTC()
		}
		if version >= 6 && flags&attrCTime != 0 {
			// change-time is not kept; read past it so later fields line up
			r.Uint64()
			if flags&attrSubseconds != 0 {
				r.Uint32()
			}
		}
	}
	if version >= 5 && flags&attrACL != 0 {
		a.haveACL = true
		a.aclRaw = r.Bytes()
	}
	if version >= 5 && flags&attrBits != 0 {
		a.haveBits = true
		a.bitsRaw = r.Uint32()
		if version >= 6 {
			r.Uint32() // bits-valid mask, unused
		}
	}
	if version >= 5 && flags&attrTextHint != 0 {
		r.Byte()
	}
	if version >= 5 && flags&attrMimeType != 0 {
		a.haveMimeType = true
		a.mimeType = r.String()
	}
	if version >= 5 && flags&attrLinkCount != 0 {
		a.haveLinkCount = true
		a.linkCount = r.Uint32()
	}
	if version >= 5 && flags&attrUntranslatedName != 0 {
		a.haveUntranslatedName = true
		a.untranslatedName = r.String()
	}
	if flags&attrExtended != 0 {
		n := r.Uint32()
		for i := uint32(0); i < n && r.Err() == nil; i++ {
			name := r.Bytes()
			data := r.Bytes()
			a.extended = append(a.extended, [2][]byte{name, data})
		}
	}
	return a
}

// toFileInfo converts the wire attributes (plus the name the caller already
// has, since not every packet carries one alongside attrs) into the shared
// xfer.FileInfo shape.
func (a *attrs) toFileInfo(name string) *xfer.FileInfo {
	fi := &xfer.FileInfo{Name: name, Type: xfer.TypeUnknown}
	if a.haveSize {
		fi.SetSize(int64(a.size))
	}
	if a.haveModifyTime {
		fi.SetModTime(a.mtime, xfer.PrecisionSecond)
	} else if a.haveACmodTime {
		fi.SetModTime(a.mtime, xfer.PrecisionSecond)
	}
	if a.havePerms {
		fi.SetMode(uint16(a.perms & 07777))
	}
	if a.haveOwnerGroup {
		fi.SetOwner(a.owner)
		fi.SetGroup(a.group)
	}
	if a.haveLinkCount {
		fi.SetNlink(int(a.linkCount))
	}
	switch {
	case a.fileType != 0:
		switch a.fileType {
		case fileTypeRegular:
			fi.Type = xfer.TypeFile
		case fileTypeDirectory:
			fi.Type = xfer.TypeDir
		case fileTypeSymlink:
			fi.Type = xfer.TypeSymlink
		case fileTypeSpecial, fileTypeSocket, fileTypeCharDev, fileTypeBlockDev, fileTypeFifo:
			fi.Type = xfer.TypeSpecial
		default:
			fi.Type = xfer.TypeUnknown
		}
	case a.havePerms:
		fi.Type = modeToType(a.perms)
	}
	return fi
}

// modeToType infers a file type from POSIX mode bits, the only option below
// protocol version 4 (original_source/src/SFtp.cc does the same S_ISDIR /
// S_ISLNK testing on the raw mode word).
func modeToType(mode uint32) xfer.FileType {
	const sIFMT = 0170000
	const sIFDIR = 0040000
	const sIFLNK = 0120000
	const sIFREG = 0100000
	switch mode & sIFMT {
	case sIFDIR:
		return xfer.TypeDir
	case sIFLNK:
		return xfer.TypeSymlink
	case sIFREG:
		return xfer.TypeFile
	case 0:
		return xfer.TypeUnknown
	default:
		return xfer.TypeSpecial
	}
}

// fileInfoToAttrs builds the attrs to send in an OPEN/SETSTAT request from a
// FileInfo the caller wants applied (e.g. SetSize/SetDate before a Store).
func fileInfoToAttrs(size int64, haveSize bool, modTime time.Time, haveModTime bool) *attrs {
	a := &attrs{}
	if haveSize {
		a.haveSize = true
		a.size = uint64(size)
	}
	if haveModTime {
		a.haveACmodTime = true
		a.haveModifyTime = true
		a.atime = modTime
		a.mtime = modTime
	}
	return a
}
