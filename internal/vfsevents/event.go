// Package vfsevents subscribes to the kernel's "vfsmonitor" generic
// netlink family, decodes its fixed attribute schema, normalizes overlay
// filesystem paths back to their canonical home-relative form, and
// correlates paired rename notifications into a single renamed event.
package vfsevents

import "fmt"

// Action is the closed vocabulary of VFS events the vfsmonitor family
// reports, taken verbatim from the original filewatcher's ACT_* enum.
type Action uint8

const (
	NewFile Action = iota
	NewLink
	NewSymlink
	NewFolder
	DelFile
	DelFolder
	RenameFromFile
	RenameFromFolder
	RenameToFile
	RenameToFolder
	RenameFile
	RenameFolder
	Mount
	Unmount
	CloseWriteFile
	CloseNowriteFile
)

func (a Action) String() string {
	switch a {
	case NewFile:
		return "NEW_FILE"
	case NewLink:
		return "NEW_LINK"
	case NewSymlink:
		return "NEW_SYMLINK"
	case NewFolder:
		return "NEW_FOLDER"
	case DelFile:
		return "DEL_FILE"
	case DelFolder:
		return "DEL_FOLDER"
	case RenameFromFile:
		return "RENAME_FROM_FILE"
	case RenameFromFolder:
		return "RENAME_FROM_FOLDER"
	case RenameToFile:
		return "RENAME_TO_FILE"
	case RenameToFolder:
		return "RENAME_TO_FOLDER"
	case RenameFile:
		return "RENAME_FILE"
	case RenameFolder:
		return "RENAME_FOLDER"
	case Mount:
		return "MOUNT"
	case Unmount:
		return "UNMOUNT"
	case CloseWriteFile:
		return "CLOSE_WRITE_FILE"
	case CloseNowriteFile:
		return "CLOSE_NOWRITE_FILE"
	default:
		return fmt.Sprintf("ACT(%d)", uint8(a))
	}
}

// RawEvent is one decoded, but not yet normalized or filtered, vfsmonitor
// notification.
type RawEvent struct {
	Act    Action
	Cookie uint32
	Major  uint16
	Minor  uint8
	Path   string
}

// Kind is the correlator's derived event vocabulary: unlike Action, a
// RENAME_FROM/RENAME_TO pair collapses into a single Renamed.
type Kind int

const (
	Created Kind = iota
	Deleted
	Modified
	Renamed
	DirRenamed
	Mounted
	Unmounted
)

// Event is emitted to vfsevents consumers after normalization,
// filtering, and rename correlation.
type Event struct {
	Kind Kind
	Path string
	// From is populated for Renamed/DirRenamed and for the Modified that
	// follows a paired file rename.
	From string
	Act  Action
}
