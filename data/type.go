package data

// FileType identifies the kind of item a metadata record describes.
type FileType int

const (
	FileTypeFile      FileType = iota // Regular file
	FileTypeDirectory                 // Directory
	FileTypeSymlink                   // Symbolic link
	FileTypeBundle                    // Application or package bundle
	FileTypeOther                     // Anything a source cannot classify
)

func (t FileType) String() string {
	switch t {
	case FileTypeFile:
		return "file"
	case FileTypeDirectory:
		return "directory"
	case FileTypeSymlink:
		return "symlink"
	case FileTypeBundle:
		return "bundle"
	default:
		return "other"
	}
}
