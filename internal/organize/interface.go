package organize

// Organizer is what file actions need from the engine. Tests substitute
// their own.
type Organizer interface {
	MoveFile(src, dest string) (string, error)
	CopyFile(src, dest string) (string, error)
	MoveInto(src, dir string) (string, error)
	CopyInto(src, dir string) (string, error)
	Rename(src, newName string) (string, error)
}

// Ensure Engine implements the Organizer interface
var _ Organizer = (*Engine)(nil)
