package workarea

import "time"

// Info describes a task working area on disk.
type Info struct {
	Path      string    // Absolute path to the directory
	Name      string    // Directory name: <yyyy-mm-dd>_<mode>_<hex6>
	Mode      string    // Task mode encoded in the name
	Day       time.Time // Creation day encoded in the name
	ShortCode string    // Random suffix
}

// Config configures the work area manager.
type Config struct {
	Root string // Directory holding all work areas
}
