package blob

import (
	"bytes"
	"fmt"
	"log"
	"os/exec"
	"strings"
)

// successMarker is the substring the reference archiver (7-Zip) prints
// on stdout when a command completes without error. Grounded on
// original_source/src/util.py's compress_file/uncompress_file, which
// use this exact string as their only success signal.
const successMarker = "Everything is Ok"

// Archiver shells out to an external compression tool the same way the
// original implementation invoked 7z: argv templates with "%s"
// placeholders filled in with the paths involved, success detected by a
// substring on stdout rather than the process exit code.
type Archiver struct {
	// CompressArgv and DecompressArgv are argv slices (argv[0] is the
	// binary) with two "%s" placeholders each, filled with (out, in).
	CompressArgv   []string
	DecompressArgv []string
}

// Default7z returns an Archiver driving the 7z CLI at the given
// compression level, matching the original "7z a -mx=N out in" /
// "7z x -o<dir> archive" invocations.
func Default7z(level int) Archiver {
	return Archiver{
		CompressArgv:   []string{"7z", "a", fmt.Sprintf("-mx=%d", level), "%s", "%s"},
		DecompressArgv: []string{"7z", "x", "-y", "-o%s", "%s"},
	}
}

func (a Archiver) run(argv []string, out, in string) error {
	args := make([]string, len(argv))
	copy(args, argv)
	filled := 0
	for i, arg := range args {
		switch strings.Count(arg, "%s") {
		case 0:
			continue
		case 1:
			if filled == 0 {
				args[i] = fmt.Sprintf(arg, out)
			} else {
				args[i] = fmt.Sprintf(arg, in)
			}
			filled++
		default:
			args[i] = fmt.Sprintf(arg, out, in)
		}
	}
	cmd := exec.Command(args[0], args[1:]...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stdout

	if err := cmd.Run(); err != nil {
		log.Printf("blob: archiver command failed: %v\n%s", err, stdout.String())
		return fmt.Errorf("blob: run %v: %w", args, err)
	}
	if !strings.Contains(stdout.String(), successMarker) {
		return fmt.Errorf("blob: archiver did not report success: %s", stdout.String())
	}
	return nil
}

// CompressSource is a Source whose content is the compressed form
// produced by running Archiver.CompressArgv over RawPath, read back from
// ArchivePath.
type CompressSource struct {
	RawPath     string
	ArchivePath string
	Archiver    Archiver
}

func (c *CompressSource) ReadAll() ([]byte, error) {
	if err := c.Archiver.run(c.Archiver.CompressArgv, c.ArchivePath, c.RawPath); err != nil {
		return nil, err
	}
	return (&FileSource{Path: c.ArchivePath}).ReadAll()
}

// DecompressSink is the receive-side counterpart: it writes the
// incoming bytes to ArchivePath, then runs Archiver.DecompressArgv to
// expand them into OutDir.
type DecompressSink struct {
	ArchivePath string
	OutDir      string
	Archiver    Archiver
}

func (d *DecompressSink) WriteAll(data []byte) error {
	if err := (&FileSink{Path: d.ArchivePath}).WriteAll(data); err != nil {
		return err
	}
	return d.Archiver.run(d.Archiver.DecompressArgv, d.OutDir, d.ArchivePath)
}
