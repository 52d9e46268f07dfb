package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Setup sends the standard logger to stdout and to a timestamped file under dir.
// When the file cannot be created logging stays on stdout only. The returned func closes the file.
func Setup(dir, command string) (string, func()) {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.SetOutput(os.Stdout)

	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Printf("[CLI] Could not create log dir %s: %v", dir, err)
		return "", func() {}
	}

	name := filepath.Join(dir, fmt.Sprintf("%s-%s.log", command, time.Now().Format("20060102-150405")))
	file, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Printf("[CLI] Could not open log file %s: %v", name, err)
		return "", func() {}
	}

	log.SetOutput(io.MultiWriter(os.Stdout, file))
	return name, func() {
		log.SetOutput(os.Stdout)
		file.Close()
	}
}
