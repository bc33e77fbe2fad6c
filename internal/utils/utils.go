package utils

import (
	"bufio"
	"fmt"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
	"io"
	"os"
	"path"
	"strings"
)

// AskForConfirmationDefaultYes prompts on w and reads the answer from r. Empty input counts as yes.
func AskForConfirmationDefaultYes(r io.Reader, w io.Writer, s string) bool {
	reader := bufio.NewReader(r)

	_, _ = fmt.Fprintf(w, "%s [Y/n]: ", s)

	response, err := reader.ReadString('\n')
	if err != nil && response == "" {
		return err == io.EOF
	}

	switch strings.ToLower(strings.TrimSpace(response)) {
	case "y", "yes", "":
		return true
	default:
		return false
	}
}

// DumpOption writes opt as yaml to outputPath, creating the parent directory with 0700.
// An existing file is only replaced when overwrite is set or the user confirms on stdin.
func DumpOption(opt interface{}, outputPath string, overwrite bool) error {
	buffer, err := yaml.Marshal(opt)
	if err != nil {
		return errors.Wrap(err, "cannot marshal option")
	}

	parentPath := path.Dir(outputPath)
	if _, err := os.Stat(parentPath); os.IsNotExist(err) {
		if err := os.MkdirAll(parentPath, 0700); err != nil {
			return errors.Wrapf(err, "cannot create directory %s", parentPath)
		}
	}

	if !overwrite {
		if _, err := os.Stat(outputPath); !os.IsNotExist(err) {
			if !AskForConfirmationDefaultYes(os.Stdin, os.Stdout, "configuration "+outputPath+" already exist, overwrite?") {
				log.Infoln("abort")
				return nil
			}
		}
	}

	log.Infoln("writing configuration to", outputPath)
	f, err := os.OpenFile(outputPath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0600)
	if err != nil {
		return errors.Wrapf(err, "cannot open %s, check permissions", outputPath)
	}
	defer func() { _ = f.Close() }()

	w := bufio.NewWriter(f)
	if _, err = w.Write(buffer); err != nil {
		return errors.Wrap(err, "cannot write configuration")
	}
	return w.Flush()
}
