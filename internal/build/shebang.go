package build

import (
	"bufio"
	"os"
	"strings"
)

// interpreter returns the argv prefix used to invoke doPath: the shebang
// line's interpreter command if doPath starts with "#!", or "sh -e" plus
// any REDO_SHELL_ARGS otherwise (spec §6 "Shebang handling").
func interpreter(doPath string, shellArgs string) ([]string, error) {
	f, err := os.Open(doPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 4096), 4096)
	var firstLine string
	if scanner.Scan() {
		firstLine = scanner.Text()
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if strings.HasPrefix(firstLine, "#!") {
		fields := strings.Fields(strings.TrimPrefix(firstLine, "#!"))
		if len(fields) > 0 {
			return fields, nil
		}
	}

	argv := []string{"sh", "-e"}
	argv = append(argv, strings.Fields(shellArgs)...)
	return argv, nil
}
