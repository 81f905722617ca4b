package automation

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"time"

	"github.com/hashicorp/go-version"
)

var driverVersionRe = regexp.MustCompile(`ChromeDriver\s+(\d+(?:\.\d+)+)`)

// ParseDriverVersion extracts the version from `chromedriver --version` output.
func ParseDriverVersion(output string) (*version.Version, error) {
	m := driverVersionRe.FindStringSubmatch(output)
	if m == nil {
		return nil, fmt.Errorf("unrecognized chromedriver version output: %q", output)
	}
	return version.NewVersion(m[1])
}

// CheckChromeDriver verifies that a usable chromedriver exists and is at
// least minVersion. Any error here means no automation can ever run.
func CheckChromeDriver(ctx context.Context, path, minVersion string) (*version.Version, error) {
	if path == "" {
		path = FindChromeDriver()
	}
	if path == "" {
		return nil, fmt.Errorf("%w: chromedriver not found in PATH", ErrDriver)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, path, "--version").CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%w: %s --version: %v", ErrDriver, path, err)
	}

	v, err := ParseDriverVersion(string(out))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDriver, err)
	}
	if minVersion == "" {
		return v, nil
	}

	min, err := version.NewVersion(minVersion)
	if err != nil {
		return nil, fmt.Errorf("invalid minimum chromedriver version %q: %w", minVersion, err)
	}
	if v.LessThan(min) {
		return v, fmt.Errorf("%w: chromedriver %s is older than required %s", ErrDriver, v, min)
	}
	return v, nil
}
