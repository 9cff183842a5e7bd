package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/blang/semver"
	"github.com/juju/errors"
	"github.com/rhysd/go-github-selfupdate/selfupdate"
	"github.com/spf13/cobra"
)

const repository = "spirius/yamlid"

func (a *app) versionCommand() *cobra.Command {
	var check, update bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version, check for and install updates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(a.stdout, "Version: %s\n", Version)
			switch {
			case update:
				return a.selfUpdate()
			case check:
				latest, err := a.checkUpdate()
				if err != nil {
					return errors.Trace(err)
				}
				if latest != nil {
					fmt.Fprintf(a.stdout, "New version is available: %s, current version: %s\n", latest.Version, Version)
					fmt.Fprintf(a.stdout, "Release note:\n%s\n", latest.ReleaseNotes)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "check if new version is available")
	cmd.Flags().BoolVar(&update, "update", false, "update to latest version")

	return cmd
}

// isLatest reports whether current is at least as new as latest.
// Local builds without a semantic version are never up to date.
func isLatest(current string, latest semver.Version) bool {
	v, err := semver.ParseTolerant(current)
	if err != nil {
		return false
	}
	return latest.LTE(v)
}

func (a *app) checkUpdate() (*selfupdate.Release, error) {
	latest, found, err := selfupdate.DetectLatest(repository)
	if err != nil {
		return nil, errors.Annotatef(err, "cannot check version")
	}

	if !found || isLatest(Version, latest.Version) {
		fmt.Fprintf(a.stdout, "Current version is the latest: %s\n", Version)
		return nil, nil
	}

	latest.ReleaseNotes = strings.TrimSpace(latest.ReleaseNotes)

	return latest, nil
}

func (a *app) selfUpdate() error {
	latest, err := a.checkUpdate()
	if err != nil {
		return errors.Trace(err)
	} else if latest == nil {
		return nil
	}
	exe, err := os.Executable()
	if err != nil {
		return errors.Annotatef(err, "cannot locate executable path")
	}
	a.logger.Debug("updating binary", "path", exe, "asset", latest.AssetURL)
	if err := selfupdate.UpdateTo(latest.AssetURL, exe); err != nil {
		return errors.Annotatef(err, "cannot update binary")
	}

	fmt.Fprintln(a.stdout, "Successfully updated to version", latest.Version)
	fmt.Fprintf(a.stdout, "Release note:\n%s\n", latest.ReleaseNotes)

	return nil
}
