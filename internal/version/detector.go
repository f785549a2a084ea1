// Package version resolves the dagwatch release identifier from linker flags or embedded build metadata.
package version

import (
	"runtime/debug"
	"strings"
)

const (
	unknownVersionFallbackConstant = "unknown"
	buildInfoDevelVersionValue     = "(devel)"
	buildInfoDevelAliasValue       = "devel"
	vcsRevisionSettingConstant     = "vcs.revision"
	vcsModifiedSettingConstant     = "vcs.modified"
	shortRevisionLengthConstant    = 12
	develRevisionPrefixConstant    = "devel-"
	dirtySuffixConstant            = "-dirty"
)

// LinkedVersion is set at build time with -ldflags "-X github.com/tyemirov/dagwatch/internal/version.LinkedVersion=v1.2.3".
var LinkedVersion string

// BuildInfoProvider exposes runtime build metadata.
type BuildInfoProvider interface {
	Read() (*debug.BuildInfo, bool)
}

// Dependencies describes the collaborators required for version detection.
type Dependencies struct {
	BuildInfoProvider BuildInfoProvider
	LinkedVersion     string
}

// Detector resolves application version strings.
type Detector struct {
	buildInfoProvider BuildInfoProvider
	linkedVersion     string
}

// NewDetector constructs a Detector with the supplied dependencies or runtime defaults.
func NewDetector(dependencies Dependencies) *Detector {
	provider := dependencies.BuildInfoProvider
	if provider == nil {
		provider = runtimeBuildInfoProvider{}
	}

	linkedVersion := strings.TrimSpace(dependencies.LinkedVersion)
	if len(linkedVersion) == 0 {
		linkedVersion = strings.TrimSpace(LinkedVersion)
	}

	return &Detector{
		buildInfoProvider: provider,
		linkedVersion:     linkedVersion,
	}
}

// Detect resolves the application version using the supplied dependencies.
func Detect(dependencies Dependencies) string {
	return NewDetector(dependencies).Version()
}

// Version prefers the linked version, then the module version, then the VCS revision recorded by the Go toolchain.
func (detector *Detector) Version() string {
	if detector == nil {
		return unknownVersionFallbackConstant
	}

	if len(detector.linkedVersion) > 0 {
		return detector.linkedVersion
	}

	buildInfo, available := detector.readBuildInfo()
	if !available {
		return unknownVersionFallbackConstant
	}

	if moduleVersion := strings.TrimSpace(buildInfo.Main.Version); len(moduleVersion) > 0 && !isDevelVersion(moduleVersion) {
		return moduleVersion
	}

	if revisionVersion := versionFromRevision(buildInfo.Settings); len(revisionVersion) > 0 {
		return revisionVersion
	}

	return unknownVersionFallbackConstant
}

func (detector *Detector) readBuildInfo() (*debug.BuildInfo, bool) {
	if detector.buildInfoProvider == nil {
		return nil, false
	}
	buildInfo, available := detector.buildInfoProvider.Read()
	if !available || buildInfo == nil {
		return nil, false
	}
	return buildInfo, true
}

func versionFromRevision(settings []debug.BuildSetting) string {
	revision := ""
	modified := false
	for _, setting := range settings {
		switch setting.Key {
		case vcsRevisionSettingConstant:
			revision = strings.TrimSpace(setting.Value)
		case vcsModifiedSettingConstant:
			modified = strings.EqualFold(strings.TrimSpace(setting.Value), "true")
		}
	}

	if len(revision) == 0 {
		return ""
	}
	if len(revision) > shortRevisionLengthConstant {
		revision = revision[:shortRevisionLengthConstant]
	}

	resolved := develRevisionPrefixConstant + revision
	if modified {
		resolved += dirtySuffixConstant
	}
	return resolved
}

func isDevelVersion(value string) bool {
	return strings.EqualFold(value, buildInfoDevelVersionValue) || strings.EqualFold(value, buildInfoDevelAliasValue)
}

type runtimeBuildInfoProvider struct{}

func (runtimeBuildInfoProvider) Read() (*debug.BuildInfo, bool) {
	return debug.ReadBuildInfo()
}
