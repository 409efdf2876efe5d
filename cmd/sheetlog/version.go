package main

import "runtime/debug"

// version is set via ldflags: -X main.version=x.y.z
var version string

// Version is what `sheetlog --version` prints.
var Version = buildVersion()

// buildVersion prefers the ldflags version, then the module version of a
// go install build, then the VCS revision of a local build.
func buildVersion() string {
	if version != "" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && len(s.Value) >= 7 {
			return "dev-" + s.Value[:7]
		}
	}
	return "dev"
}
