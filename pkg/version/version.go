package version

import (
	"fmt"
	"runtime"
)

// set via -ldflags "-X kubegems.io/nemopub/pkg/version.gitVersion=..."
var (
	gitVersion = "v0.0.0-dev"
	gitCommit  = "unknown"
	buildDate  = "1970-01-01T00:00:00Z"
)

type Version struct {
	GitVersion string `json:"gitVersion"`
	GitCommit  string `json:"gitCommit"`
	BuildDate  string `json:"buildDate"`
	GoVersion  string `json:"goVersion"`
	Platform   string `json:"platform"`
}

func (v Version) String() string {
	return fmt.Sprintf("%s (%s, built %s, %s %s)", v.GitVersion, v.GitCommit, v.BuildDate, v.GoVersion, v.Platform)
}

func Get() Version {
	return Version{
		GitVersion: gitVersion,
		GitCommit:  gitCommit,
		BuildDate:  buildDate,
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
	}
}
