package obs

import (
	"runtime"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfoOnce sync.Once

	// build_info{version,commit,go_version} 1
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build information of the running binary.",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	GoVersion string `json:"goVersion"`
}

// NewBuildInfo fills GoVersion from the runtime.
func NewBuildInfo(version, commit string) BuildInfo {
	return BuildInfo{Version: version, Commit: commit, GoVersion: runtime.Version()}
}

// InitBuildInfo registers build_info once and sets its value.
func InitBuildInfo(info BuildInfo) {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	buildInfo.WithLabelValues(info.Version, info.Commit, info.GoVersion).Set(1)
}

func (b BuildInfo) asMap() map[string]any {
	return map[string]any{
		"version":   b.Version,
		"commit":    b.Commit,
		"goVersion": b.GoVersion,
	}
}
