package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

const (
	maxConcurrentDownloads = 3
	retryAttempts          = 3
	retryDelay             = 2 * time.Second
	autoResumeOnRestore    = true
	probeInterval          = 10 * time.Second
	probeAddress           = "1.1.1.1:443"
	maxFileSize            = 0 // unlimited
)

var (
	downloadDir = xdg.UserDirs.Download
	dataDir     = filepath.Join(xdg.DataHome, configFileName)
)
