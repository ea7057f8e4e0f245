package cmd

import (
	"errors"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	configVersionKey     = "version"
	currentConfigVersion = 1

	configBaseName   = "luacover"
	configFileName   = configBaseName + ".yaml"
	configFolderPath = "."

	outputFlagName      = "output"
	noCacheFlagName     = "no-cache"
	includeFlagName     = "include"
	excludeFlagName     = "exclude"
	runParallelFlagName = "parallel"
	strategyFlagName    = "strategy"
	hookFlagName        = "hook"
	cacheDirFlagName    = "cache-dir"
	bufferFlagName      = "buffer"
	verboseFlagName     = "verbose"
	logFileFlagName     = "log-file"

	includeConfigKey     = "paths.include"
	excludeConfigKey     = "paths.exclude"
	strategyConfigKey    = "strategy.default"
	hookConfigKey        = "strategy.hook"
	cacheDirConfigKey    = "cache.dir"
	runParallelConfigKey = "run.parallel"
	bufferConfigKey      = "tracker.buffer"

	defaultOutputDir   = ".luacover"
	defaultNoCache     = false
	defaultInclude     = `\.lua$`
	defaultStrategy    = "instrument"
	defaultRunParallel = 1
	defaultBuffer      = 1024
	cacheSubdir        = "cache"

	envPrefix = "LUACOVER"

	logFilenameKey   = "log.filename"
	logLevelKey      = "log.level"
	logVerboseKey    = "log.verbose"
	logMaxSizeKey    = "log.max_size"
	logMaxBackupsKey = "log.max_backups"
	logMaxAgeKey     = "log.max_age"
	logCompressKey   = "log.compress"

	defaultLogFilename   = ".luacover.log"
	defaultLogLevel      = int(slog.LevelInfo)
	defaultLogVerbose    = false
	defaultLogMaxSize    = 10
	defaultLogMaxBackups = 3
	defaultLogMaxAge     = 28
	defaultLogCompress   = true
)

var globalLogger *slog.Logger

func init() {
	viper.SetConfigName(configBaseName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configFolderPath)
	viper.SetConfigFile(filepath.Join(configFolderPath, configFileName))
	viper.AutomaticEnv()
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	viper.SetDefault(configVersionKey, currentConfigVersion)
	viper.SetDefault(outputFlagName, defaultOutputDir)
	viper.SetDefault(noCacheFlagName, defaultNoCache)
	viper.SetDefault(includeConfigKey, []string{defaultInclude})
	viper.SetDefault(excludeConfigKey, []string{})
	viper.SetDefault(strategyConfigKey, defaultStrategy)
	viper.SetDefault(hookConfigKey, []string{})
	viper.SetDefault(cacheDirConfigKey, "")
	viper.SetDefault(runParallelConfigKey, defaultRunParallel)
	viper.SetDefault(bufferConfigKey, defaultBuffer)

	// Logging defaults (used by config/env and as fallbacks for flags).
	viper.SetDefault(logFilenameKey, defaultLogFilename)
	viper.SetDefault(logLevelKey, defaultLogLevel)
	viper.SetDefault(logVerboseKey, defaultLogVerbose)
	viper.SetDefault(logMaxSizeKey, defaultLogMaxSize)
	viper.SetDefault(logMaxBackupsKey, defaultLogMaxBackups)
	viper.SetDefault(logMaxAgeKey, defaultLogMaxAge)
	viper.SetDefault(logCompressKey, defaultLogCompress)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return
		}

		return
	}
}

// cacheDir returns the rewrite cache directory, defaulting to a folder
// inside the output directory.
func cacheDir() string {
	if dir := strings.TrimSpace(viper.GetString(cacheDirConfigKey)); dir != "" {
		return dir
	}

	return filepath.Join(viper.GetString(outputFlagName), cacheSubdir)
}

func parseSlogLevel(value string, defaultLevel slog.Level) slog.Level {
	level := strings.ToLower(strings.TrimSpace(value))
	if level == "" {
		return defaultLevel
	}

	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}

	// Numeric slog levels are accepted too (e.g. -4 for debug).
	if n, err := strconv.Atoi(level); err == nil {
		return slog.Level(n)
	}

	return defaultLevel
}

// configureLogger configures the global slog logger.
//
// By default it logs at Info; if verbose is true it logs at Debug.
func configureLogger(logPath string, verbose bool) {
	if strings.TrimSpace(logPath) == "" {
		logPath = viper.GetString(logFilenameKey)
	}

	if strings.TrimSpace(logPath) == "" {
		logPath = defaultLogFilename
	}

	var logLevel slog.Level
	if verbose {
		logLevel = slog.LevelDebug
	} else {
		logLevel = parseSlogLevel(viper.GetString(logLevelKey), slog.LevelInfo)
	}

	logWriter := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    viper.GetInt(logMaxSizeKey),
		MaxBackups: viper.GetInt(logMaxBackupsKey),
		MaxAge:     viper.GetInt(logMaxAgeKey),
		Compress:   viper.GetBool(logCompressKey),
	}

	handler := slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		AddSource: true,
		Level:     logLevel,
	})

	globalLogger = slog.New(handler)
	slog.SetDefault(globalLogger)
}
