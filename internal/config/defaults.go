package config

const (
	defaultDataDir            = "~/.local/share/transcriber"
	defaultLogDir             = "~/.local/share/transcriber/logs"
	defaultModelsDir          = "~/.local/share/transcriber/models"
	defaultAPIBind            = "127.0.0.1:8000"
	defaultModel              = "medium"
	defaultLanguage           = "auto"
	defaultMaxConcurrent      = 1
	defaultFFmpegBinary       = "ffmpeg"
	defaultFFprobeBinary      = "ffprobe"
	defaultWhisperBinary      = "whisper-cli"
	defaultLLMBaseURL         = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel           = "anthropic/claude-3-haiku"
	defaultLLMTimeoutSeconds  = 120
	defaultPollIntervalMillis = 1000
	defaultSubscriberBuffer   = 32
	defaultListLimit          = 50
	defaultMinFreeSpaceMiB    = 512
	defaultNtfyTimeoutSeconds = 10
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			LogDir:    defaultLogDir,
			ModelsDir: defaultModelsDir,
			APIBind:   defaultAPIBind,
		},
		Transcription: Transcription{
			DefaultModel:    defaultModel,
			DefaultLanguage: defaultLanguage,
			MaxConcurrent:   defaultMaxConcurrent,
		},
		Tools: Tools{
			FFmpeg:  defaultFFmpegBinary,
			FFprobe: defaultFFprobeBinary,
			Whisper: defaultWhisperBinary,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Workflow: Workflow{
			PollIntervalMillis: defaultPollIntervalMillis,
			SubscriberBuffer:   defaultSubscriberBuffer,
			ListLimit:          defaultListLimit,
			MinFreeSpaceMiB:    defaultMinFreeSpaceMiB,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNtfyTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
