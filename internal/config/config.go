package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port     string
		LogLevel string
	}
	Metrics struct {
		Port int
	}
	Monitor struct {
		IntervalSeconds int
	}
	Latency struct {
		Strict bool
	}
	Deepgram struct {
		APIKey   string
		Model    string
		Language string
		WSURL    string
	}
	LLM struct {
		Endpoint     string
		APIKey       string
		Model        string
		SystemPrompt string
		MaxTokens    int
	}
	Eleven struct {
		APIKey  string
		VoiceID string
	}
}

func Load() Config {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("metrics.port", 8000)
	v.SetDefault("monitor.interval_seconds", 5)
	v.SetDefault("latency.strict", false)

	v.SetDefault("deepgram.model", "nova-2")
	v.SetDefault("deepgram.language", "en-US")

	v.SetDefault("llm.model", "gpt-4.1-mini")
	v.SetDefault("llm.max_tokens", 256)
	v.SetDefault("llm.system_prompt", "You are a helpful voice assistant. Keep answers short and speakable.")

	// Map envs
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.log_level", "LOG_LEVEL")

	v.BindEnv("metrics.port", "METRICS_PORT")
	v.BindEnv("monitor.interval_seconds", "MONITOR_INTERVAL_SECONDS")
	v.BindEnv("latency.strict", "LATENCY_STRICT")

	v.BindEnv("deepgram.api_key", "DEEPGRAM_API_KEY")
	v.BindEnv("deepgram.model", "DEEPGRAM_MODEL")
	v.BindEnv("deepgram.language", "DEEPGRAM_LANGUAGE")
	v.BindEnv("deepgram.ws_url", "DEEPGRAM_WS_URL")

	v.BindEnv("llm.endpoint", "LLM_ENDPOINT")
	v.BindEnv("llm.api_key", "LLM_API_KEY")
	v.BindEnv("llm.model", "LLM_MODEL")
	v.BindEnv("llm.system_prompt", "LLM_SYSTEM_PROMPT")
	v.BindEnv("llm.max_tokens", "LLM_MAX_TOKENS")

	v.BindEnv("elevenlabs.api_key", "ELEVENLABS_API_KEY")
	v.BindEnv("elevenlabs.voice_id", "ELEVENLABS_VOICE_ID")

	var c Config
	c.Server.Port = toString(v.Get("server.port"))
	c.Server.LogLevel = v.GetString("server.log_level")

	c.Metrics.Port = v.GetInt("metrics.port")
	c.Monitor.IntervalSeconds = v.GetInt("monitor.interval_seconds")
	c.Latency.Strict = v.GetBool("latency.strict")

	c.Deepgram.APIKey = v.GetString("deepgram.api_key")
	c.Deepgram.Model = v.GetString("deepgram.model")
	c.Deepgram.Language = v.GetString("deepgram.language")
	c.Deepgram.WSURL = v.GetString("deepgram.ws_url")

	c.LLM.Endpoint = v.GetString("llm.endpoint")
	c.LLM.APIKey = v.GetString("llm.api_key")
	c.LLM.Model = v.GetString("llm.model")
	c.LLM.SystemPrompt = v.GetString("llm.system_prompt")
	c.LLM.MaxTokens = v.GetInt("llm.max_tokens")

	c.Eleven.APIKey = v.GetString("elevenlabs.api_key")
	c.Eleven.VoiceID = v.GetString("elevenlabs.voice_id")

	log.Printf("config loaded: port=%s metrics_port=%d strict=%v", c.Server.Port, c.Metrics.Port, c.Latency.Strict)
	return c
}

func toString(v any) string { return fmt.Sprint(v) }
