package main

import (
	"encoding/json"
	"os"

	"github.com/sirupsen/logrus"
)

// ChannelConfig is one entry of the channels file.
type ChannelConfig struct {
	Name string `json:"name"`
	Key  string `json:"key,omitempty"`
}

type channelsFile struct {
	Channels []ChannelConfig `json:"channels"`
}

// ReadChannelsFile loads the JSON channels file the daemon keeps in sync
// with the server.
func ReadChannelsFile(filename string) ([]ChannelConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var config channelsFile
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	return config.Channels, nil
}

func EnvDefault(key string, def string) string {
	if ret, ok := os.LookupEnv(key); ok {
		return ret
	}

	return def
}

func Env(key string) string {
	ret, ok := os.LookupEnv(key)
	if !ok {
		logrus.WithField("var", key).Fatal("required environment variable not found")
	}

	return ret
}
